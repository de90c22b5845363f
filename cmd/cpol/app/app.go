package app

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zssherman/cpol-processing/internal/dealias"
	"github.com/zssherman/cpol-processing/internal/pipeline"
	"github.com/zssherman/cpol-processing/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if err := createOutputDirs(config); err != nil {
		return err
	}

	store, err := createStore(config)
	if err != nil {
		return fmt.Errorf("failed to create catalog store: %w", err)
	}
	defer store.Close()

	inputs, err := listInputs(config.Paths.InputDir)
	if err != nil {
		return fmt.Errorf("failed to list input volumes: %w", err)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no input volumes found under '%s'", config.Paths.InputDir)
	}

	processor := pipeline.New(logger,
		pipeline.WithFieldNames(config.Fields),
		pipeline.WithDealiasOptions(dealias.DefaultOptions()),
		pipeline.WithSoundingConstraint(config.Settings.SoundingConstraint))

	orch := NewOrchestrator(store, processor, config, logger)
	return orch.Run(ctx, inputs)
}

func createOutputDirs(config *Config) error {
	// Re-running against an existing production tree is routine; MkdirAll is
	// a no-op when the directories already exist.
	dirs := []string{
		filepath.Join(config.Paths.OutputDir, productionVersion),
	}
	if config.Quicklook.Enabled {
		dirs = append(dirs, filepath.Join(config.Paths.OutputDir, productionVersion, "quicklooks"))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory '%s': %w", dir, err)
		}
	}
	return nil
}

func createStore(config *Config) (*storage.Store, error) {
	dbPath := config.Paths.CatalogDB
	if dbPath == "" {
		dbPath = filepath.Join(config.Paths.OutputDir, productionVersion, "catalog.sqlite")
	}
	return storage.New(dbPath), nil
}

// listInputs collects the volume files under dir in lexical order, which for
// timestamped file names is chronological order.
func listInputs(dir string) ([]string, error) {
	var inputs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".json.gz") {
			inputs = append(inputs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inputs, nil
}
