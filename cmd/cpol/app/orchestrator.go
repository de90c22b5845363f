package app

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zssherman/cpol-processing/internal/pipeline"
	"github.com/zssherman/cpol-processing/internal/quicklook"
	"github.com/zssherman/cpol-processing/internal/radar"
	"github.com/zssherman/cpol-processing/internal/storage"
	"github.com/zssherman/cpol-processing/internal/voljson"
)

// Orchestrator fans the input volumes out over a pool of workers, records
// every outcome in the catalog and keeps going when single volumes fail.
// Only a precondition violation in the run setup aborts the whole run.
type Orchestrator struct {
	store     *storage.Store
	processor *pipeline.Processor
	config    *Config
	logger    *slog.Logger

	runID int64
	wg    sync.WaitGroup
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(store *storage.Store, processor *pipeline.Processor, config *Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		processor: processor,
		config:    config,
		logger:    logger,
	}
}

// Run processes every input volume, at most Settings.Workers at a time.
func (o *Orchestrator) Run(ctx context.Context, inputs []string) error {
	runID, err := o.store.CreateRun(ctx, o.config.Settings.Instrument, o.config)
	if err != nil {
		return fmt.Errorf("creating catalog run: %w", err)
	}
	o.runID = runID

	o.logger.Info("production run started",
		slog.Int64("run_id", runID),
		slog.Int("volumes", len(inputs)),
		slog.Int("workers", o.config.Settings.Workers))

	paths := make(chan string)
	for i := 0; i < o.config.Settings.Workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, paths)
	}

feed:
	for _, path := range inputs {
		select {
		case paths <- path:
		case <-ctx.Done():
			break feed
		}
	}
	close(paths)

	o.wg.Wait()
	return ctx.Err()
}

func (o *Orchestrator) worker(ctx context.Context, paths <-chan string) {
	defer o.wg.Done()

	for path := range paths {
		if ctx.Err() != nil {
			return
		}
		if err := o.processVolume(ctx, path); err != nil {
			o.logger.Error("volume failed", slog.String("input", path), slog.String("error", err.Error()))
		}
	}
}

func (o *Orchestrator) processVolume(ctx context.Context, path string) error {
	done, err := o.store.IsProcessed(ctx, path)
	if err != nil {
		return fmt.Errorf("checking catalog: %w", err)
	}
	if done {
		o.logger.Debug("volume already processed, skipping", slog.String("input", path))
		_, err = o.store.RecordVolume(ctx, storage.VolumeRecord{
			RunID:     o.runID,
			InputPath: path,
			Status:    storage.StatusSkipped,
		})
		return err
	}

	start := time.Now()
	vol, err := voljson.Read(path)
	if err != nil {
		return o.recordFailure(ctx, path, fmt.Errorf("reading volume: %w", err), start)
	}

	res, err := o.processor.Process(vol)
	if err != nil {
		return o.recordFailure(ctx, path, err, start)
	}

	outPath := o.outputPath(path, vol.Time)
	if err = os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return o.recordFailure(ctx, path, fmt.Errorf("creating output directory: %w", err), start)
	}
	if err = voljson.Write(outPath, vol); err != nil {
		return o.recordFailure(ctx, path, fmt.Errorf("writing volume: %w", err), start)
	}

	if o.config.Quicklook.Enabled {
		if qlErr := o.renderQuicklook(vol, outPath); qlErr != nil {
			// Quicklooks are a convenience; their failure never fails the volume.
			o.logger.Warn("quicklook rendering failed",
				slog.String("input", path), slog.String("error", qlErr.Error()))
		}
	}

	_, err = o.store.RecordVolume(ctx, storage.VolumeRecord{
		RunID:      o.runID,
		InputPath:  path,
		OutputPath: outPath,
		Status:     storage.StatusProcessed,
		Algorithm:  res.AlgorithmPath,
		Nyquist:    res.NyquistVelocity,
		Duration:   time.Since(start),
	})
	if err != nil {
		return fmt.Errorf("recording volume: %w", err)
	}

	var size string
	if info, statErr := os.Stat(outPath); statErr == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	o.logger.Info("volume processed",
		slog.String("input", path),
		slog.String("output", outPath),
		slog.String("size", size),
		slog.String("algorithm", res.AlgorithmPath),
		slog.Duration("elapsed", res.Elapsed))
	return nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, path string, cause error, start time.Time) error {
	_, err := o.store.RecordVolume(ctx, storage.VolumeRecord{
		RunID:     o.runID,
		InputPath: path,
		Status:    storage.StatusFailed,
		Error:     cause.Error(),
		Duration:  time.Since(start),
	})
	if err != nil {
		o.logger.Error("recording failure", slog.String("input", path), slog.String("error", err.Error()))
	}
	return cause
}

// outputPath places the processed volume under the versioned production tree,
// partitioned by scan year and day.
func (o *Orchestrator) outputPath(inputPath string, scanTime time.Time) string {
	return filepath.Join(
		o.config.Paths.OutputDir,
		productionVersion,
		"ppi",
		scanTime.UTC().Format("2006"),
		scanTime.UTC().Format("20060102"),
		filepath.Base(inputPath),
	)
}

func (o *Orchestrator) renderQuicklook(vol *radar.Volume, outPath string) error {
	renderer, err := quicklook.NewPPIRenderer(quicklook.RenderConfig{
		FontPath:   o.config.Quicklook.FontPath,
		ColorTheme: quicklook.ColorTheme(o.config.Quicklook.Theme),
	})
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	img, err := renderer.Render(vol, o.config.Quicklook.Field, o.config.Quicklook.Sweep)
	if err != nil {
		return fmt.Errorf("rendering: %w", err)
	}

	base := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(outPath), ".gz"), ".json")
	imgPath := filepath.Join(o.config.Paths.OutputDir, productionVersion, "quicklooks", base+".png")
	out, err := os.Create(imgPath)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}
	defer out.Close()

	return png.Encode(out, img)
}
