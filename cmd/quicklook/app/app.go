package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"github.com/zssherman/cpol-processing/internal/quicklook"
	"github.com/zssherman/cpol-processing/internal/voljson"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.VolumePath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("volume file '%s' does not exist: %w", config.VolumePath, err)
	}

	vol, err := voljson.Read(config.VolumePath)
	if err != nil {
		return fmt.Errorf("reading volume: %w", err)
	}

	if config.Verbose {
		logger.Info("volume loaded",
			slog.String("instrument", vol.Instrument),
			slog.Int("rays", vol.NRays),
			slog.Int("gates", vol.NGates),
			slog.Int("sweeps", len(vol.Sweeps)))
	}

	renderer, err := quicklook.NewPPIRenderer(quicklook.RenderConfig{
		FontPath:   config.FontPath,
		ColorTheme: config.Theme,
	})
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	logger.Info("rendering sweep",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.String("field", config.Field),
			slog.Int("sweep", config.Sweep),
		))

	img, err := renderer.Render(vol, config.Field, config.Sweep)
	if err != nil {
		return fmt.Errorf("rendering sweep: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
