package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/zssherman/cpol-processing/internal/quicklook"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	VolumePath string
	OutputFile string
	Field      string
	Sweep      int
	Format     ImageFormat
	Theme      quicklook.ColorTheme
	FontPath   string
	Verbose    bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validThemes = map[quicklook.ColorTheme]struct{}{
	quicklook.ClassicTheme:   {},
	quicklook.GrayscaleTheme: {},
	quicklook.ThermalTheme:   {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Theme:  quicklook.ClassicTheme,
		Field:  "reflectivity",
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	flag.StringVar(&c.VolumePath, "in", "", "Path to the processed volume file")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&c.Field, "field", c.Field, "Field to render")
	flag.IntVar(&c.Sweep, "sweep", 0, "Sweep index to render")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&theme, "theme", string(quicklook.ClassicTheme), "Color theme. [classic, grayscale, thermal]")
	flag.StringVar(&c.FontPath, "font", "", "Path to a TTF font file for annotations")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	var err error
	if c.VolumePath == "" {
		err = errors.New("volume path is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if c.FontPath == "" {
		err = errors.New("font path is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validThemes[quicklook.ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = quicklook.ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
