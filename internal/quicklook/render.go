package quicklook

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/zssherman/cpol-processing/internal/radar"
)

const (
	dpi      = 96.0
	fontSize = 12.0

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 20
	defaultBottomBorder = 40
	defaultRightBorder  = 70

	colorBarWidth = 20
	rangeRings    = 4

	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the PPI disc.
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Left padding
	Bottom int // Space for the information bar
	Right  int // Space for the color bar
}

// RenderConfig holds the configuration options for sweep visualization.
type RenderConfig struct {
	FontPath       string     // Path to a TTF font file, required
	FontSize       float64    // Font size in points
	ColorTheme     ColorTheme // Color scheme for field values
	DatetimeFormat string     // Format string for the scan time

	BorderConfig BorderConfig
}

// PPIRenderer draws one sweep of one field as a plan position indicator:
// the radar sits at the center, each gate is painted at its polar position.
type PPIRenderer struct {
	config RenderConfig
}

// NewPPIRenderer creates a renderer, filling zero config values with defaults.
func NewPPIRenderer(config RenderConfig) (*PPIRenderer, error) {
	if config.FontPath == "" {
		return nil, fmt.Errorf("font path is required")
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &PPIRenderer{config: config}, nil
}

// Render paints sweep sweepIdx of the named field onto a fresh image.
func (r *PPIRenderer) Render(vol *radar.Volume, fieldName string, sweepIdx int) (*image.RGBA, error) {
	f, err := vol.Field(fieldName)
	if err != nil {
		return nil, err
	}
	if sweepIdx < 0 || sweepIdx >= len(vol.Sweeps) {
		return nil, fmt.Errorf("sweep %d out of range, volume has %d sweeps", sweepIdx, len(vol.Sweeps))
	}
	sweep := vol.Sweeps[sweepIdx]

	diameter := 2 * f.NGates
	fullWidth := diameter + r.config.BorderConfig.Left + r.config.BorderConfig.Right
	fullHeight := diameter + r.config.BorderConfig.Top + r.config.BorderConfig.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	discArea := image.Rect(
		r.config.BorderConfig.Left,
		r.config.BorderConfig.Top,
		r.config.BorderConfig.Left+diameter,
		r.config.BorderConfig.Top+diameter,
	)

	bounds := PercentileBounds(f.SweepData(sweep))
	mapper := NewColorMapper(r.config.ColorTheme, bounds)

	r.renderDisc(img, discArea, vol, f, sweep, mapper)

	ann, err := newAnnotator(annotatorConfig{
		FontPath:       r.config.FontPath,
		FontSize:       r.config.FontSize,
		DatetimeFormat: r.config.DatetimeFormat,
		Borders:        r.config.BorderConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, discArea, vol, f, sweepIdx, bounds, mapper); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

// renderDisc walks the disc's pixels, maps each back to its polar gate and
// paints the gate's value. Azimuth 0 is north, increasing clockwise.
func (r *PPIRenderer) renderDisc(img *image.RGBA, area image.Rectangle, vol *radar.Volume, f *radar.Field, sweep radar.Sweep, mapper *ColorMapper) {
	nRays := sweep.NRays()
	radius := float64(f.NGates)
	cx := float64(area.Min.X) + radius
	cy := float64(area.Min.Y) + radius

	// Nearest-ray lookup by azimuth, tenth of a degree resolution.
	rayFor := make([]int, 3600)
	for i := range rayFor {
		rayFor[i] = -1
	}
	for rr := 0; rr < nRays; rr++ {
		az := vol.Azimuth[sweep.Start+rr]
		idx := int(math.Round(az*10)) % 3600
		if idx < 0 {
			idx += 3600
		}
		rayFor[idx] = rr
	}
	fillNearest(rayFor)

	for py := area.Min.Y; py < area.Max.Y; py++ {
		for px := area.Min.X; px < area.Max.X; px++ {
			dx := float64(px) - cx
			dy := float64(py) - cy
			dist := math.Hypot(dx, dy)
			if dist >= radius {
				continue
			}
			az := math.Atan2(dx, -dy) * 180 / math.Pi
			if az < 0 {
				az += 360
			}
			idx := int(az*10) % 3600
			ray := rayFor[idx]
			gate := int(dist)
			if ray < 0 || gate >= f.NGates {
				continue
			}
			v := f.At(sweep.Start+ray, gate)
			if math.IsNaN(v) {
				continue
			}
			img.Set(px, py, mapper.Color(v))
		}
	}
}

// fillNearest replaces -1 entries with the nearest assigned ray, treating the
// table as circular, so gaps between ray azimuths paint as solid wedges.
func fillNearest(table []int) {
	n := len(table)
	last := -1
	for i := 0; i < 2*n; i++ {
		if table[i%n] >= 0 {
			last = table[i%n]
		} else if last >= 0 {
			table[i%n] = last
		}
	}
}

// Internal annotator implementation

type annotatorConfig struct {
	FontPath       string
	FontSize       float64
	DatetimeFormat string
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	fontBytes, err := os.ReadFile(config.FontPath)
	if err != nil {
		return nil, fmt.Errorf("reading font file: %w", err)
	}
	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, disc image.Rectangle, vol *radar.Volume, f *radar.Field, sweepIdx int, bounds ValueBounds, mapper *ColorMapper) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawTitle(img, vol, f, sweepIdx); err != nil {
		return fmt.Errorf("drawing title: %w", err)
	}
	if err := a.drawRangeRings(img, disc, vol, f); err != nil {
		return fmt.Errorf("drawing range rings: %w", err)
	}
	if err := a.drawColorBar(img, disc, f, bounds, mapper); err != nil {
		return fmt.Errorf("drawing color bar: %w", err)
	}
	if err := a.drawInfoBar(img, vol, f); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	return nil
}

func (a *annotator) drawTitle(img *image.RGBA, vol *radar.Volume, f *radar.Field, sweepIdx int) error {
	title := fmt.Sprintf("%s  %s  elevation %.1f deg",
		vol.Instrument, f.Name, vol.Sweeps[sweepIdx].Elevation)

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := (a.config.Borders.Top+fontHeight)/2 - metrics.Descent.Round()

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(title, pt); err != nil {
		return fmt.Errorf("drawing title text: %w", err)
	}
	return nil
}

// drawRangeRings paints concentric distance rings over the disc with a
// kilometer label on each, using the volume's gate range spacing.
func (a *annotator) drawRangeRings(img *image.RGBA, disc image.Rectangle, vol *radar.Volume, f *radar.Field) error {
	radius := float64(f.NGates)
	cx := float64(disc.Min.X) + radius
	cy := float64(disc.Min.Y) + radius

	maxRange := 0.0
	if len(vol.Range) > 0 {
		maxRange = vol.Range[len(vol.Range)-1]
	}

	ringGray := color.RGBA{R: 120, G: 120, B: 120, A: 255}
	for ring := 1; ring <= rangeRings; ring++ {
		rr := radius * float64(ring) / float64(rangeRings)
		steps := int(2 * math.Pi * rr)
		for s := 0; s < steps; s += 3 {
			theta := float64(s) / float64(steps) * 2 * math.Pi
			px := int(cx + rr*math.Cos(theta))
			py := int(cy + rr*math.Sin(theta))
			img.Set(px, py, ringGray)
		}

		if maxRange > 0 {
			dist := maxRange * float64(ring) / float64(rangeRings)
			fract, suffix := humanize.ComputeSI(dist)
			label := fmt.Sprintf("%.0f %sm", fract, suffix)
			pt := freetype.Pt(int(cx)+3, int(cy-rr)+14)
			if _, err := a.context.DrawString(label, pt); err != nil {
				return fmt.Errorf("drawing ring label: %w", err)
			}
		}
	}
	return nil
}

func (a *annotator) drawColorBar(img *image.RGBA, disc image.Rectangle, f *radar.Field, bounds ValueBounds, mapper *ColorMapper) error {
	barLeft := disc.Max.X + 10
	barTop := disc.Min.Y
	barHeight := disc.Dy()

	for y := 0; y < barHeight; y++ {
		// Top of the bar is the maximum value.
		v := bounds.Max - (bounds.Max-bounds.Min)*float64(y)/float64(barHeight-1)
		c := mapper.Color(v)
		for x := barLeft; x < barLeft+colorBarWidth; x++ {
			img.Set(x, barTop+y, c)
		}
	}

	labels := []struct {
		value float64
		y     int
	}{
		{bounds.Max, barTop + 12},
		{(bounds.Max + bounds.Min) / 2, barTop + barHeight/2},
		{bounds.Min, barTop + barHeight - 3},
	}
	for _, l := range labels {
		label := fmt.Sprintf("%.1f", l.value)
		pt := freetype.Pt(barLeft+colorBarWidth+3, l.y)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing color bar label: %w", err)
		}
	}

	if f.Units != "" {
		pt := freetype.Pt(barLeft, barTop+barHeight+16)
		if _, err := a.context.DrawString(f.Units, pt); err != nil {
			return fmt.Errorf("drawing units label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, vol *radar.Volume, f *radar.Field) error {
	info := fmt.Sprintf("Scan: %s; rays: %d; gates: %d",
		vol.Time.Format(a.config.DatetimeFormat), vol.NRays, f.NGates)
	if f.NyquistVelocity > 0 {
		info += fmt.Sprintf("; Nyquist: %.1f m/s", f.NyquistVelocity)
	}

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-fontHeight)/2 - metrics.Descent.Round()

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(info, pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}
