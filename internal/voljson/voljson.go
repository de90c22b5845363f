// Package voljson reads and writes scan volumes as gzipped JSON documents.
// The format is a flat, self-describing container so collaborators can
// produce and consume volumes without a radar-format toolchain.
package voljson

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/zssherman/cpol-processing/internal/radar"
)

// formatVersion is bumped on every incompatible change to the container.
const formatVersion = 1

type document struct {
	Version    int       `json:"version"`
	Instrument string    `json:"instrument"`
	Time       time.Time `json:"time"`

	NRays  int `json:"n_rays"`
	NGates int `json:"n_gates"`

	Azimuth   []float64 `json:"azimuth"`
	Elevation []float64 `json:"elevation"`
	Range     []float64 `json:"range"`

	Sweeps []sweepJSON `json:"sweeps"`

	NyquistVelocity float64 `json:"nyquist_velocity,omitempty"`

	Fields map[string]fieldJSON `json:"fields"`
}

type sweepJSON struct {
	Start     int     `json:"start"`
	End       int     `json:"end"`
	Elevation float64 `json:"elevation"`
}

// fieldJSON carries gate data as nullable values: JSON has no NaN, so masked
// gates travel as null.
type fieldJSON struct {
	Units           string     `json:"units,omitempty"`
	StandardName    string     `json:"standard_name,omitempty"`
	Description     string     `json:"description,omitempty"`
	NyquistVelocity float64    `json:"nyquist_velocity,omitempty"`
	Data            []*float64 `json:"data"`
}

// Write encodes vol to path. Paths ending in .gz are gzip-compressed.
func Write(path string, vol *radar.Volume) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating volume file: %w", err)
	}
	defer closeWithError(f, &err)

	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		defer closeWithError(gz, &err)
		w = gz
	}
	return Encode(w, vol)
}

// Read decodes the volume at path. Paths ending in .gz are decompressed.
func Read(path string) (vol *radar.Volume, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening volume file: %w", err)
	}
	defer closeWithError(f, &err)

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, gzErr := gzip.NewReader(f)
		if gzErr != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", gzErr)
		}
		defer closeWithError(gz, &err)
		r = gz
	}
	return Decode(r)
}

// Encode writes vol to w as one JSON document.
func Encode(w io.Writer, vol *radar.Volume) error {
	doc := document{
		Version:         formatVersion,
		Instrument:      vol.Instrument,
		Time:            vol.Time,
		NRays:           vol.NRays,
		NGates:          vol.NGates,
		Azimuth:         vol.Azimuth,
		Elevation:       vol.Elevation,
		Range:           vol.Range,
		NyquistVelocity: vol.NyquistVelocity,
		Fields:          make(map[string]fieldJSON, len(vol.Fields)),
	}
	for _, s := range vol.Sweeps {
		doc.Sweeps = append(doc.Sweeps, sweepJSON{Start: s.Start, End: s.End, Elevation: s.Elevation})
	}
	for name, f := range vol.Fields {
		data := make([]*float64, len(f.Data))
		for i, v := range f.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			v := v
			data[i] = &v
		}
		doc.Fields[name] = fieldJSON{
			Units:           f.Units,
			StandardName:    f.StandardName,
			Description:     f.Description,
			NyquistVelocity: f.NyquistVelocity,
			Data:            data,
		}
	}

	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("encoding volume: %w", err)
	}
	return nil
}

// Decode reads one JSON volume document from r and validates it.
func Decode(r io.Reader) (*radar.Volume, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding volume: %w", err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("unsupported volume format version %d", doc.Version)
	}

	vol := &radar.Volume{
		Instrument:      doc.Instrument,
		Time:            doc.Time,
		NRays:           doc.NRays,
		NGates:          doc.NGates,
		Azimuth:         doc.Azimuth,
		Elevation:       doc.Elevation,
		Range:           doc.Range,
		NyquistVelocity: doc.NyquistVelocity,
		Fields:          make(map[string]*radar.Field, len(doc.Fields)),
	}
	for _, s := range doc.Sweeps {
		vol.Sweeps = append(vol.Sweeps, radar.Sweep{Start: s.Start, End: s.End, Elevation: s.Elevation})
	}
	for name, fj := range doc.Fields {
		if len(fj.Data) != doc.NRays*doc.NGates {
			return nil, fmt.Errorf("field %q has %d gates, want %d", name, len(fj.Data), doc.NRays*doc.NGates)
		}
		f := radar.NewField(name, doc.NRays, doc.NGates)
		f.Units = fj.Units
		f.StandardName = fj.StandardName
		f.Description = fj.Description
		f.NyquistVelocity = fj.NyquistVelocity
		for i, p := range fj.Data {
			if p != nil {
				f.Data[i] = *p
			}
		}
		vol.Fields[name] = f
	}

	if err := vol.Validate(); err != nil {
		return nil, err
	}
	return vol, nil
}

func closeWithError(cl io.Closer, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
