package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"trailmetrics/internal/store"
)

// Dataset columns
const (
	ColFileName     = "file_name"
	ColActivityType = "activity_type"
	ColLat          = "lat"
	ColLon          = "lon"
	ColAltitude     = "altitude_m"
	ColDistance     = "distance_m"
	ColGainCum      = "dplus_m_cum"
	ColSpeed        = "speed_kmh"
	ColTime         = "time"
)

// DatasetHeader is the column order of the flat dataset
var DatasetHeader = []string{
	ColFileName, ColActivityType, ColLat, ColLon, ColAltitude,
	ColDistance, ColGainCum, ColSpeed, ColTime,
}

var requiredColumns = []string{ColFileName, ColLat, ColLon, ColDistance}

// ErrMissingColumn is returned when the header lacks a required column
var ErrMissingColumn = errors.New("missing required column")

// timeLayouts are tried in order; layouts without a zone are read as UTC
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// CSVSource reads the flat dataset from a file
type CSVSource struct {
	Path string
}

// NewCSVSource creates a source for the dataset at path
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

func (s *CSVSource) Name() string {
	return "csv:" + s.Path
}

func (s *CSVSource) Load(ctx context.Context) (*Batch, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	return ReadCSV(ctx, f, s.Path)
}

// ReadCSV parses the flat dataset. Columns are matched by header name so
// extra columns are ignored. Rows that cannot be parsed are reported in
// Batch.Skipped with their line number; blank optional cells become nil.
func ReadCSV(ctx context.Context, r io.Reader, ref string) (*Batch, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return &Batch{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[h] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	batch := &Batch{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			batch.Skipped = append(batch.Skipped, Skip{Ref: ref, Line: perr.Line, Err: perr.Err})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ref, err)
		}

		line, _ := cr.FieldPos(0)
		p, err := parseRow(record, cols)
		if err != nil {
			batch.Skipped = append(batch.Skipped, Skip{Ref: ref, Line: line, Err: err})
			continue
		}
		batch.Points = append(batch.Points, p)
	}
	return batch, nil
}

func parseRow(record []string, cols map[string]int) (store.RawPoint, error) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var p store.RawPoint
	var err error

	p.SourceID = cell(ColFileName)
	if p.SourceID == "" {
		return p, errors.New("empty file_name")
	}
	p.Activity = cell(ColActivityType)

	if p.Lat, err = parseFloat(ColLat, cell(ColLat)); err != nil {
		return p, err
	}
	if p.Lon, err = parseFloat(ColLon, cell(ColLon)); err != nil {
		return p, err
	}
	if p.Distance, err = parseFloat(ColDistance, cell(ColDistance)); err != nil {
		return p, err
	}
	if p.Altitude, err = parseOptionalFloat(ColAltitude, cell(ColAltitude)); err != nil {
		return p, err
	}
	if p.Speed, err = parseOptionalFloat(ColSpeed, cell(ColSpeed)); err != nil {
		return p, err
	}
	if p.Time, err = parseOptionalTime(cell(ColTime)); err != nil {
		return p, err
	}
	return p, nil
}

func parseFloat(name, s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty %s", name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", name, s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s is not finite: %q", name, s)
	}
	return v, nil
}

func parseOptionalFloat(name, s string) (*float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	v, err := parseFloat(name, s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseTime parses a dataset timestamp and returns it in UTC
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing time %q: unknown layout", s)
}

func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
