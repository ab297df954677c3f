package source

import (
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"trailmetrics/internal/store"
)

// MaxGPXStep is the longest step kept when cumulating GPX distance; longer
// steps are GPS jumps and add nothing
const MaxGPXStep = 200.0

// Speeds in velocity_smooth below this are m/s, otherwise already km/h
const velocityUnitCutoff = 50.0

type gpxFile struct {
	XMLName xml.Name   `xml:"gpx"`
	Creator string     `xml:"creator,attr"`
	Tracks  []gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Name     string       `xml:"name"`
	Type     string       `xml:"type"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat        float64    `xml:"lat,attr"`
	Lon        float64    `xml:"lon,attr"`
	Ele        *float64   `xml:"ele"`
	Time       *time.Time `xml:"time"`
	Extensions *xmlNode   `xml:"extensions"`
}

// xmlNode captures arbitrary, possibly namespaced, extension elements
type xmlNode struct {
	XMLName  xml.Name
	Value    string    `xml:",chardata"`
	Children []xmlNode `xml:",any"`
}

// find returns the first descendant whose local name contains name
func (n *xmlNode) find(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for i := range n.Children {
		c := &n.Children[i]
		if strings.Contains(c.XMLName.Local, name) {
			return strings.TrimSpace(c.Value), true
		}
		if v, ok := c.find(name); ok {
			return v, true
		}
	}
	return "", false
}

// GPXSource reads every .gpx file below Root. Root may also be a single
// file.
type GPXSource struct {
	Root string
}

// NewGPXSource creates a source for the GPX tree at root
func NewGPXSource(root string) *GPXSource {
	return &GPXSource{Root: root}
}

func (s *GPXSource) Name() string {
	return "gpx:" + s.Root
}

// Load walks Root in lexical order. A file that cannot be parsed is
// skipped and reported; it never fails the batch.
func (s *GPXSource) Load(ctx context.Context) (*Batch, error) {
	batch := &Batch{}
	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".gpx") {
			return nil
		}

		rel, err := filepath.Rel(s.Root, path)
		if err != nil || rel == "." {
			rel = filepath.Base(path)
		}
		rel = filepath.ToSlash(rel)

		points, err := readGPXFile(path, rel)
		if err != nil {
			batch.Skipped = append(batch.Skipped, Skip{Ref: rel, Err: err})
			return nil
		}
		batch.Points = append(batch.Points, points...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.Root, err)
	}
	return batch, nil
}

func readGPXFile(path, name string) ([]store.RawPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseGPX(f, name)
}

// ParseGPX converts the tracks of one GPX document to raw points.
//
// Each track is one trace with source id name, or name#N (1-based) when
// the file holds several tracks. Distance is cumulated per track from
// 3D steps between consecutive points of a segment; steps of MaxGPXStep or
// more are dropped. Speed comes from a velocity_smooth or speed extension
// and is nil otherwise.
func ParseGPX(r io.Reader, name string) ([]store.RawPoint, error) {
	var doc gpxFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding gpx: %w", err)
	}

	var points []store.RawPoint
	for ti, trk := range doc.Tracks {
		sourceID := name
		if len(doc.Tracks) > 1 {
			sourceID = fmt.Sprintf("%s#%d", name, ti+1)
		}

		var cumulative float64
		for _, seg := range trk.Segments {
			var prev *gpxPoint
			for i := range seg.Points {
				pt := &seg.Points[i]
				if prev != nil {
					if d := step3D(prev, pt); d >= 0 && d < MaxGPXStep {
						cumulative += d
					}
				}

				p := store.RawPoint{
					SourceID: sourceID,
					Activity: trk.Type,
					Lat:      pt.Lat,
					Lon:      pt.Lon,
					Altitude: pt.Ele,
					Distance: cumulative,
					Speed:    extensionSpeed(pt.Extensions),
				}
				if pt.Time != nil {
					t := pt.Time.UTC()
					p.Time = &t
				}
				points = append(points, p)
				prev = pt
			}
		}
	}
	return points, nil
}

// step3D is the haversine distance combined with the elevation change
// when both elevations are known
func step3D(a, b *gpxPoint) float64 {
	d := geo.Distance(orb.Point{a.Lon, a.Lat}, orb.Point{b.Lon, b.Lat})
	if a.Ele != nil && b.Ele != nil {
		d = math.Hypot(d, *b.Ele-*a.Ele)
	}
	return d
}

// extensionSpeed reads a speed extension in km/h
func extensionSpeed(ext *xmlNode) *float64 {
	if raw, ok := ext.find("velocity_smooth"); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			if v < velocityUnitCutoff {
				v *= 3.6
			}
			return &v
		}
	}
	// Garmin TrackPointExtension speed is m/s
	if raw, ok := ext.find("speed"); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			v *= 3.6
			return &v
		}
	}
	return nil
}

// WriteDatasetCSV writes points in the flat dataset layout read by
// CSVSource. dplus_m_cum is the running sum of positive raw altitude
// changes, reset whenever the source id changes.
func WriteDatasetCSV(w io.Writer, points []store.RawPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DatasetHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	var dplus float64
	var prevAlt *float64
	row := make([]string, len(DatasetHeader))
	for i, p := range points {
		if i == 0 || points[i-1].SourceID != p.SourceID {
			dplus = 0
			prevAlt = nil
		}
		if p.Altitude != nil && prevAlt != nil && *p.Altitude > *prevAlt {
			dplus += *p.Altitude - *prevAlt
		}
		if p.Altitude != nil {
			prevAlt = p.Altitude
		}

		row[0] = p.SourceID
		row[1] = p.Activity
		row[2] = strconv.FormatFloat(p.Lat, 'f', -1, 64)
		row[3] = strconv.FormatFloat(p.Lon, 'f', -1, 64)
		row[4] = formatOptional(p.Altitude, 2)
		row[5] = strconv.FormatFloat(p.Distance, 'f', 2, 64)
		row[6] = strconv.FormatFloat(dplus, 'f', 2, 64)
		row[7] = formatOptional(p.Speed, 2)
		row[8] = ""
		if p.Time != nil {
			row[8] = p.Time.UTC().Format(time.RFC3339Nano)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatOptional(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
