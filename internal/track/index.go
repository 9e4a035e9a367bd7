package track

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang/geo/s2"
	"github.com/rs/zerolog"
)

// ErrEmptyIndex is returned when no trackpoint could be read from any log.
var ErrEmptyIndex = errors.New("no trackpoints found")

// Point is one timestamped GPS sample.
type Point struct {
	Time      time.Time
	Latitude  float64
	Longitude float64
	Elevation *float64 // nil when the log carries no elevation
	Source    string   // track log the point was read from
}

// Valid reports whether the point has a timestamp and in-range coordinates.
func (p Point) Valid() bool {
	if p.Time.IsZero() {
		return false
	}
	return s2.LatLngFromDegrees(p.Latitude, p.Longitude).IsValid()
}

// Index is a read-only pool of trackpoints searchable by instant.
//
// Points sharing an instant are all retained in parse order; Point returns
// the last one parsed.
type Index struct {
	points     map[int64][]Point
	times      []time.Time
	count      int
	collisions int
}

// New builds an index over points, in the order given.
func New(points ...Point) *Index {
	ix := &Index{points: make(map[int64][]Point)}
	for _, p := range points {
		ix.add(p)
	}
	ix.sortTimes()
	return ix
}

func (ix *Index) add(p Point) {
	key := p.Time.UnixNano()
	if len(ix.points[key]) > 0 {
		ix.collisions++
	}
	ix.points[key] = append(ix.points[key], p)
	ix.count++
}

func (ix *Index) sortTimes() {
	ix.times = make([]time.Time, 0, len(ix.points))
	for _, pts := range ix.points {
		ix.times = append(ix.times, pts[0].Time.UTC())
	}
	sort.Slice(ix.times, func(i, j int) bool {
		return ix.times[i].Before(ix.times[j])
	})
}

// Times returns the distinct timestamps in ascending order. The slice is
// shared and must not be modified.
func (ix *Index) Times() []time.Time {
	return ix.times
}

// Point returns the last parsed point recorded at instant t.
func (ix *Index) Point(t time.Time) (Point, bool) {
	pts := ix.points[t.UnixNano()]
	if len(pts) == 0 {
		return Point{}, false
	}
	return pts[len(pts)-1], true
}

// At returns every point recorded at instant t, in parse order.
func (ix *Index) At(t time.Time) []Point {
	return ix.points[t.UnixNano()]
}

// Len returns the number of distinct timestamps.
func (ix *Index) Len() int {
	return len(ix.times)
}

// Count returns the number of points indexed, colliding ones included.
func (ix *Index) Count() int {
	return ix.count
}

// Collisions returns how many points share their instant with an earlier one.
func (ix *Index) Collisions() int {
	return ix.collisions
}

// Bounds returns the first and last indexed timestamps.
func (ix *Index) Bounds() (time.Time, time.Time) {
	if len(ix.times) == 0 {
		return time.Time{}, time.Time{}
	}
	return ix.times[0], ix.times[len(ix.times)-1]
}

type parseFunc func(path string) ([]Point, error)

var parsers = map[string]parseFunc{
	".gpx":  parseGPX,
	".nmea": parseNMEA,
}

// IsTrackLog reports whether path has a supported track log extension.
func IsTrackLog(path string) bool {
	_, ok := parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Build reads every track log directly inside dir into a single index.
// Logs that fail to parse are reported and skipped.
func Build(dir string, log zerolog.Logger) (*Index, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read track directory %s: %w", dir, err)
	}

	ix := &Index{points: make(map[int64][]Point)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parse, ok := parsers[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		log.Info().Str("file", path).Msg("Parsing track log")

		points, err := parse(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable track log")
			continue
		}

		found, invalid := 0, 0
		for _, p := range points {
			if !p.Valid() {
				invalid++
				continue
			}
			ix.add(p)
			found++
		}

		ev := log.Info().Str("file", path).Int("points", found)
		if invalid > 0 {
			ev = ev.Int("invalid", invalid)
		}
		ev.Msg("Found points")
	}

	if ix.count == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmptyIndex, dir)
	}
	ix.sortTimes()

	if ix.collisions > 0 {
		log.Warn().Int("collisions", ix.collisions).Msg("Trackpoints share timestamps; the last parsed point wins")
	}
	return ix, nil
}
