package match

import (
	"errors"
	"sort"
	"time"

	"github.com/electronjoe/gpx2img/internal/track"
)

// DefaultTolerance is the largest accepted gap between capture time and
// trackpoint.
const DefaultTolerance = 10 * time.Minute

// ErrEmptyHaystack is returned when there is no timestamp to search.
var ErrEmptyHaystack = errors.New("no timestamps to search")

// Nearest returns the timestamp in ordered closest to query and its absolute
// distance. ordered must be sorted ascending. When two timestamps are equally
// close the earlier one wins.
func Nearest(query time.Time, ordered []time.Time) (time.Time, time.Duration, error) {
	if len(ordered) == 0 {
		return time.Time{}, 0, ErrEmptyHaystack
	}

	// First timestamp at or after query.
	i := sort.Search(len(ordered), func(i int) bool {
		return !ordered[i].Before(query)
	})

	switch i {
	case 0:
		return ordered[0], ordered[0].Sub(query), nil
	case len(ordered):
		last := ordered[len(ordered)-1]
		return last, query.Sub(last), nil
	}

	before, after := ordered[i-1], ordered[i]
	dBefore, dAfter := query.Sub(before), after.Sub(query)
	if dBefore <= dAfter {
		return before, dBefore, nil
	}
	return after, dAfter, nil
}

// Result is the outcome of matching one capture time.
type Result struct {
	Point    track.Point
	Distance time.Duration
	Accepted bool // false when Distance exceeds the tolerance
}

// Matcher pairs capture times with the closest trackpoint of an index.
type Matcher struct {
	index     *track.Index
	tolerance time.Duration
}

// New returns a Matcher over index. A negative tolerance is treated as zero.
func New(index *track.Index, tolerance time.Duration) *Matcher {
	if tolerance < 0 {
		tolerance = 0
	}
	return &Matcher{index: index, tolerance: tolerance}
}

// Tolerance returns the largest accepted distance.
func (m *Matcher) Tolerance() time.Duration {
	return m.tolerance
}

// Match finds the trackpoint closest to query. An out-of-tolerance match is
// not an error; it is reported with Accepted set to false.
func (m *Matcher) Match(query time.Time) (Result, error) {
	found, distance, err := Nearest(query, m.index.Times())
	if err != nil {
		return Result{}, err
	}

	point, _ := m.index.Point(found)
	return Result{
		Point:    point,
		Distance: distance,
		Accepted: distance <= m.tolerance,
	}, nil
}
