package geotag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electronjoe/gpx2img/internal/exifgps"
	"github.com/electronjoe/gpx2img/internal/fixture"
	"github.com/electronjoe/gpx2img/internal/match"
	"github.com/electronjoe/gpx2img/internal/metrics"
	"github.com/electronjoe/gpx2img/internal/photo"
	"github.com/electronjoe/gpx2img/internal/track"
)

var t0 = time.Date(2016, 10, 10, 8, 0, 0, 0, time.UTC)

type trip struct {
	opts   Options
	near   string // 1 minute from a trackpoint
	far    string // 20 minutes from the closest trackpoint
	broken string
}

// newTrip lays out a track directory with points at T0, T0+5m and T0+20m
// and photos taken on a camera set to Kathmandu time.
func newTrip(t *testing.T) trip {
	t.Helper()
	root := t.TempDir()
	tracks := filepath.Join(root, "gpx")
	photos := filepath.Join(root, "images")
	require.NoError(t, os.Mkdir(tracks, 0o755))
	require.NoError(t, os.Mkdir(photos, 0o755))

	fixture.GPX(t, filepath.Join(tracks, "everest.gpx"), []fixture.TrackPoint{
		{Time: t0, Lat: 27.98, Lon: 86.92, Ele: fixture.Elevation(5364)},
		{Time: t0.Add(5 * time.Minute), Lat: -25.23009527, Lon: 86.93, Ele: fixture.Elevation(5380.4)},
		{Time: t0.Add(20 * time.Minute), Lat: 28.0, Lon: 86.94},
	})

	loc, err := time.LoadLocation("Asia/Kathmandu")
	require.NoError(t, err)

	// The camera stores wall clock only; fixture.JPEG writes t's wall clock.
	wall := func(d time.Duration) time.Time {
		l := t0.Add(d).In(loc)
		return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), 0, time.UTC)
	}

	tr := trip{
		opts: Options{
			TrackDir:  tracks,
			PhotoDir:  photos,
			Location:  loc,
			Tolerance: match.DefaultTolerance,
		},
		near:   filepath.Join(photos, "IMG_0001.JPG"),
		far:    filepath.Join(photos, "IMG_0002.JPG"),
		broken: filepath.Join(photos, "IMG_0003.JPG"),
	}
	fixture.JPEG(t, tr.near, "Canon EOS 70D", wall(6*time.Minute))
	fixture.JPEG(t, tr.far, "Canon EOS 70D", wall(40*time.Minute))
	require.NoError(t, os.WriteFile(tr.broken, []byte("not a jpeg"), 0o644))
	return tr
}

func TestRun_Commit(t *testing.T) {
	tr := newTrip(t)
	tr.opts.Commit = true
	rec := metrics.New()

	sum, err := NewRunner(tr.opts, zerolog.Nop(), rec).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Photos: 3, Tagged: 1, OutOfTolerance: 1, Failed: 1}, sum)

	pos, ok, err := exifgps.Read(tr.near)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, -25.23009527, pos.Latitude, 1e-8)
	assert.InDelta(t, 86.93, pos.Longitude, 1e-8)
	require.NotNil(t, pos.Elevation)
	assert.Equal(t, 5380.0, *pos.Elevation)

	_, ok, err = exifgps.Read(tr.far)
	require.NoError(t, err)
	assert.False(t, ok, "out of tolerance photo must stay untagged")

	series, err := testutil.GatherAndCount(rec.Registry(), "gpx2img_photos_total")
	require.NoError(t, err)
	assert.Equal(t, 3, series, "one series per outcome seen")
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	tr := newTrip(t)
	before, err := os.ReadFile(tr.near)
	require.NoError(t, err)

	var applied []string
	runner := NewRunner(tr.opts, zerolog.Nop(), nil).WithApply(func(path string, _ exifgps.Position) error {
		applied = append(applied, path)
		return nil
	})
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Planned)
	assert.Zero(t, sum.Tagged)
	assert.Empty(t, applied)

	after, err := os.ReadFile(tr.near)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_WiderToleranceAcceptsFarPhoto(t *testing.T) {
	tr := newTrip(t)
	tr.opts.Commit = true
	tr.opts.Tolerance = 30 * time.Minute

	sum, err := NewRunner(tr.opts, zerolog.Nop(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Tagged)
}

func TestRun_OffsetShiftsCaptureTime(t *testing.T) {
	tr := newTrip(t)
	tr.opts.Commit = true
	// The far photo is 40 minutes after T0; pulling it back 20 minutes lands on T0+20m.
	tr.opts.Offset = -20 * time.Minute

	var got []exifgps.Position
	runner := NewRunner(tr.opts, zerolog.Nop(), nil).WithApply(func(path string, pos exifgps.Position) error {
		if path == tr.far {
			got = append(got, pos)
		}
		return nil
	})
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.InDelta(t, 28.0, got[0].Latitude, 1e-9)
	assert.Nil(t, got[0].Elevation)
}

func TestRun_SkipsAlreadyTagged(t *testing.T) {
	tr := newTrip(t)
	tr.opts.Commit = true
	require.NoError(t, exifgps.Apply(tr.near, exifgps.Position{Latitude: 1, Longitude: 1}))

	sum, err := NewRunner(tr.opts, zerolog.Nop(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.AlreadyTagged)
	assert.Zero(t, sum.Tagged)

	pos, _, err := exifgps.Read(tr.near)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pos.Latitude, 1e-8)

	tr.opts.Overwrite = true
	sum, err = NewRunner(tr.opts, zerolog.Nop(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Tagged)
}

func TestRun_WriteFailureIsIsolated(t *testing.T) {
	tr := newTrip(t)
	tr.opts.Commit = true
	tr.opts.Tolerance = time.Hour

	calls := 0
	runner := NewRunner(tr.opts, zerolog.Nop(), nil).WithApply(func(path string, _ exifgps.Position) error {
		calls++
		if path == tr.near {
			return exifgps.ErrMetadataWrite
		}
		return nil
	})
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, sum.Tagged)
	assert.Equal(t, 2, sum.Failed)
}

func TestRun_NoTrackpoints(t *testing.T) {
	tr := newTrip(t)
	tr.opts.TrackDir = t.TempDir()

	_, err := NewRunner(tr.opts, zerolog.Nop(), nil).Run(context.Background())
	assert.ErrorIs(t, err, track.ErrEmptyIndex)
}

func TestRun_Cancelled(t *testing.T) {
	tr := newTrip(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := NewRunner(tr.opts, zerolog.Nop(), nil).Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, sum.Photos)
}

func TestRun_UsesCache(t *testing.T) {
	tr := newTrip(t)
	tr.opts.CachePath = filepath.Join(t.TempDir(), "cache.json")

	_, err := NewRunner(tr.opts, zerolog.Nop(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, tr.opts.CachePath)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "tagged", Tagged.String())
	assert.Equal(t, "unmatched", Unmatched.String())
	assert.Equal(t, "state(99)", State(99).String())
}

func TestProcess_FinalStates(t *testing.T) {
	tr := newTrip(t)
	index, err := track.Build(tr.opts.TrackDir, zerolog.Nop())
	require.NoError(t, err)
	matcher := match.New(index, tr.opts.Tolerance)
	loader, err := photo.NewLoader(tr.opts.Location, "")
	require.NoError(t, err)

	dry := NewRunner(tr.opts, zerolog.Nop(), nil)
	state, outcome, err := dry.process(loader, matcher, tr.near)
	require.NoError(t, err)
	assert.Equal(t, Matched, state)
	assert.Equal(t, metrics.OutcomePlanned, outcome)

	state, outcome, err = dry.process(loader, matcher, tr.far)
	require.NoError(t, err)
	assert.Equal(t, Unmatched, state)
	assert.Equal(t, metrics.OutcomeOutOfTolerance, outcome)

	state, _, err = dry.process(loader, matcher, tr.broken)
	assert.Error(t, err)
	assert.Equal(t, Unprocessed, state)

	tr.opts.Commit = true
	commit := NewRunner(tr.opts, zerolog.Nop(), nil)
	state, outcome, err = commit.process(loader, matcher, tr.near)
	require.NoError(t, err)
	assert.Equal(t, Tagged, state)
	assert.Equal(t, metrics.OutcomeTagged, outcome)

	fresh, err := photo.NewLoader(tr.opts.Location, "")
	require.NoError(t, err)
	state, outcome, err = commit.process(fresh, matcher, tr.near)
	require.NoError(t, err)
	assert.Equal(t, Skipped, state)
	assert.Equal(t, metrics.OutcomeAlreadyTagged, outcome)
}
