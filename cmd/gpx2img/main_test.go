package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electronjoe/gpx2img/internal/exifgps"
	"github.com/electronjoe/gpx2img/internal/fixture"
)

// newTrip isolates HOME and returns a track directory with two points and a
// photo directory with one photo taken close to the first point and one far
// from every point.
func newTrip(t *testing.T) (tracks, photos string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"TRACKS", "PHOTOS", "TIMEZONE", "TOLERANCE", "OFFSET", "COMMIT", "OVERWRITE", "LOG_LEVEL", "PUSHGATEWAY", "CACHE"} {
		t.Setenv("GPX2IMG_"+key, "")
	}

	root := t.TempDir()
	tracks = filepath.Join(root, "gpx")
	photos = filepath.Join(root, "images")
	require.NoError(t, os.Mkdir(tracks, 0o755))
	require.NoError(t, os.Mkdir(photos, 0o755))

	start := time.Date(2016, 10, 10, 8, 0, 0, 0, time.UTC)
	fixture.GPX(t, filepath.Join(tracks, "day.gpx"), []fixture.TrackPoint{
		{Time: start, Lat: 27.98, Lon: 86.92, Ele: fixture.Elevation(5364)},
		{Time: start.Add(5 * time.Minute), Lat: 27.99, Lon: 86.93},
	})
	fixture.JPEG(t, filepath.Join(photos, "near.jpg"), "X100", start.Add(time.Minute))
	fixture.JPEG(t, filepath.Join(photos, "far.jpg"), "X100", start.Add(3*time.Hour))
	return tracks, photos
}

func TestRun_ExitStatus(t *testing.T) {
	tests := []struct {
		name string
		args func(tracks, photos string) []string
		want int
	}{
		{
			name: "help",
			args: func(_, _ string) []string { return []string{"--help"} },
			want: 0,
		},
		{
			name: "unknown flag",
			args: func(_, _ string) []string { return []string{"--bogus"} },
			want: 2,
		},
		{
			name: "dry run with unmatched photo",
			args: func(tracks, photos string) []string {
				return []string{"--tracks", tracks, "--photos", photos, "--cache", "off"}
			},
			want: 0,
		},
		{
			name: "commit and dry run together",
			args: func(tracks, photos string) []string {
				return []string{"--tracks", tracks, "--photos", photos, "--commit", "--dry-run"}
			},
			want: 1,
		},
		{
			name: "missing photo directory",
			args: func(tracks, photos string) []string {
				return []string{"--tracks", tracks, "--photos", filepath.Join(photos, "nope")}
			},
			want: 1,
		},
		{
			name: "no trackpoints",
			args: func(_, photos string) []string {
				return []string{"--tracks", t.TempDir(), "--photos", photos, "--cache", "off"}
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracks, photos := newTrip(t)
			assert.Equal(t, tt.want, run(tt.args(tracks, photos)))
		})
	}
}

func TestRun_CommitTagsMatchedPhoto(t *testing.T) {
	tracks, photos := newTrip(t)

	code := run([]string{"--tracks", tracks, "--photos", photos, "--commit", "--cache", "off"})
	require.Equal(t, 0, code)

	pos, ok, err := exifgps.Read(filepath.Join(photos, "near.jpg"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 27.98, pos.Latitude, 1e-8)

	_, ok, err = exifgps.Read(filepath.Join(photos, "far.jpg"))
	require.NoError(t, err)
	assert.False(t, ok)
}
