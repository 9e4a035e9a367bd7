// Package geotag runs the batch: index the track logs once, then match and
// tag each photo in turn.
package geotag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/electronjoe/gpx2img/internal/config"
	"github.com/electronjoe/gpx2img/internal/exifgps"
	"github.com/electronjoe/gpx2img/internal/match"
	"github.com/electronjoe/gpx2img/internal/metrics"
	"github.com/electronjoe/gpx2img/internal/photo"
	"github.com/electronjoe/gpx2img/internal/track"
)

// State is a photo's position in the pipeline. A dry run stops a matched
// photo in Matched; Skipped is only used for photos that already carry GPS.
type State int

const (
	Unprocessed State = iota
	TimestampExtracted
	Matched
	Unmatched
	Tagged
	Skipped
	Failed
)

func (s State) String() string {
	switch s {
	case Unprocessed:
		return "unprocessed"
	case TimestampExtracted:
		return "timestamp_extracted"
	case Matched:
		return "matched"
	case Unmatched:
		return "unmatched"
	case Tagged:
		return "tagged"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a run.
type Options struct {
	TrackDir  string
	PhotoDir  string
	Location  *time.Location
	Tolerance time.Duration
	Offset    time.Duration
	Commit    bool
	Overwrite bool
	CachePath string
}

// OptionsFromConfig resolves the run options from a loaded config.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		TrackDir:  cfg.Tracks,
		PhotoDir:  cfg.Photos,
		Location:  loc,
		Tolerance: cfg.ToleranceDuration(),
		Offset:    cfg.Offset,
		Commit:    cfg.Commit,
		Overwrite: cfg.Overwrite,
		CachePath: cfg.Cache,
	}, nil
}

// Summary counts the photos of a run by final outcome.
type Summary struct {
	Photos         int
	Tagged         int // written
	Planned        int // matched, not written because of dry-run
	AlreadyTagged  int
	OutOfTolerance int
	Failed         int
}

// ApplyFunc writes a position into a photo.
type ApplyFunc func(path string, pos exifgps.Position) error

// Runner processes one batch.
type Runner struct {
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Recorder
	apply   ApplyFunc
}

// NewRunner returns a Runner writing through exifgps.Apply.
func NewRunner(opts Options, log zerolog.Logger, rec *metrics.Recorder) *Runner {
	if rec == nil {
		rec = metrics.New()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Runner{opts: opts, log: log, metrics: rec, apply: exifgps.Apply}
}

// WithApply replaces the metadata writer.
func (r *Runner) WithApply(fn ApplyFunc) *Runner {
	r.apply = fn
	return r
}

// Run builds the track index and processes every photo. Errors from
// individual photos are logged and counted; only failures that make the
// whole batch meaningless are returned.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	r.log.Info().Str("dir", r.opts.TrackDir).Msg("Parsing GPS files")
	index, err := track.Build(r.opts.TrackDir, r.log)
	if err != nil {
		return sum, err
	}
	r.metrics.Trackpoints(index.Count())
	first, last := index.Bounds()
	r.log.Info().
		Int("points", index.Count()).
		Time("from", first).
		Time("to", last).
		Msg("Track index built")

	matcher := match.New(index, r.opts.Tolerance)

	paths, err := photo.List(r.opts.PhotoDir)
	if err != nil {
		return sum, err
	}

	loader, err := photo.NewLoader(r.opts.Location, r.opts.CachePath)
	if err != nil {
		r.log.Warn().Err(err).Msg("Capture time cache unusable, continuing without it")
		if loader, err = photo.NewLoader(r.opts.Location, ""); err != nil {
			return sum, err
		}
	}
	defer func() {
		if err := loader.Save(); err != nil {
			r.log.Warn().Err(err).Msg("Failed to save capture time cache")
		}
	}()

	if !r.opts.Commit {
		r.log.Info().Msg("Dry run: no photo will be modified (use --commit to write)")
	}

	r.log.Info().Str("dir", r.opts.PhotoDir).Int("photos", len(paths)).Msg("Parsing image files")
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		sum.Photos++
		state, outcome, err := r.process(loader, matcher, path)
		if err != nil {
			if errors.Is(err, match.ErrEmptyHaystack) {
				return sum, err
			}
			r.log.Error().Err(err).Str("file", path).Stringer("state", state).Msg("Failed to process photo")
		}

		r.metrics.Photo(outcome)
		switch outcome {
		case metrics.OutcomeTagged:
			sum.Tagged++
		case metrics.OutcomePlanned:
			sum.Planned++
		case metrics.OutcomeAlreadyTagged:
			sum.AlreadyTagged++
		case metrics.OutcomeOutOfTolerance:
			sum.OutOfTolerance++
		case metrics.OutcomeFailed:
			sum.Failed++
		}
	}

	r.log.Info().
		Int("photos", sum.Photos).
		Int("tagged", sum.Tagged).
		Int("planned", sum.Planned).
		Int("already_tagged", sum.AlreadyTagged).
		Int("out_of_tolerance", sum.OutOfTolerance).
		Int("failed", sum.Failed).
		Msg("Finished")
	return sum, nil
}

// process moves one photo through the pipeline and returns the state it
// stopped in along with the metrics outcome.
func (r *Runner) process(loader *photo.Loader, matcher *match.Matcher, path string) (State, string, error) {
	state := Unprocessed
	log := r.log.With().Str("file", path).Logger()

	rec, err := loader.Load(path)
	if err != nil {
		return state, metrics.OutcomeFailed, err
	}
	state = TimestampExtracted

	if rec.HasGPS && !r.opts.Overwrite {
		log.Info().Msg("Already geotagged, skipping (use --overwrite to replace)")
		return Skipped, metrics.OutcomeAlreadyTagged, nil
	}

	capture := rec.TakenTime.Add(r.opts.Offset)
	res, err := matcher.Match(capture)
	if err != nil {
		return state, metrics.OutcomeFailed, err
	}
	r.metrics.MatchDistance(res.Distance)

	if !res.Accepted {
		log.Warn().
			Time("taken", capture).
			Dur("distance", res.Distance).
			Dur("tolerance", matcher.Tolerance()).
			Msg("Distance bigger than tolerance, leaving photo untagged")
		return Unmatched, metrics.OutcomeOutOfTolerance, nil
	}
	state = Matched

	pos := exifgps.Position{
		Latitude:  res.Point.Latitude,
		Longitude: res.Point.Longitude,
		Elevation: res.Point.Elevation,
	}
	ev := log.Info().
		Time("taken", capture).
		Dur("distance", res.Distance).
		Float64("lat", pos.Latitude).
		Float64("lon", pos.Longitude)
	if pos.Elevation != nil {
		ev = ev.Float64("ele", *pos.Elevation)
	}

	if !r.opts.Commit {
		ev.Msg("Found good match (dry run)")
		return Matched, metrics.OutcomePlanned, nil
	}

	if err := r.apply(path, pos); err != nil {
		return state, metrics.OutcomeFailed, err
	}
	ev.Msg("Tagged")
	return Tagged, metrics.OutcomeTagged, nil
}
