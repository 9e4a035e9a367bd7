package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/electronjoe/gpx2img/internal/exifgps"
	"github.com/electronjoe/gpx2img/internal/logging"
	"github.com/electronjoe/gpx2img/internal/photo"
)

const reportFileName = "gps.json"

// ImageGPS holds the position found in one image.
type ImageGPS struct {
	Tagged    bool     `json:"tagged"`
	Latitude  float64  `json:"latitude,omitempty"`
	Longitude float64  `json:"longitude,omitempty"`
	Elevation *float64 `json:"elevation,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func main() {
	// Parse command-line flag for the photo directory
	photos := pflag.String("photos", "", "directory containing the geotagged images")
	level := pflag.String("log-level", "info", "debug, info, warn or error")
	pflag.Parse()

	log := logging.New(*level, os.Stderr)
	if *photos == "" {
		log.Fatal().Msg("Please provide a photo directory using the --photos flag")
	}

	if err := processDir(*photos, log); err != nil {
		log.Fatal().Err(err).Msg("Report failed")
	}
}

// processDir reads the GPS position of every photo in dir and writes a
// gps.json file mapping image filenames to what was found.
func processDir(dir string, log zerolog.Logger) error {
	paths, err := photo.List(dir)
	if err != nil {
		return err
	}

	report := make(map[string]ImageGPS, len(paths))
	tagged := 0
	for _, path := range paths {
		entry := ImageGPS{}
		pos, ok, err := exifgps.Read(path)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("file", path).Msg("Could not read GPS tags")
			entry.Error = err.Error()
		case ok:
			entry = ImageGPS{Tagged: true, Latitude: pos.Latitude, Longitude: pos.Longitude, Elevation: pos.Elevation}
			tagged++
		}
		report[filepath.Base(path)] = entry
	}

	jsonPath := filepath.Join(dir, reportFileName)
	jsonData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report for %s: %w", dir, err)
	}
	if err := os.WriteFile(jsonPath, jsonData, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", jsonPath, err)
	}

	log.Info().Str("file", jsonPath).Int("photos", len(paths)).Int("tagged", tagged).Msg("Wrote GPS report")
	return nil
}
