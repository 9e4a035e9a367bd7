package photo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/electronjoe/gpx2img/internal/exifgps"
)

// ErrNoCaptureTime is returned when a photo has no usable EXIF timestamp.
var ErrNoCaptureTime = errors.New("capture time not found")

const exifTimeLayout = "2006:01:02 15:04:05"

// Record holds what the geotagger needs to know about one photo.
type Record struct {
	Path      string
	TakenTime time.Time
	Model     string
	HasGPS    bool
}

// List returns the JPEG files directly inside dir, in name order.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read photo directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isImageFile(entry.Name()) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}

// isImageFile checks for the extensions the GPS writer can handle.
func isImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// Load decodes the EXIF block of the photo at path. The camera stores a
// naive wall clock, so the capture time is interpreted in loc.
func Load(path string, loc *time.Location) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", exifgps.ErrMetadataRead, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s: decode exif: %w", exifgps.ErrMetadataRead, path, err)
	}

	takenTime, err := extractTakenTime(x, loc)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", path, err)
	}

	rec := Record{
		Path:      path,
		TakenTime: takenTime,
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			rec.Model = strings.TrimSpace(s)
		}
	}
	if _, _, err := x.LatLong(); err == nil {
		rec.HasGPS = true
	}
	return rec, nil
}

// extractTakenTime prefers DateTimeOriginal and falls back to DateTime.
func extractTakenTime(x *exif.Exif, loc *time.Location) (time.Time, error) {
	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		t, err := time.ParseInLocation(exifTimeLayout, strings.TrimSpace(s), loc)
		if err != nil {
			continue
		}
		return t, nil
	}
	return time.Time{}, ErrNoCaptureTime
}
