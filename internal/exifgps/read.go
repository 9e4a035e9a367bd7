package exifgps

import (
	"fmt"
	"os"

	"github.com/rwcarlsen/goexif/exif"
)

// Read returns the GPS position embedded in the photo at path. ok is false
// when the photo carries no latitude and longitude.
func Read(path string) (pos Position, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return Position{}, false, fmt.Errorf("%w: %w", ErrMetadataRead, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return Position{}, false, fmt.Errorf("%w: %s: decode exif: %w", ErrMetadataRead, path, err)
	}

	lat, lon, err := x.LatLong()
	if err != nil {
		if exif.IsTagNotPresentError(err) {
			return Position{}, false, nil
		}
		return Position{}, false, fmt.Errorf("%w: %s: gps: %w", ErrMetadataRead, path, err)
	}
	pos = Position{Latitude: lat, Longitude: lon}

	if tag, err := x.Get(exif.GPSAltitude); err == nil {
		if r, err := tag.Rat(0); err == nil {
			alt, _ := r.Float64()
			if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
				if v, err := ref.Int(0); err == nil && v == 1 {
					alt = -alt
				}
			}
			pos.Elevation = &alt
		}
	}
	return pos, true, nil
}
