package exifgps

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/dsoprea/go-exif/v2"
	exifcommon "github.com/dsoprea/go-exif/v2/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"

	"github.com/electronjoe/gpx2img/internal/coord"
)

var (
	// ErrMetadataRead is returned when a photo's metadata cannot be loaded.
	ErrMetadataRead = errors.New("read metadata")
	// ErrMetadataWrite is returned when merged metadata cannot be written back.
	ErrMetadataWrite = errors.New("write metadata")
)

const gpsIfdPath = "IFD/GPSInfo"

// gpsVersion is written as GPSVersionID.
var gpsVersion = []uint8{2, 0, 0, 0}

// Position is the location written into a photo.
type Position struct {
	Latitude  float64
	Longitude float64
	Elevation *float64
}

// Apply replaces the GPS IFD of the JPEG at path with pos, keeping every
// other IFD. The file is read completely before anything is written and is
// replaced atomically.
func Apply(path string, pos Position) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataRead, err)
	}

	sl, err := parseJpeg(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMetadataRead, path, err)
	}

	rootIb, err := rootBuilder(sl)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMetadataRead, path, err)
	}

	gpsIb, err := freshGPSBuilder(rootIb)
	if err != nil {
		return fmt.Errorf("%w: %s: gps ifd: %w", ErrMetadataWrite, path, err)
	}
	if err := setPosition(gpsIb, pos); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMetadataWrite, path, err)
	}

	if err := sl.SetExif(rootIb); err != nil {
		return fmt.Errorf("%w: %s: set exif: %w", ErrMetadataWrite, path, err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return fmt.Errorf("%w: %s: encode jpeg: %w", ErrMetadataWrite, path, err)
	}

	if err := replaceFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataWrite, err)
	}
	return nil
}

func parseJpeg(data []byte) (*jpegstructure.SegmentList, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errors.New("not a JPEG file")
	}

	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse jpeg: %w", err)
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("parse jpeg: unexpected media context %T", mc)
	}
	return sl, nil
}

// rootBuilder rebuilds the existing IFD chain, or starts an empty one when
// the JPEG has no EXIF segment.
func rootBuilder(sl *jpegstructure.SegmentList) (*exif.IfdBuilder, error) {
	if _, _, err := sl.FindExif(); err != nil {
		if !errors.Is(err, exif.ErrNoExif) {
			return nil, fmt.Errorf("find exif: %w", err)
		}

		im := exif.NewIfdMappingWithStandard()
		ti := exif.NewTagIndex()
		if err := exif.LoadStandardTags(ti); err != nil {
			return nil, fmt.Errorf("load standard tags: %w", err)
		}
		return exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
	}

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		return nil, fmt.Errorf("decode exif: %w", err)
	}
	return rootIb, nil
}

// freshGPSBuilder drops any existing GPS IFD from the root and attaches an
// empty one, so no tag from a previous position survives.
func freshGPSBuilder(rootIb *exif.IfdBuilder) (*exif.IfdBuilder, error) {
	if _, err := rootIb.DeleteAll(exifcommon.IfdGpsInfoStandardIfdIdentity.TagId()); err != nil {
		return nil, fmt.Errorf("drop gps ifd: %w", err)
	}
	return exif.GetOrCreateIbFromRootIb(rootIb, gpsIfdPath)
}

func setPosition(ib *exif.IfdBuilder, pos Position) error {
	if err := ib.SetStandardWithName("GPSVersionID", gpsVersion); err != nil {
		return fmt.Errorf("GPSVersionID: %w", err)
	}

	if pos.Elevation != nil {
		// Below sea level has no encoding here, so such altitudes are left out.
		if alt, err := coord.Altitude(*pos.Elevation); err == nil {
			rat, err := rational(alt)
			if err != nil {
				return fmt.Errorf("GPSAltitude: %w", err)
			}
			if err := ib.SetStandardWithName("GPSAltitudeRef", []uint8{0}); err != nil {
				return fmt.Errorf("GPSAltitudeRef: %w", err)
			}
			if err := ib.SetStandardWithName("GPSAltitude", []exifcommon.Rational{rat}); err != nil {
				return fmt.Errorf("GPSAltitude: %w", err)
			}
		}
	}

	if err := setCoordinate(ib, "GPSLatitude", pos.Latitude, coord.Latitude); err != nil {
		return err
	}
	return setCoordinate(ib, "GPSLongitude", pos.Longitude, coord.Longitude)
}

func setCoordinate(ib *exif.IfdBuilder, name string, value float64, axis coord.Axis) error {
	ref, parts, err := coord.Encode(value, axis)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	// Zero sits on the equator or prime meridian; either reference is correct.
	if ref == "" {
		ref = axis.References()[1]
	}

	rats := make([]exifcommon.Rational, 0, len(parts))
	for _, p := range parts {
		rat, err := rational(p)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		rats = append(rats, rat)
	}

	if err := ib.SetStandardWithName(name+"Ref", ref); err != nil {
		return fmt.Errorf("%sRef: %w", name, err)
	}
	if err := ib.SetStandardWithName(name, rats); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// rational narrows f to the unsigned 32-bit EXIF RATIONAL type.
func rational(f coord.Fraction) (exifcommon.Rational, error) {
	if f.Num < 0 || f.Num > math.MaxUint32 || f.Den <= 0 || f.Den > math.MaxUint32 {
		return exifcommon.Rational{}, fmt.Errorf("%w: %s does not fit an EXIF rational", coord.ErrInvalidNumber, f)
	}
	return exifcommon.Rational{Numerator: uint32(f.Num), Denominator: uint32(f.Den)}, nil
}

// replaceFile writes data next to path and renames it into place, keeping
// the original permissions.
func replaceFile(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
