// Package fixture writes small track logs and photos for tests.
package fixture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dsoprea/go-exif/v2"
	exifcommon "github.com/dsoprea/go-exif/v2/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"
	"github.com/stretchr/testify/require"
)

// ExifTimeLayout is the EXIF DateTime wall-clock layout.
const ExifTimeLayout = "2006:01:02 15:04:05"

// TrackPoint is one <trkpt> element.
type TrackPoint struct {
	Time time.Time
	Lat  float64
	Lon  float64
	Ele  *float64
}

// Elevation returns a pointer to meters.
func Elevation(meters float64) *float64 {
	return &meters
}

// GPX writes a GPX 1.1 file with one track holding the given segments.
func GPX(t testing.TB, path string, segments ...[]TrackPoint) {
	t.Helper()

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<gpx version="1.1" creator="fixture" xmlns="http://www.topografix.com/GPX/1/1">` + "\n")
	b.WriteString("<trk><name>fixture</name>\n")
	for _, seg := range segments {
		b.WriteString("<trkseg>\n")
		for _, p := range seg {
			fmt.Fprintf(&b, `<trkpt lat="%.8f" lon="%.8f">`, p.Lat, p.Lon)
			if p.Ele != nil {
				fmt.Fprintf(&b, "<ele>%.2f</ele>", *p.Ele)
			}
			if !p.Time.IsZero() {
				fmt.Fprintf(&b, "<time>%s</time>", p.Time.UTC().Format(time.RFC3339))
			}
			b.WriteString("</trkpt>\n")
		}
		b.WriteString("</trkseg>\n")
	}
	b.WriteString("</trk>\n</gpx>\n")

	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

// NMEASentence wraps body (without '$' and checksum) into a full sentence.
func NMEASentence(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

// JPEG writes a tiny JPEG carrying a camera model in IFD0 and, when taken is
// non-zero, its wall clock as DateTimeOriginal.
func JPEG(t testing.TB, path, model string, taken time.Time) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(buf.Bytes())
	require.NoError(t, err)
	sl, ok := mc.(*jpegstructure.SegmentList)
	require.True(t, ok)

	im := exif.NewIfdMappingWithStandard()
	ti := exif.NewTagIndex()
	require.NoError(t, exif.LoadStandardTags(ti))

	rootIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	require.NoError(t, rootIb.SetStandardWithName("Model", model))

	if !taken.IsZero() {
		exifIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
		require.NoError(t, err)
		require.NoError(t, exifIb.SetStandardWithName("DateTimeOriginal", taken.Format(ExifTimeLayout)))
	}
	require.NoError(t, sl.SetExif(rootIb))

	var out bytes.Buffer
	require.NoError(t, sl.Write(&out))
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
}

// PlainJPEG writes a JPEG with no EXIF segment at all.
func PlainJPEG(t testing.TB, path string) {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}
