package track

import (
	"fmt"

	"github.com/tkrajina/gpxgo/gpx"
)

// parseGPX flattens tracks, segments and points of a GPX file.
func parseGPX(path string) ([]Point, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse GPX: %w", err)
	}

	var points []Point
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				pt := Point{
					Time:      p.Timestamp,
					Latitude:  p.Latitude,
					Longitude: p.Longitude,
					Source:    path,
				}
				if p.Elevation.NotNull() {
					ele := p.Elevation.Value()
					pt.Elevation = &ele
				}
				points = append(points, pt)
			}
		}
	}
	return points, nil
}
