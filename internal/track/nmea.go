package track

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// parseNMEA reads a logged NMEA stream. RMC sentences provide the date,
// time and position of each fix; GGA sentences with the same time of day,
// before or after their RMC, add the altitude. Void fixes and sentences
// that fail to parse are ignored.
func parseNMEA(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open NMEA log: %w", err)
	}
	defer f.Close()

	var (
		points []Point
		// GGA altitudes not yet matched to an RMC fix, keyed by time of day.
		// GGA carries no date, so a log may emit it before the RMC that dates it.
		pending = make(map[time.Duration]float64)
		lastTOD time.Duration
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}

		switch m := sentence.(type) {
		case nmea.RMC:
			if m.Validity != nmea.ValidRMC || !m.Date.Valid || !m.Time.Valid {
				continue
			}
			pt := Point{
				Time:      nmeaTime(m.Date, m.Time),
				Latitude:  m.Latitude,
				Longitude: m.Longitude,
				Source:    path,
			}
			lastTOD = timeOfDay(m.Time)
			if alt, ok := pending[lastTOD]; ok {
				pt.Elevation = &alt
			}
			// Anything left belongs to an epoch without a valid RMC.
			clear(pending)
			points = append(points, pt)

		case nmea.GGA:
			if m.FixQuality == nmea.Invalid || !m.Time.Valid {
				continue
			}
			alt := m.Altitude
			tod := timeOfDay(m.Time)
			if n := len(points); n > 0 && lastTOD == tod {
				points[n-1].Elevation = &alt
				continue
			}
			pending[tod] = alt
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read NMEA log: %w", err)
	}
	return points, nil
}

func nmeaTime(d nmea.Date, t nmea.Time) time.Time {
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}

func timeOfDay(t nmea.Time) time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Millisecond)*time.Millisecond
}
