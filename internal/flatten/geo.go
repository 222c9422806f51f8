package flatten

import (
	"strconv"
	"strings"
)

type geoKind int

const (
	geoPoint geoKind = iota
	geoTrace
	geoShape
)

// coordinate is one "lat lon [alt [accuracy]]" point as written by forms.
type coordinate struct {
	lat, lon float64
	alt      *float64
	accuracy *float64
}

func parseCoordinate(text string) (coordinate, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return coordinate{}, false
	}
	values := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return coordinate{}, false
		}
		values = append(values, v)
	}
	c := coordinate{lat: values[0], lon: values[1]}
	if len(values) > 2 {
		c.alt = &values[2]
	}
	if len(values) > 3 {
		c.accuracy = &values[3]
	}
	return c, true
}

func parseCoordinates(text string) ([]coordinate, bool) {
	var out []coordinate
	for _, part := range strings.Split(text, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, ok := parseCoordinate(part)
		if !ok {
			return nil, false
		}
		out = append(out, c)
	}
	return out, len(out) > 0
}

func (c coordinate) position() []float64 {
	p := []float64{c.lon, c.lat}
	if c.alt != nil {
		p = append(p, *c.alt)
	}
	return p
}

func (c coordinate) wkt() string {
	parts := []string{formatFloat(c.lon), formatFloat(c.lat)}
	if c.alt != nil {
		parts = append(parts, formatFloat(*c.alt))
	}
	return strings.Join(parts, " ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// geometry renders a geo value as GeoJSON, or as a WKT string when wkt is
// set. Unparseable values become null.
func geometry(kind geoKind, text string, wkt bool) any {
	if kind == geoPoint {
		c, ok := parseCoordinate(text)
		if !ok {
			return nil
		}
		if wkt {
			return "POINT (" + c.wkt() + ")"
		}
		obj := NewObject()
		obj.Set("type", "Point")
		obj.Set("coordinates", c.position())
		if c.accuracy != nil {
			props := NewObject()
			props.Set("accuracy", *c.accuracy)
			obj.Set("properties", props)
		}
		return obj
	}

	coords, ok := parseCoordinates(text)
	if !ok {
		return nil
	}
	positions := make([][]float64, len(coords))
	points := make([]string, len(coords))
	for i, c := range coords {
		positions[i] = c.position()
		points[i] = c.wkt()
	}

	obj := NewObject()
	if kind == geoTrace {
		if wkt {
			return "LINESTRING (" + strings.Join(points, ", ") + ")"
		}
		obj.Set("type", "LineString")
		obj.Set("coordinates", positions)
		return obj
	}
	if wkt {
		return "POLYGON ((" + strings.Join(points, ", ") + "))"
	}
	obj.Set("type", "Polygon")
	obj.Set("coordinates", [][][]float64{positions})
	return obj
}
