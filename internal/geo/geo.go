package geo

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Projection is the nearest point on a line to a query point.
type Projection struct {
	Point    Point   // nearest point on the line
	Distance float64 // meters from the query point to Point
	Index    int     // ordinal of the nearest segment/vertex along the line
	Location float64 // meters along the line from its first vertex to Point
}

// InvalidLineError is returned when a line operation gets fewer than 2 points.
type InvalidLineError struct {
	Points int
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("line needs at least 2 points, got %d", e.Points)
}

// Haversine distance in meters
func Haversine(a, b Point) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// CumDistances returns the haversine distance from line[0] to every vertex.
func CumDistances(line []Point) []float64 {
	n := len(line)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += Haversine(line[i-1], line[i])
		cum[i] = sum
	}
	return cum
}

// Length is the total length of the line in meters.
func Length(line []Point) float64 {
	cum := CumDistances(line)
	if len(cum) == 0 {
		return 0
	}
	return cum[len(cum)-1]
}

// ProjectPointOntoLine finds the point on line nearest to p.
//
// Each segment is projected in an equirectangular frame centred on p, the
// perpendicular foot clamped to the segment. The reported distance is the
// haversine distance from p to the foot. Index is the segment start vertex,
// or the segment end vertex when the foot is clamped onto it. A segment only
// replaces the current best when it is strictly closer.
func ProjectPointOntoLine(line []Point, p Point) (Projection, error) {
	n := len(line)
	if n < 2 {
		return Projection{}, &InvalidLineError{Points: n}
	}
	cum := CumDistances(line)

	cosLat0 := math.Cos(p.Lat * math.Pi / 180)
	// polyline order is (lat,lng); the planar frame is (x=lng, y=lat)
	toXY := func(q Point) (x, y float64) {
		x = (q.Lng - p.Lng) * math.Pi / 180 * earthRadiusMeters * cosLat0
		y = (q.Lat - p.Lat) * math.Pi / 180 * earthRadiusMeters
		return
	}

	best := Projection{Distance: math.Inf(1)}
	x0, y0 := toXY(line[0])
	for i := 1; i < n; i++ {
		x1, y1 := toXY(line[i])
		dx := x1 - x0
		dy := y1 - y0
		segLen2 := dx*dx + dy*dy
		t := 0.0
		if segLen2 > 0 {
			// projection of origin (p) onto segment
			t = -(x0*dx + y0*dy) / segLen2
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
		}
		a, b := line[i-1], line[i]
		foot := Point{
			Lat: a.Lat + (b.Lat-a.Lat)*t,
			Lng: a.Lng + (b.Lng-a.Lng)*t,
		}
		d := Haversine(p, foot)
		if d < best.Distance {
			idx := i - 1
			if t >= 1 {
				idx = i
			}
			best = Projection{
				Point:    foot,
				Distance: d,
				Index:    idx,
				Location: cum[i-1] + t*(cum[i]-cum[i-1]),
			}
		}
		x0, y0 = x1, y1
	}
	return best, nil
}
