// Package polyline implements the encoded polyline algorithm format at
// precision 1e-5. Coordinates are encoded as (lat,lng) pairs.
package polyline

import (
	"fmt"
	"math"

	"trackly/internal/geo"
)

const (
	precision = 1e5
	// a 32-bit value never needs more than 7 five-bit chunks
	maxChunks = 7
)

// DecodeError reports a malformed polyline string.
type DecodeError struct {
	Pos    int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("polyline: %s at offset %d", e.Reason, e.Pos)
}

// Decode converts an encoded polyline into points in encoded order.
// An empty string decodes to an empty slice.
func Decode(encoded string) ([]geo.Point, error) {
	points := make([]geo.Point, 0, len(encoded)/4)
	index, lat, lng := 0, 0, 0

	for index < len(encoded) {
		dLat, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		if next >= len(encoded) {
			return nil, &DecodeError{Pos: next, Reason: "missing longitude"}
		}
		dLng, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next
		lat += dLat
		lng += dLng

		points = append(points, geo.Point{
			Lat: float64(lat) / precision,
			Lng: float64(lng) / precision,
		})
	}

	return points, nil
}

// decodeValue reads one zigzag varint starting at index and returns it along
// with the offset of the next value.
func decodeValue(encoded string, index int) (int, int, error) {
	shift, result := 0, 0
	for chunk := 0; ; chunk++ {
		if index >= len(encoded) {
			return 0, index, &DecodeError{Pos: index, Reason: "premature end of input"}
		}
		if chunk == maxChunks {
			return 0, index, &DecodeError{Pos: index, Reason: "value too long"}
		}
		c := encoded[index]
		if c < 63 || c > 126 {
			return 0, index, &DecodeError{Pos: index, Reason: fmt.Sprintf("invalid character %q", c)}
		}
		b := int(c) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode is the inverse of Decode.
func Encode(points []geo.Point) string {
	if len(points) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(points)*6)
	prevLat, prevLng := 0, 0
	for _, p := range points {
		lat := int(math.Round(p.Lat * precision))
		lng := int(math.Round(p.Lng * precision))

		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lng-prevLng)

		prevLat, prevLng = lat, lng
	}
	return string(buf)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}
	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}
