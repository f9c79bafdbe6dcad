// Package geometry converts route paths between the GeoJSON carried on the
// wire and the WKB stored in relational columns.
package geometry

import (
	"encoding/binary"
	"fmt"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Normalize parses a GeoJSON LineString and returns its canonical encoding.
// An empty input is returned unchanged.
func Normalize(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	line, err := parseLine(raw)
	if err != nil {
		return "", err
	}
	b, err := gjson.Marshal(line)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToWKB parses a GeoJSON LineString and returns little endian WKB bytes.
func ToWKB(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	line, err := parseLine(raw)
	if err != nil {
		return nil, err
	}
	return wkb.Marshal(line, binary.LittleEndian)
}

// FromWKB converts WKB bytes into a GeoJSON string.
func FromWKB(wkbBytes []byte) (string, error) {
	if len(wkbBytes) == 0 {
		return "", nil
	}
	g, err := wkb.Unmarshal(wkbBytes)
	if err != nil {
		return "", err
	}
	b, err := gjson.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseLine(raw string) (*geom.LineString, error) {
	var g geom.T
	if err := gjson.Unmarshal([]byte(raw), &g); err != nil {
		return nil, err
	}
	line, ok := g.(*geom.LineString)
	if !ok {
		return nil, fmt.Errorf("geometry must be a LineString, got %T", g)
	}
	if line.NumCoords() < 2 {
		return nil, fmt.Errorf("LineString needs at least 2 coordinates, got %d", line.NumCoords())
	}
	return line, nil
}
