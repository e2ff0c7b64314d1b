package gis

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// BufferGeometry grows a polygonal geometry by a distance in map units. The
// geometry is handed to the geometry engine as WKT and comes back as GeoJSON,
// so the result may merge touching polygons.
func BufferGeometry(geom orb.Geometry, crs string, distance float64) (orb.Geometry, error) {
	RegisterDrivers()

	var sr *godal.SpatialRef
	if crs != "" {
		var err error
		sr, err = NewSpatialRef(crs)
		if err != nil {
			return nil, fmt.Errorf("parsing crs: %w", err)
		}
		defer sr.Close()
	}

	g, err := godal.NewGeometryFromWKT(wkt.MarshalString(geom), sr)
	if err != nil {
		return nil, fmt.Errorf("parsing geometry: %w", err)
	}
	defer g.Close()

	buffered, err := g.Buffer(distance, 30)
	if err != nil {
		return nil, fmt.Errorf("buffering geometry: %w", err)
	}
	defer buffered.Close()

	encoded, err := buffered.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding buffered geometry: %w", err)
	}
	decoded, err := geojson.UnmarshalGeometry([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decoding buffered geometry: %w", err)
	}
	return decoded.Geometry(), nil
}
