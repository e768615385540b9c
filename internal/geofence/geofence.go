package geofence

import "encoding/json"

// Point is a coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Fence decides whether a coordinate falls inside one of the served areas.
type Fence struct {
	polygons [][]Point
}

// New creates a fence from one or more polygons. A fence with no polygons
// allows every location.
func New(polygons ...[]Point) *Fence {
	return &Fence{polygons: polygons}
}

// Parse builds a fence from a JSON array of polygons
// ([[{"lat":..,"lng":..},...],...]), the SERVICE_AREA_FILE format.
func Parse(data []byte) (*Fence, error) {
	var polygons [][]Point
	if err := json.Unmarshal(data, &polygons); err != nil {
		return nil, err
	}
	return &Fence{polygons: polygons}, nil
}

// IsLocationAllowed reports whether (lat,lng) may be served.
func (f *Fence) IsLocationAllowed(lat, lng float64) bool {
	if len(f.polygons) == 0 {
		return true
	}
	for _, poly := range f.polygons {
		if contains(poly, lat, lng) {
			return true
		}
	}
	return false
}

// contains is a standard ray-casting point-in-polygon test.
func contains(poly []Point, lat, lng float64) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		pi, pj := poly[i], poly[j]
		if (pi.Lat > lat) != (pj.Lat > lat) &&
			lng < (pj.Lng-pi.Lng)*(lat-pi.Lat)/(pj.Lat-pi.Lat)+pi.Lng {
			inside = !inside
		}
		j = i
	}
	return inside
}
