package geo

import (
	"encoding/json"
	"math"
)

const earthRadiusKm = 6371.0088

// CirclePoints is the number of distinct vertices in a synthesized circle.
const CirclePoints = 28

type polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// Destination returns the point reached travelling distanceKm from (lat, lng)
// along the initial bearing (degrees from north) on a great circle.
func Destination(lat, lng, bearingDeg, distanceKm float64) (float64, float64) {
	lat1 := radians(lat)
	lng1 := radians(lng)
	bearing := radians(bearingDeg)
	angular := distanceKm / earthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) + math.Cos(lat1)*math.Sin(angular)*math.Cos(bearing))
	lng2 := lng1 + math.Atan2(math.Sin(bearing)*math.Sin(angular)*math.Cos(lat1), math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2))

	return degrees(lat2), math.Mod(degrees(lng2)+540, 360) - 180
}

// DistanceKm is the haversine distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	p1, p2 := radians(lat1), radians(lat2)
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// CirclePolygon builds a GeoJSON Polygon approximating a circle of radiusKm
// around the centre. The ring has CirclePoints vertices plus the closing one.
func CirclePolygon(lat, lng, radiusKm float64) (json.RawMessage, error) {
	ring := make([][2]float64, 0, CirclePoints+1)
	for i := 0; i < CirclePoints; i++ {
		bearing := float64(i) * 360 / CirclePoints
		pLat, pLng := Destination(lat, lng, bearing, radiusKm)
		ring = append(ring, [2]float64{round6(pLng), round6(pLat)})
	}
	ring = append(ring, ring[0])
	return json.Marshal(polygon{Type: "Polygon", Coordinates: [][][2]float64{ring}})
}

// ValidPolygon reports whether raw is a GeoJSON Polygon or MultiPolygon
// object with at least one ring.
func ValidPolygon(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var probe struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	switch probe.Type {
	case "Polygon":
		var rings [][][]float64
		return json.Unmarshal(probe.Coordinates, &rings) == nil && len(rings) > 0 && len(rings[0]) >= 4
	case "MultiPolygon":
		var polys [][][][]float64
		return json.Unmarshal(probe.Coordinates, &polys) == nil && len(polys) > 0 && len(polys[0]) > 0
	}
	return false
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
