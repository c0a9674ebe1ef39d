package geo_test

import (
	"math"
	"testing"

	"github.com/GeoPunch/GP-Backend/internal/geo"
)

// Office zone from the field deployment this system was built around.
var (
	zoneCenter = geo.Coordinate{Lat: 22.4994, Lng: 91.7773}
	pointEast  = geo.Coordinate{Lat: 22.4994, Lng: 91.7779} // ~67m east
	pointNorth = geo.Coordinate{Lat: 22.5010, Lng: 91.7773} // ~178m north
)

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][2]geo.Coordinate{
		{zoneCenter, pointEast},
		{zoneCenter, pointNorth},
		{{Lat: -33.8688, Lng: 151.2093}, {Lat: 51.5074, Lng: -0.1278}},
		{{Lat: 0, Lng: 179.9}, {Lat: 0, Lng: -179.9}},
	}

	for _, p := range pairs {
		ab := geo.Distance(p[0], p[1])
		ba := geo.Distance(p[1], p[0])
		if diff := math.Abs(ab - ba); diff > 1e-6*ab {
			t.Errorf("Distance(%v,%v)=%f but Distance(%v,%v)=%f", p[0], p[1], ab, p[1], p[0], ba)
		}
	}
}

func TestDistance_SelfZero(t *testing.T) {
	for _, c := range []geo.Coordinate{zoneCenter, {Lat: 0, Lng: 0}, {Lat: -90, Lng: 45}} {
		if d := geo.Distance(c, c); d != 0 {
			t.Errorf("Distance(%v,%v) = %f, want 0", c, c, d)
		}
	}
}

func TestDistance_KnownMagnitudes(t *testing.T) {
	if d := geo.Distance(zoneCenter, pointEast); d < 55 || d > 75 {
		t.Errorf("east point distance = %.1fm, expected ~67m", d)
	}
	if d := geo.Distance(zoneCenter, pointNorth); d < 165 || d > 190 {
		t.Errorf("north point distance = %.1fm, expected ~178m", d)
	}
}

func TestIsInside_OfficeZone(t *testing.T) {
	if !geo.IsInside(pointEast, zoneCenter, 100) {
		t.Error("point ~67m east should be inside a 100m zone")
	}
	if geo.IsInside(pointNorth, zoneCenter, 100) {
		t.Error("point ~178m north should be outside a 100m zone")
	}
}

func TestIsInside_BoundaryInclusive(t *testing.T) {
	d := geo.Distance(zoneCenter, pointEast)

	if !geo.IsInside(pointEast, zoneCenter, d) {
		t.Error("point exactly radius meters away should be inside")
	}
	if geo.IsInside(pointEast, zoneCenter, d-0.001) {
		t.Error("point 1mm beyond the radius should be outside")
	}
}

func TestBearing_RangeAndDirection(t *testing.T) {
	b := geo.Bearing(zoneCenter, pointEast)
	if b < 85 || b > 95 {
		t.Errorf("bearing to due-east point = %.1f, expected ~90", b)
	}

	coords := []geo.Coordinate{zoneCenter, pointEast, pointNorth, {Lat: -10, Lng: -20}}
	for _, a := range coords {
		for _, c := range coords {
			if a == c {
				continue
			}
			b := geo.Bearing(a, c)
			if b < 0 || b >= 360 {
				t.Errorf("Bearing(%v,%v) = %f, want [0,360)", a, c, b)
			}
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		c  geo.Coordinate
		ok bool
	}{
		{geo.Coordinate{Lat: 22.5, Lng: 91.8}, true},
		{geo.Coordinate{Lat: 90, Lng: 180}, true},
		{geo.Coordinate{Lat: -90, Lng: -180}, true},
		{geo.Coordinate{Lat: 90.01, Lng: 0}, false},
		{geo.Coordinate{Lat: 0, Lng: -180.5}, false},
	}
	for _, tc := range cases {
		err := tc.c.Validate()
		if tc.ok && err != nil {
			t.Errorf("Validate(%v) = %v, want nil", tc.c, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("Validate(%v) = nil, want error", tc.c)
		}
	}
}
