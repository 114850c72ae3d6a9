package catalog

import (
	"errors"
	"math"
	"testing"

	"github.com/BTreeMap/FastCab/internal/models"
)

func TestResolve(t *testing.T) {
	c := Default()
	tests := []struct {
		in      string
		wantKey string
		wantErr error
	}{
		{"ikoyi", "ikoyi", nil},
		{"  Ikoyi ", "ikoyi", nil},
		{"VI", "victoria island", nil},
		{"v.i.", "victoria island", nil},
		{"v/i", "victoria island", nil},
		{"Victoria Island", "victoria island", nil},
		{"lag island", "lagos island", nil},
		{"ikeja gra", "ikeja", nil},
		{"surul", "surulere", nil},
		{"yaba tech", "yaba", nil},
		{"island", "", ErrLocationAmbiguous},
		{"abuja", "", ErrLocationNotFound},
		{"", "", ErrLocationNotFound},
		{"ik", "", ErrLocationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := c.Resolve(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.in, err)
			}
			if loc.Key != tt.wantKey {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, loc.Key, tt.wantKey)
			}
		})
	}
}

func TestDistanceIkoyiToVI(t *testing.T) {
	c := Default()
	ikoyi, _ := c.Location("ikoyi")
	vi, _ := c.Location("victoria island")

	d := Distance(ikoyi, vi)
	if math.Abs(d-3.1) > 1e-9 {
		t.Errorf("Distance(ikoyi, vi) = %v, want 3.1", d)
	}
}

func TestDistanceSymmetricAndRounded(t *testing.T) {
	c := Default()
	locs := c.Locations()
	for _, a := range locs {
		for _, b := range locs {
			ab, ba := Distance(a, b), Distance(b, a)
			if ab != ba {
				t.Errorf("Distance(%s,%s)=%v but reverse=%v", a.Key, b.Key, ab, ba)
			}
			if r := math.Round(ab*10) / 10; r != ab {
				t.Errorf("Distance(%s,%s)=%v not rounded to 0.1", a.Key, b.Key, ab)
			}
			if a.Key == b.Key && ab != 0 {
				t.Errorf("Distance(%s,%s)=%v, want 0", a.Key, b.Key, ab)
			}
		}
	}
}

func TestDistanceDefaultWithoutCoordinates(t *testing.T) {
	known := models.Location{Key: "ikoyi", Lat: 6.4511, Lng: 3.4372, HasCoordinates: true}
	unknown := models.Location{Key: "mystery"}
	if d := Distance(known, unknown); d != DefaultDistanceKm {
		t.Errorf("Distance() = %v, want %v", d, DefaultDistanceKm)
	}
	if d := Distance(unknown, known); d != DefaultDistanceKm {
		t.Errorf("Distance() reversed = %v, want %v", d, DefaultDistanceKm)
	}
}

func TestFare(t *testing.T) {
	c := Default()
	tests := []struct {
		class string
		km    float64
		want  float64
	}{
		{"economy", 3.1, 972},
		{"comfort", 3.1, 1458},
		{"premium", 3.1, 2275},
		{"economy", 0, 600},
		{"premium", DefaultDistanceKm, 3500},
	}
	for _, tt := range tests {
		rc, ok := c.RideClass(tt.class)
		if !ok {
			t.Fatalf("ride class %q missing", tt.class)
		}
		if got := Fare(rc, tt.km); math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("Fare(%s, %v) = %v, want %v", tt.class, tt.km, got, tt.want)
		}
	}
}

func TestRideClassByChoice(t *testing.T) {
	c := Default()
	for i, want := range []string{"economy", "comfort", "premium"} {
		rc, ok := c.RideClassByChoice(i + 1)
		if !ok || rc.Key != want {
			t.Errorf("RideClassByChoice(%d) = %q, %v; want %q", i+1, rc.Key, ok, want)
		}
	}
	if _, ok := c.RideClassByChoice(0); ok {
		t.Error("choice 0 should be rejected")
	}
	if _, ok := c.RideClassByChoice(4); ok {
		t.Error("choice 4 should be rejected")
	}
}

func TestRandomDriverUsesInjectedSource(t *testing.T) {
	c, err := New(WithRandom(func(n int) int { return n - 1 }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d := c.RandomDriver(); d.Name != "David Wilson" {
		t.Errorf("RandomDriver() = %q, want David Wilson", d.Name)
	}
	if d, ok := c.Driver(2); !ok || d.Vehicle() != "Honda Civic" {
		t.Errorf("Driver(2) = %+v, %v", d, ok)
	}
}

func TestNewRejectsBadData(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"no locations", []Option{WithLocations(nil)}},
		{"no classes", []Option{WithRideClasses(nil)}},
		{"no drivers", []Option{WithDrivers(nil)}},
		{"duplicate key", []Option{WithLocations([]models.Location{{Key: "a"}, {Key: "A"}}), WithAliases(nil)}},
		{"dangling alias", []Option{WithAliases(map[string]string{"x": "nowhere"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts...); err == nil {
				t.Error("expected error")
			}
		})
	}
}
