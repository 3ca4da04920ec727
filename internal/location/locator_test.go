package location

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/marcus/fieldops/internal/fielderr"
)

const routeYAML = `name: bangalore-loop
loop: true
points:
  - lat: 12.9716
    lon: 77.5946
    accuracy: 8
  - lat: 12.9750
    lon: 77.6000
  - lat: 12.9800
    lon: 77.6100
    accuracy: 12
`

func writeRoute(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "route.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write route: %v", err)
	}
	return path
}

func TestLoadRouteReplaysPoints(t *testing.T) {
	loc, err := LoadRoute(writeRoute(t, routeYAML))
	if err != nil {
		t.Fatalf("LoadRoute: %v", err)
	}

	want := []float64{12.9716, 12.9750, 12.9800, 12.9716}
	for i, lat := range want {
		s, err := loc.Fix(context.Background(), AccuracyHigh)
		if err != nil {
			t.Fatalf("fix %d: %v", i, err)
		}
		if s.Latitude != lat {
			t.Errorf("fix %d lat = %v, want %v", i, s.Latitude, lat)
		}
	}
}

func TestRouteHoldsLastPointWithoutLoop(t *testing.T) {
	loc, err := NewRouteLocator(Route{Points: []RoutePoint{{Latitude: 1, Longitude: 1}, {Latitude: 2, Longitude: 2}}})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		loc.Fix(context.Background(), AccuracyLow)
	}
	s, _ := loc.Fix(context.Background(), AccuracyLow)
	if s.Latitude != 2 {
		t.Fatalf("lat = %v, want last point", s.Latitude)
	}
}

func TestRouteValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", "name: nothing\npoints: []\n"},
		{"latitude out of range", "points:\n  - lat: 91\n    lon: 0\n"},
		{"longitude out of range", "points:\n  - lat: 0\n    lon: -181\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRoute(writeRoute(t, tt.body))
			if !errors.Is(err, fielderr.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	if _, err := LoadRoute(writeRoute(t, "points: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStaticLocatorHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&StaticLocator{}).Fix(ctx, AccuracyHigh); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
