package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/location"
	"github.com/spf13/pflag"
)

// fixValue is a "lat,lon" or "lat,lon,accuracy" flag.
type fixValue struct {
	set      bool
	lat, lon float64
	accuracy float64
}

var _ pflag.Value = (*fixValue)(nil)

func (f *fixValue) String() string {
	if !f.set {
		return ""
	}
	return strconv.FormatFloat(f.lat, 'f', -1, 64) + "," + strconv.FormatFloat(f.lon, 'f', -1, 64)
}

func (f *fixValue) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("%w: want lat,lon[,accuracy], got %q", fielderr.ErrInvalidInput, s)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", fielderr.ErrInvalidInput, p)
		}
		vals[i] = v
	}
	if vals[0] < -90 || vals[0] > 90 || vals[1] < -180 || vals[1] > 180 {
		return fmt.Errorf("%w: coordinate %q out of range", fielderr.ErrInvalidInput, s)
	}
	f.lat, f.lon = vals[0], vals[1]
	f.accuracy = location.AccuracyHigh.Meters()
	if len(vals) == 3 {
		if vals[2] < 0 {
			return fmt.Errorf("%w: accuracy must not be negative", fielderr.ErrInvalidInput)
		}
		f.accuracy = vals[2]
	}
	f.set = true
	return nil
}

func (f *fixValue) Type() string { return "lat,lon" }

// locatorFlags select where fixes come from.
type locatorFlags struct {
	fix   fixValue
	route string
}

func (l *locatorFlags) bind(fs *pflag.FlagSet) {
	fs.Var(&l.fix, "fix", "Fixed position as lat,lon[,accuracy]")
	fs.StringVar(&l.route, "route", "", "YAML route file replayed one point per fix")
}

// locator returns the configured source, or fallback when neither flag is set.
func (l *locatorFlags) locator(fallback location.Locator) (location.Locator, error) {
	switch {
	case l.fix.set && l.route != "":
		return nil, fmt.Errorf("%w: --fix and --route are mutually exclusive", fielderr.ErrInvalidInput)
	case l.route != "":
		return location.LoadRoute(l.route)
	case l.fix.set:
		return &location.StaticLocator{Latitude: l.fix.lat, Longitude: l.fix.lon, Accuracy: l.fix.accuracy}, nil
	}
	return fallback, nil
}
