// Package location acquires GPS fixes and runs the periodic sampling loop
// that feeds live location to the server while a visit is active.
package location

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/models"
	"gopkg.in/yaml.v3"
)

// Accuracy is the desired fix accuracy
type Accuracy int

const (
	AccuracyHigh Accuracy = iota
	AccuracyBalanced
	AccuracyLow
)

// Meters returns the horizontal accuracy a fix should meet
func (a Accuracy) Meters() float64 {
	switch a {
	case AccuracyHigh:
		return 10
	case AccuracyBalanced:
		return 50
	}
	return 500
}

// Locator acquires one fix. Implementations must honor ctx cancellation.
type Locator interface {
	Fix(ctx context.Context, accuracy Accuracy) (models.LocationSample, error)
}

// LocatorFunc adapts a function to Locator
type LocatorFunc func(ctx context.Context, accuracy Accuracy) (models.LocationSample, error)

// Fix implements Locator
func (f LocatorFunc) Fix(ctx context.Context, accuracy Accuracy) (models.LocationSample, error) {
	return f(ctx, accuracy)
}

// StaticLocator always reports the same coordinate
type StaticLocator struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Now       func() time.Time
}

// Fix implements Locator
func (l *StaticLocator) Fix(ctx context.Context, _ Accuracy) (models.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return models.LocationSample{}, err
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	return models.LocationSample{
		Latitude:   l.Latitude,
		Longitude:  l.Longitude,
		Accuracy:   l.Accuracy,
		CapturedAt: now(),
	}, nil
}

// RoutePoint is one waypoint of a recorded route file
type RoutePoint struct {
	Latitude  float64 `yaml:"lat"`
	Longitude float64 `yaml:"lon"`
	Accuracy  float64 `yaml:"accuracy,omitempty"`
}

// Route is the YAML document replayed by RouteLocator
type Route struct {
	Name   string       `yaml:"name,omitempty"`
	Loop   bool         `yaml:"loop,omitempty"`
	Points []RoutePoint `yaml:"points"`
}

// RouteLocator replays a route one waypoint per fix. When the route is
// exhausted it loops or keeps reporting the last point.
type RouteLocator struct {
	route Route
	now   func() time.Time

	mu   sync.Mutex
	next int
}

// NewRouteLocator creates a locator over an in-memory route
func NewRouteLocator(r Route) (*RouteLocator, error) {
	if len(r.Points) == 0 {
		return nil, fmt.Errorf("%w: route %q has no points", fielderr.ErrInvalidInput, r.Name)
	}
	for i, p := range r.Points {
		if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
			return nil, fmt.Errorf("%w: route point %d out of range", fielderr.ErrInvalidInput, i)
		}
	}
	return &RouteLocator{route: r, now: time.Now}, nil
}

// LoadRoute reads a YAML route file
func LoadRoute(path string) (*RouteLocator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}
	var r Route
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse route %s: %w", path, err)
	}
	return NewRouteLocator(r)
}

// Fix implements Locator
func (l *RouteLocator) Fix(ctx context.Context, _ Accuracy) (models.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return models.LocationSample{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.route.Points[l.next]
	if l.next < len(l.route.Points)-1 {
		l.next++
	} else if l.route.Loop {
		l.next = 0
	}
	return models.LocationSample{
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Accuracy:   p.Accuracy,
		CapturedAt: l.now(),
	}, nil
}
