// Package catalog holds the static reference data for FastCab: pickup and
// dropoff locations, ride classes and the demo driver roster, together with
// the distance and fare rules that operate on them.
package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/BTreeMap/FastCab/internal/models"
)

var (
	// ErrLocationNotFound is returned when a name matches no catalog location.
	ErrLocationNotFound  = errors.New("location not found")
	// ErrLocationAmbiguous is returned when a partial name matches several locations.
	ErrLocationAmbiguous = errors.New("location is ambiguous")
)

// minSubstringLen guards against tiny fragments ("a", "is") matching half the catalog.
const minSubstringLen = 3

// Opts holds configuration for a Catalog.
type Opts struct {
	Locations   []models.Location
	Aliases     map[string]string // alias -> location key
	RideClasses []models.RideClass
	Drivers     []models.Driver
	IntN        func(n int) int // random source for driver assignment
}

// Option defines a function for configuring a Catalog.
type Option func(*Opts)

// WithLocations replaces the default location list.
func WithLocations(locs []models.Location) Option {
	return func(o *Opts) { o.Locations = locs }
}

// WithAliases replaces the default alias table.
func WithAliases(aliases map[string]string) Option {
	return func(o *Opts) { o.Aliases = aliases }
}

// WithRideClasses replaces the default ride classes.
func WithRideClasses(classes []models.RideClass) Option {
	return func(o *Opts) { o.RideClasses = classes }
}

// WithDrivers replaces the default driver roster.
func WithDrivers(drivers []models.Driver) Option {
	return func(o *Opts) { o.Drivers = drivers }
}

// WithRandom sets the random source used by RandomDriver.
func WithRandom(intn func(n int) int) Option {
	return func(o *Opts) { o.IntN = intn }
}

// Catalog is immutable reference data; safe for concurrent use.
type Catalog struct {
	locations []models.Location
	byKey     map[string]models.Location
	aliases   map[string]string
	classes   []models.RideClass
	drivers   []models.Driver
	intn      func(n int) int
}

// New builds a catalog from the Lagos defaults, overridden by any options.
func New(opts ...Option) (*Catalog, error) {
	cfg := Opts{
		Locations:   lagosLocations,
		Aliases:     lagosAliases,
		RideClasses: defaultRideClasses,
		Drivers:     demoDrivers,
		IntN:        rand.IntN,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.Locations) == 0 {
		return nil, errors.New("catalog: at least one location is required")
	}
	if len(cfg.RideClasses) == 0 {
		return nil, errors.New("catalog: at least one ride class is required")
	}
	if len(cfg.Drivers) == 0 {
		return nil, errors.New("catalog: at least one driver is required")
	}

	c := &Catalog{
		byKey:   make(map[string]models.Location, len(cfg.Locations)),
		aliases: make(map[string]string, len(cfg.Aliases)),
		classes: append([]models.RideClass(nil), cfg.RideClasses...),
		drivers: append([]models.Driver(nil), cfg.Drivers...),
		intn:    cfg.IntN,
	}
	for _, loc := range cfg.Locations {
		key := normalize(loc.Key)
		if key == "" {
			return nil, fmt.Errorf("catalog: location %q has an empty key", loc.Name)
		}
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate location key %q", key)
		}
		loc.Key = key
		c.byKey[key] = loc
		c.locations = append(c.locations, loc)
	}
	for alias, key := range cfg.Aliases {
		key = normalize(key)
		if _, ok := c.byKey[key]; !ok {
			return nil, fmt.Errorf("catalog: alias %q points at unknown location %q", alias, key)
		}
		c.aliases[normalize(alias)] = key
	}
	return c, nil
}

// Default returns the built-in Lagos catalog.
func Default() *Catalog {
	c, err := New()
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in data is invalid: %v", err))
	}
	return c
}

// Locations returns the catalog locations in display order.
func (c *Catalog) Locations() []models.Location {
	return append([]models.Location(nil), c.locations...)
}

// Location returns the location stored under key.
func (c *Catalog) Location(key string) (models.Location, bool) {
	loc, ok := c.byKey[normalize(key)]
	return loc, ok
}

// Resolve maps free text to a location: exact key, then alias, then a
// unique substring match against keys and display names.
func (c *Catalog) Resolve(name string) (models.Location, error) {
	n := normalize(name)
	if n == "" {
		return models.Location{}, fmt.Errorf("%w: empty name", ErrLocationNotFound)
	}
	if loc, ok := c.byKey[n]; ok {
		return loc, nil
	}
	if key, ok := c.aliases[n]; ok {
		return c.byKey[key], nil
	}

	var matches []models.Location
	for _, loc := range c.locations {
		if containsEither(n, loc.Key) || containsEither(n, normalize(loc.Name)) {
			matches = append(matches, loc)
		}
	}
	switch len(matches) {
	case 0:
		return models.Location{}, fmt.Errorf("%w: %q", ErrLocationNotFound, name)
	case 1:
		return matches[0], nil
	default:
		return models.Location{}, fmt.Errorf("%w: %q matches %d locations", ErrLocationAmbiguous, name, len(matches))
	}
}

// RideClasses returns the ride classes in menu order.
func (c *Catalog) RideClasses() []models.RideClass {
	return append([]models.RideClass(nil), c.classes...)
}

// RideClassByChoice returns the ride class for a 1-based menu choice.
func (c *Catalog) RideClassByChoice(choice int) (models.RideClass, bool) {
	if choice < 1 || choice > len(c.classes) {
		return models.RideClass{}, false
	}
	return c.classes[choice-1], true
}

// RideClass returns the ride class stored under key.
func (c *Catalog) RideClass(key string) (models.RideClass, bool) {
	for _, rc := range c.classes {
		if rc.Key == key {
			return rc, true
		}
	}
	return models.RideClass{}, false
}

// Drivers returns the driver roster.
func (c *Catalog) Drivers() []models.Driver {
	return append([]models.Driver(nil), c.drivers...)
}

// Driver returns the driver with the given id.
func (c *Catalog) Driver(id int) (models.Driver, bool) {
	for _, d := range c.drivers {
		if d.ID == id {
			return d, true
		}
	}
	return models.Driver{}, false
}

// RandomDriver picks a driver uniformly from the roster.
func (c *Catalog) RandomDriver() models.Driver {
	return c.drivers[c.intn(len(c.drivers))]
}

func containsEither(input, candidate string) bool {
	if candidate == "" {
		return false
	}
	if strings.Contains(input, candidate) {
		return true
	}
	return len(input) >= minSubstringLen && strings.Contains(candidate, input)
}

// normalize lowercases, trims punctuation and collapses internal whitespace.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,!?;:")
	return strings.Join(strings.Fields(s), " ")
}
