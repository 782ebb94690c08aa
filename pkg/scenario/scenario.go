// Package scenario exposes one optimizer run's artifacts as queryable
// datasets. A Scenario owns a per-scenario dataset cache; a Set groups the
// scenarios of one uploaded archive.
package scenario

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shiftsuite/shiftboard/pkg/archive"
	"github.com/shiftsuite/shiftboard/pkg/dataset"
	"github.com/shiftsuite/shiftboard/pkg/slotinfo"
)

// ErrUnknownScenario is returned when a Set has no scenario by that name.
var ErrUnknownScenario = errors.New("scenario: unknown scenario")

// Scenario is one optimizer run: a directory of artifact files fronted by a
// lazy dataset cache.
type Scenario struct {
	name     string
	dir      string
	resolver *dataset.Resolver
	cache    *dataset.Cache

	slotOnce sync.Once
	slot     slotinfo.Info
}

// New opens a scenario rooted at dir. The directory may be sparse or missing;
// absent datasets surface as empty tables.
func New(name, dir string, config dataset.CacheConfig, logger *slog.Logger) (*Scenario, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolver, err := dataset.NewResolver(dir)
	if err != nil {
		return nil, err
	}
	s := &Scenario{
		name:     name,
		dir:      dir,
		resolver: resolver,
	}
	s.cache = dataset.NewCache(func(ctx context.Context, kind dataset.Kind) (*dataset.Table, error) {
		return resolver.Load(kind)
	}, config, logger.With("scenario", name))
	return s, nil
}

// Name returns the scenario's directory name.
func (s *Scenario) Name() string { return s.name }

// Dir returns the scenario's artifact directory.
func (s *Scenario) Dir() string { return s.dir }

// Table returns a dataset, loading and caching it on first access.
func (s *Scenario) Table(ctx context.Context, kind dataset.Kind) (*dataset.Table, error) {
	return s.cache.Get(ctx, kind)
}

// Available returns the dataset kinds present on disk for this scenario.
func (s *Scenario) Available() []dataset.Kind {
	return s.resolver.Available()
}

// Slot returns the detected slot granularity for this scenario. Detection
// runs once, off the heat_all time index, and falls back to the default
// 30-minute slot when the index is unreadable.
func (s *Scenario) Slot(ctx context.Context) slotinfo.Info {
	s.slotOnce.Do(func() {
		s.slot = slotinfo.Default()
		heat, err := s.Table(ctx, dataset.KindHeatAll)
		if err != nil {
			return
		}
		s.slot = DetectSlot(heat.Index())
	})
	return s.slot
}

// CacheStats returns this scenario's dataset cache counters.
func (s *Scenario) CacheStats() dataset.CacheStats {
	return s.cache.Stats()
}

// CacheDelta drains the cache counters accumulated since the last drain.
func (s *Scenario) CacheDelta() dataset.CacheStats {
	return s.cache.StatsDelta()
}

// Close releases the scenario's cached datasets.
func (s *Scenario) Close() {
	s.cache.Close()
}

// Metadata is a point-in-time snapshot of a scenario.
type Metadata struct {
	Name               string             `json:"name"`
	DisplayName        string             `json:"display_name"`
	Datasets           []dataset.Kind     `json:"datasets"`
	Slot               slotinfo.Info      `json:"slot"`
	Cache              dataset.CacheStats `json:"cache"`
	ShortageTimeDates  []string           `json:"shortage_time_dates"`
	ShortageRatioDates []string           `json:"shortage_ratio_dates"`
}

// Metadata snapshots the scenario for API responses. The date lists cover
// every column of the shortage tables; a table that fails to load reads as
// having no dates.
func (s *Scenario) Metadata(ctx context.Context) Metadata {
	timeDates, _ := s.ShortageTimeDates(ctx)
	ratioDates, _ := s.ShortageRatioDates(ctx)
	return Metadata{
		Name:               s.name,
		DisplayName:        archive.DisplayName(s.name),
		Datasets:           s.Available(),
		Slot:               s.Slot(ctx),
		Cache:              s.CacheStats(),
		ShortageTimeDates:  timeDates,
		ShortageRatioDates: ratioDates,
	}
}

// Set holds the scenarios of one uploaded archive, keyed by name.
type Set struct {
	order     []string
	scenarios map[string]*Scenario
}

// NewSet opens every named scenario under root. Names come from archive
// extraction and are already in display order.
func NewSet(root string, names []string, config dataset.CacheConfig, logger *slog.Logger) (*Set, error) {
	set := &Set{scenarios: make(map[string]*Scenario, len(names))}
	for _, name := range names {
		sc, err := New(name, archive.ScenarioDir(root, name), config, logger)
		if err != nil {
			set.Close()
			return nil, err
		}
		set.order = append(set.order, name)
		set.scenarios[name] = sc
	}
	return set, nil
}

// Names returns scenario names in display order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Get returns a scenario by name. An empty name selects the first scenario.
func (s *Set) Get(name string) (*Scenario, error) {
	if name == "" && len(s.order) > 0 {
		name = s.order[0]
	}
	sc, ok := s.scenarios[name]
	if !ok {
		return nil, ErrUnknownScenario
	}
	return sc, nil
}

// Close releases all scenarios in the set.
func (s *Set) Close() {
	for _, sc := range s.scenarios {
		sc.Close()
	}
}
