package schedule

import (
	"cmp"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"bus-signage/internal/gtfs"
)

// DisplayDeparture is a departure as shown on the board.
type DisplayDeparture struct {
	gtfs.Departure
	DepartureClock string `json:"departure_clock"` // HH:MM:SS, hours not wrapped at 24
}

// daySnapshot is the resolved day cache: one service day's departures per
// platform, filtered by calendar and sorted by departure time. It is never
// mutated after construction.
type daySnapshot struct {
	day       string
	dataset   *gtfs.Dataset
	platforms map[string][]gtfs.Departure
}

// Engine answers departure queries against the Store.
type Engine struct {
	store    *Store
	logger   *slog.Logger
	observer Observer

	mu     sync.Mutex // serialises rebuilds
	cache  atomic.Pointer[daySnapshot]
	builds atomic.Int64
}

// NewEngine creates a query engine over store. logger and observer may be nil.
func NewEngine(store *Store, logger *slog.Logger, observer Observer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Engine{
		store:    store,
		logger:   logger.With(slog.String("component", "schedule_engine")),
		observer: observer,
	}
}

// UpcomingDepartures returns at most limit departures from platform at or
// after now, in departure order. It returns an empty slice when nothing is
// loaded, the platform is unknown, or service has ended for the day.
func (e *Engine) UpcomingDepartures(now time.Time, platform string, limit int) []DisplayDeparture {
	out := []DisplayDeparture{}
	ds := e.store.Dataset()
	if ds == nil || limit <= 0 {
		e.observer.QueryServed(0)
		return out
	}

	sd := ResolveServiceDay(now, ds.ChangeHour())
	deps := e.snapshot(ds, sd.Date).platforms[platform]

	start := sort.Search(len(deps), func(i int) bool {
		return int(deps[i].DepartureTime) >= sd.Elapsed
	})
	for _, d := range deps[start:] {
		if len(out) == limit {
			break
		}
		out = append(out, DisplayDeparture{Departure: d, DepartureClock: d.DepartureTime.String()})
	}
	e.observer.QueryServed(len(out))
	return out
}

// ServiceDay resolves now against the loaded dataset's rollover hour.
// ok is false when no dataset is loaded.
func (e *Engine) ServiceDay(now time.Time) (sd ServiceDay, ok bool) {
	ds := e.store.Dataset()
	if ds == nil {
		return ServiceDay{}, false
	}
	return ResolveServiceDay(now, ds.ChangeHour()), true
}

// Platforms lists the loaded dataset's platform keys in sorted order.
func (e *Engine) Platforms() []string {
	ds := e.store.Dataset()
	if ds == nil {
		return []string{}
	}
	keys := make([]string, 0, len(ds.DepartureInfo))
	for k := range ds.DepartureInfo {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SignageData returns the loaded dataset, or nil.
func (e *Engine) SignageData() *gtfs.Dataset { return e.store.Dataset() }

func (e *Engine) StationName() string   { return e.store.StationName() }
func (e *Engine) StationNameEn() string { return e.store.StationNameEn() }
func (e *Engine) IsLoaded() bool        { return e.store.IsLoaded() }

// snapshot returns the day cache for day, rebuilding it when the service day
// or the dataset has changed since the last build.
func (e *Engine) snapshot(ds *gtfs.Dataset, day string) *daySnapshot {
	if snap := e.cache.Load(); snap != nil && snap.day == day && snap.dataset == ds {
		return snap
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if snap := e.cache.Load(); snap != nil && snap.day == day && snap.dataset == ds {
		return snap
	}

	snap := buildDay(ds, day, e.logger)
	e.cache.Store(snap)
	e.builds.Add(1)
	e.observer.DayCacheBuilt(day, len(snap.platforms))
	return snap
}

func buildDay(ds *gtfs.Dataset, day string, logger *slog.Logger) *daySnapshot {
	snap := &daySnapshot{
		day:       day,
		dataset:   ds,
		platforms: make(map[string][]gtfs.Departure),
	}
	if ds.DepartureInfo == nil {
		logger.Warn("departure_info missing, no departures available", slog.String("serviceDay", day))
		return snap
	}

	refs, ok := ds.Calendar[day]
	if !ok {
		logger.Warn("no calendar entry for service day", slog.String("serviceDay", day))
	}
	valid := make(map[gtfs.ServiceRef]struct{}, len(refs))
	for _, r := range refs {
		valid[r] = struct{}{}
	}

	total := 0
	for platform, deps := range ds.DepartureInfo {
		filtered := make([]gtfs.Departure, 0, len(deps))
		for _, d := range deps {
			if _, ok := valid[d.Service()]; ok {
				filtered = append(filtered, d)
			}
		}
		slices.SortStableFunc(filtered, func(a, b gtfs.Departure) int {
			return cmp.Compare(a.DepartureTime, b.DepartureTime)
		})
		snap.platforms[platform] = filtered
		total += len(filtered)
	}

	logger.Info("built departures for service day",
		slog.String("serviceDay", day),
		slog.Int("services", len(valid)),
		slog.Int("platforms", len(snap.platforms)),
		slog.Int("departures", total))
	return snap
}
