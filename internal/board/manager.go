package board

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bus-signage/internal/clock"
	"bus-signage/internal/config"
	mmetrics "bus-signage/internal/metrics"
	"bus-signage/internal/schedule"
)

// ErrNotLoaded is returned by Refresh while no dataset is available.
var ErrNotLoaded = errors.New("board: no dataset loaded")

// Board is one rendered state of the station screen.
type Board struct {
	ID            string          `json:"id"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Station       string          `json:"station,omitempty"`
	StationName   string          `json:"station_name"`
	StationNameEn string          `json:"station_name_en"`
	ServiceDay    string          `json:"service_day"`
	Clock         string          `json:"clock"`
	Platforms     []PlatformBoard `json:"platforms"`
}

type PlatformBoard struct {
	Key        string                      `json:"key"`
	Label      string                      `json:"label"`
	LabelEn    string                      `json:"label_en,omitempty"`
	Departures []schedule.DisplayDeparture `json:"departures"`
}

// ClockMessage is published on every clock tick so screens can redraw the
// time without a full board.
type ClockMessage struct {
	Time       time.Time `json:"time"`
	Clock      string    `json:"clock"`
	ServiceDay string    `json:"service_day"`
}

// Publisher pushes boards and clock ticks to screens.
type Publisher interface {
	PublishBoard(board any) error
	PublishClock(msg any) error
}

type Options struct {
	Station         string
	Platforms       []config.PlatformConfig // empty shows every platform in the dataset
	DefaultLimit    int
	RefreshInterval time.Duration
	ClockInterval   time.Duration
	ReloadInterval  time.Duration // 0 disables reloading
}

type Manager struct {
	engine  *schedule.Engine
	store   *schedule.Store
	source  schedule.Source
	pub     Publisher
	clock   clock.Clock
	opts    Options
	metrics *mmetrics.Collector
	logger  *slog.Logger

	refreshMu sync.Mutex // orders refreshes so Latest never goes backwards
	latest    atomic.Pointer[Board]
	lastDay   atomic.Value // string

	refreshCancel context.CancelFunc
	refreshWG     sync.WaitGroup
}

// NewManager wires a board manager. pub, metrics and logger may be nil.
func NewManager(engine *schedule.Engine, store *schedule.Store, src schedule.Source, pub Publisher, clk clock.Clock, opts Options, metrics *mmetrics.Collector, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5
	}
	return &Manager{
		engine:  engine,
		store:   store,
		source:  src,
		pub:     pub,
		clock:   clk,
		opts:    opts,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "board")),
	}
}

// Latest returns the most recently computed board, or nil before the first
// successful refresh.
func (m *Manager) Latest() *Board { return m.latest.Load() }

// Refresh recomputes the board for the current instant, stores it as the
// latest and publishes it. A publish failure is logged; the board is still
// returned.
func (m *Manager) Refresh(ctx context.Context) (*Board, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !m.engine.IsLoaded() {
		return nil, ErrNotLoaded
	}
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	start := time.Now()
	now := m.clock.Now()

	b := &Board{
		ID:            uuid.NewString(),
		GeneratedAt:   now,
		Station:       m.opts.Station,
		StationName:   m.engine.StationName(),
		StationNameEn: m.engine.StationNameEn(),
		Clock:         now.Format("15:04"),
	}
	if sd, ok := m.engine.ServiceDay(now); ok {
		b.ServiceDay = sd.Date
	}

	for _, p := range m.platforms() {
		limit := p.Limit
		if limit <= 0 {
			limit = m.opts.DefaultLimit
		}
		label := p.Label
		if label == "" {
			label = p.Key
		}
		b.Platforms = append(b.Platforms, PlatformBoard{
			Key:        p.Key,
			Label:      label,
			LabelEn:    p.LabelEn,
			Departures: m.engine.UpcomingDepartures(now, p.Key, limit),
		})
	}
	if b.Platforms == nil {
		b.Platforms = []PlatformBoard{}
	}

	m.latest.Store(b)
	m.lastDay.Store(b.ServiceDay)
	if m.metrics != nil {
		m.metrics.BoardRefreshes.Inc()
		m.metrics.BoardRefreshDuration.Observe(time.Since(start).Seconds())
	}
	m.logger.Debug("board refreshed",
		slog.String("serviceDay", b.ServiceDay),
		slog.Int("platforms", len(b.Platforms)),
		slog.Duration("took", time.Since(start)))

	if m.pub != nil {
		if err := m.pub.PublishBoard(b); err != nil {
			m.logger.Warn("publish board failed", slog.Any("error", err))
		}
	}
	return b, nil
}

func (m *Manager) platforms() []config.PlatformConfig {
	if len(m.opts.Platforms) > 0 {
		return m.opts.Platforms
	}
	keys := m.engine.Platforms()
	out := make([]config.PlatformConfig, 0, len(keys))
	for _, k := range keys {
		out = append(out, config.PlatformConfig{Key: k})
	}
	return out
}

// Tick publishes the current clock and refreshes the board early when the
// service day has rolled over since the last refresh.
func (m *Manager) Tick(ctx context.Context) {
	now := m.clock.Now()
	sd, ok := m.engine.ServiceDay(now)
	if m.pub != nil {
		msg := ClockMessage{Time: now, Clock: now.Format("15:04:05"), ServiceDay: sd.Date}
		if err := m.pub.PublishClock(msg); err != nil {
			m.logger.Warn("publish clock failed", slog.Any("error", err))
		}
	}
	if !ok {
		return
	}
	if last, _ := m.lastDay.Load().(string); last != sd.Date {
		m.logger.Info("service day changed", slog.String("from", last), slog.String("to", sd.Date))
		if _, err := m.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("refresh board error", slog.Any("error", err))
		}
	}
}

// Reload re-reads the dataset source and refreshes the board if the dataset
// changed. The previous dataset keeps serving when the source fails.
func (m *Manager) Reload(ctx context.Context) error {
	if m.source == nil {
		return nil
	}
	changed, err := m.store.Reload(ctx, m.source)
	if err != nil && !errors.Is(err, schedule.ErrMissingData) {
		return err
	}
	if changed {
		m.logger.Info("dataset reloaded", slog.String("source", m.source.String()))
		if _, rerr := m.Refresh(ctx); rerr != nil {
			m.logger.Warn("refresh board error", slog.Any("error", rerr))
		}
	}
	return err
}

// StartRefresher launches the background loops: board refresh, clock tick and
// dataset reload. Loops with a non-positive interval are not started.
func (m *Manager) StartRefresher(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.refreshCancel = cancel

	// immediate refresh on start
	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Warn("initial board refresh error", slog.Any("error", err))
	}

	m.every(ctx, m.opts.RefreshInterval, func(ctx context.Context) {
		if _, err := m.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("refresh board error", slog.Any("error", err))
		}
	})
	m.every(ctx, m.opts.ClockInterval, m.Tick)
	m.every(ctx, m.opts.ReloadInterval, func(ctx context.Context) {
		if err := m.Reload(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("dataset reload error", slog.Any("error", err))
		}
	})
}

func (m *Manager) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	m.refreshWG.Add(1)
	go func() {
		defer m.refreshWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Stop cancels the background loops and waits for them to exit.
func (m *Manager) Stop() {
	if m.refreshCancel != nil {
		m.refreshCancel()
	}
	m.refreshWG.Wait()
}
