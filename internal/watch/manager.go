// Package watch keeps arrival boards of watched stops fresh and fans them out
// to sinks, and periodically reloads the stop index.
package watch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"mtd-arrivals/internal/arrivals"
	mmetrics "mtd-arrivals/internal/metrics"
	"mtd-arrivals/internal/stops"
	"mtd-arrivals/internal/transit"
)

// Source is the transit data provider.
type Source interface {
	GetStops(ctx context.Context) ([]transit.ParentStop, error)
	GetDeparturesByStop(ctx context.Context, stopID string) ([]transit.Departure, error)
}

// Sink receives every refreshed board of a watched stop.
type Sink interface {
	PublishBoard(b arrivals.Board) error
}

type Options struct {
	BoardInterval  time.Duration
	StopsInterval  time.Duration
	Location       *time.Location
	PreviewMinutes int
	Metrics        *mmetrics.Collector
}

type Manager struct {
	logger *zap.Logger
	src    Source
	index  *stops.Index
	opts   Options

	mu      sync.Mutex
	sinks   []Sink
	running map[string]*watcher
	wg      sync.WaitGroup

	refreshCancel context.CancelFunc
	refreshWG     sync.WaitGroup
}

type watcher struct {
	cancel context.CancelFunc
}

func NewManager(logger *zap.Logger, src Source, index *stops.Index, opts Options) *Manager {
	if opts.BoardInterval <= 0 {
		opts.BoardInterval = 30 * time.Second
	}
	if opts.PreviewMinutes <= 0 {
		opts.PreviewMinutes = 60
	}
	return &Manager{
		logger:  logger,
		src:     src,
		index:   index,
		opts:    opts,
		running: make(map[string]*watcher),
	}
}

func (m *Manager) AddSink(s Sink) {
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

// Board fetches departures for a stop and renders them.
func (m *Manager) Board(ctx context.Context, stopID string) (arrivals.Board, error) {
	stop, err := m.index.Get(stopID)
	if err != nil {
		return arrivals.Board{}, fmt.Errorf("board %s: %w", stopID, err)
	}
	deps, err := m.src.GetDeparturesByStop(ctx, stop.ID)
	if err != nil {
		if m.opts.Metrics != nil {
			m.opts.Metrics.BoardErrors.Inc()
		}
		return arrivals.Board{}, fmt.Errorf("board %s: %w", stopID, err)
	}
	b := arrivals.BuildBoard(stop, deps, arrivals.BoardOptions{
		Location:       m.opts.Location,
		PreviewMinutes: m.opts.PreviewMinutes,
	})
	if m.opts.Metrics != nil {
		m.opts.Metrics.BoardsBuilt.Inc()
	}
	return b, nil
}

// Watch starts refreshing the board of stopID until Unwatch, Stop or ctx is
// done. Watching an already watched stop is a no-op.
func (m *Manager) Watch(parent context.Context, stopID string) error {
	if _, err := m.index.Get(stopID); err != nil {
		return fmt.Errorf("watch %s: %w", stopID, err)
	}

	m.mu.Lock()
	if _, exists := m.running[stopID]; exists {
		m.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	w := &watcher{cancel: cancel}
	m.running[stopID] = w
	m.wg.Add(1)
	m.setWatchedGauge()
	m.mu.Unlock()

	m.logger.Info("watching stop", zap.String("stop_id", stopID))
	go func() {
		defer m.wg.Done()
		m.runStop(ctx, stopID)
		m.mu.Lock()
		// a later Watch may have replaced our entry
		if m.running[stopID] == w {
			delete(m.running, stopID)
		}
		m.setWatchedGauge()
		m.mu.Unlock()
	}()
	return nil
}

func (m *Manager) Unwatch(stopID string) {
	m.mu.Lock()
	w, ok := m.running[stopID]
	if ok {
		delete(m.running, stopID)
		m.setWatchedGauge()
	}
	m.mu.Unlock()
	if ok {
		w.cancel()
		m.logger.Info("stopped watching stop", zap.String("stop_id", stopID))
	}
}

// Watching returns the watched stop ids, sorted.
func (m *Manager) Watching() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) setWatchedGauge() {
	if m.opts.Metrics != nil {
		m.opts.Metrics.WatchedStops.Set(float64(len(m.running)))
	}
}

func (m *Manager) runStop(ctx context.Context, stopID string) {
	tick := time.NewTicker(m.opts.BoardInterval)
	defer tick.Stop()

	m.refreshStop(ctx, stopID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			m.refreshStop(ctx, stopID)
		}
	}
}

func (m *Manager) refreshStop(ctx context.Context, stopID string) {
	b, err := m.Board(ctx, stopID)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("board refresh failed", zap.String("stop_id", stopID), zap.Error(err))
		}
		return
	}
	m.mu.Lock()
	sinks := append([]Sink(nil), m.sinks...)
	m.mu.Unlock()
	for _, s := range sinks {
		if err := s.PublishBoard(b); err != nil {
			m.logger.Warn("publish board failed", zap.String("stop_id", stopID), zap.Error(err))
		}
	}
}

// Stop cancels the index refresher and every watched stop and waits for them.
func (m *Manager) Stop() {
	if m.refreshCancel != nil {
		m.refreshCancel()
	}
	m.refreshWG.Wait()
	m.mu.Lock()
	for id, w := range m.running {
		w.cancel()
		delete(m.running, id)
	}
	m.setWatchedGauge()
	m.mu.Unlock()
	m.wg.Wait()
}

// RefreshIndex reloads every parent stop from the provider into the index.
func (m *Manager) RefreshIndex(ctx context.Context) error {
	all, err := m.src.GetStops(ctx)
	if err != nil {
		if m.opts.Metrics != nil {
			m.opts.Metrics.IndexRefreshes.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("refresh stop index: %w", err)
	}
	m.index.Replace(all)
	if m.opts.Metrics != nil {
		m.opts.Metrics.IndexRefreshes.WithLabelValues("ok").Inc()
		m.opts.Metrics.StopsIndexed.Set(float64(len(all)))
	}
	m.logger.Info("stop index loaded", zap.Int("stops", len(all)))
	return nil
}

// StartRefresher reloads the stop index every StopsInterval in the background.
// A non-positive interval disables it.
func (m *Manager) StartRefresher(parent context.Context) {
	if m.opts.StopsInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.refreshCancel = cancel
	m.refreshWG.Add(1)
	go func() {
		defer m.refreshWG.Done()
		ticker := time.NewTicker(m.opts.StopsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.RefreshIndex(ctx); err != nil {
					m.logger.Warn("stop index refresh failed", zap.Error(err))
				}
			}
		}
	}()
}
