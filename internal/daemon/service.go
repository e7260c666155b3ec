// Package daemon provides the long-running budget monitor service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/model"
	"github.com/theirongolddev/budgetscope/internal/pipeline"
	"github.com/theirongolddev/budgetscope/internal/store"
)

// Event types.
const (
	EventSnapshot = "snapshot"
	EventDelta    = "budget_delta"
)

// Config controls the daemon runtime behavior.
type Config struct {
	Collections  []address.Address
	Interval     time.Duration
	Addr         string
	EventsBuffer int
}

// BudgetLoader loads a budget and records a snapshot of it.
type BudgetLoader interface {
	LoadAndRecord(ctx context.Context, collection address.Address, opts pipeline.LoadOptions, st pipeline.SnapshotStore) (*pipeline.RecordedLoad, error)
}

// BudgetState is the latest known state of one watched budget.
type BudgetState struct {
	Collection address.Address     `json:"collection"`
	Budget     address.Address     `json:"budget"`
	Year       uint16              `json:"year"`
	RunID      string              `json:"run_id,omitempty"`
	LoadedAt   time.Time           `json:"loaded_at"`
	Expenses   uint32              `json:"expense_count"`
	Totals     model.BudgetTotals  `json:"totals"`
	Skipped    int                 `json:"skipped"`
	LastError  string              `json:"last_error,omitempty"`
	report     *model.BudgetReport
	snapshot   *store.Snapshot
}

// Event is emitted whenever a budget's totals change.
type Event struct {
	ID         int64              `json:"id"`
	Type       string             `json:"type"`
	Timestamp  time.Time          `json:"timestamp"`
	Collection address.Address    `json:"collection"`
	Budget     address.Address    `json:"budget"`
	Totals     model.BudgetTotals `json:"totals"`
	Delta      pipeline.Delta     `json:"delta"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
	PollCount       int64     `json:"poll_count"`
	Budgets         int       `json:"budgets"`
	Failing         int       `json:"failing"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg    Config
	loader BudgetLoader
	store  pipeline.SnapshotStore
	log    *zap.Logger
	now    func() time.Time

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	budgets     map[address.Address]*BudgetState
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a daemon service polling cfg.Collections through loader.
// st may be nil, in which case nothing is persisted between restarts.
func New(cfg Config, loader BudgetLoader, st pipeline.SnapshotStore, log *zap.Logger) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 10 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Service{
		cfg:       cfg,
		loader:    loader,
		store:     st,
		log:       log,
		now:       time.Now,
		startedAt: time.Now(),
		budgets:   make(map[address.Address]*BudgetState, len(cfg.Collections)),
		subs:      make(map[int]chan Event),
	}
	for _, c := range cfg.Collections {
		s.budgets[c] = &BudgetState{Collection: c}
	}
	return s
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/budgets", s.handleBudgets)
	mux.HandleFunc("GET /v1/budgets/{collection}", s.handleBudget)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	return mux
}

// Run starts HTTP endpoints and polling until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info("daemon listening", zap.String("addr", s.cfg.Addr), zap.Int("budgets", len(s.cfg.Collections)))

	// Seed initial state so status is useful immediately.
	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.pollOnce(ctx)
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	for _, c := range s.cfg.Collections {
		if ctx.Err() != nil {
			return
		}
		s.pollBudget(ctx, c)
	}

	s.mu.Lock()
	s.lastPollAt = s.now()
	s.pollCount++
	s.mu.Unlock()
}

func (s *Service) pollBudget(ctx context.Context, collection address.Address) {
	rec, err := s.loader.LoadAndRecord(ctx, collection, pipeline.LoadOptions{}, s.store)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("daemon poll failed", zap.Stringer("collection", collection), zap.Error(err))
		s.mu.Lock()
		s.budgets[collection].LastError = err.Error()
		s.mu.Unlock()
		return
	}

	r := rec.Report
	snap := rec.Snapshot

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	st := s.budgets[collection]
	prev := st.snapshot
	*st = BudgetState{
		Collection: collection,
		Budget:     r.Address,
		Year:       r.Budget.Year,
		RunID:      r.RunID,
		LoadedAt:   r.LoadedAt,
		Expenses:   r.Budget.ExpenseCount,
		Totals:     r.Totals,
		Skipped:    len(r.Skipped),
		report:     r,
		snapshot:   &snap,
	}

	switch {
	case prev == nil:
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: EventSnapshot, Delta: rec.Delta}
		publish = true
	default:
		if d := pipeline.Diff(*prev, snap); !d.IsZero() {
			s.nextEventID++
			ev = Event{ID: s.nextEventID, Type: EventDelta, Delta: d}
			publish = true
		}
	}
	s.mu.Unlock()

	if publish {
		ev.Timestamp = r.LoadedAt
		ev.Collection = collection
		ev.Budget = r.Address
		ev.Totals = r.Totals
		s.publishEvent(ev)
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	failing := 0
	for _, b := range s.budgets {
		if b.LastError != "" {
			failing++
		}
	}
	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		Budgets:         len(s.budgets),
		Failing:         failing,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) budgetStates() []BudgetState {
	s.mu.RLock()
	out := make([]BudgetState, 0, len(s.budgets))
	for _, b := range s.budgets {
		out = append(out, *b)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Collection.String() < out[j].Collection.String()
	})
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleBudgets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.budgetStates())
}

func (s *Service) handleBudget(w http.ResponseWriter, r *http.Request) {
	collection, err := address.Parse(r.PathValue("collection"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.RLock()
	st, ok := s.budgets[collection]
	var report *model.BudgetReport
	if ok {
		report = st.report
	}
	s.mu.RUnlock()

	switch {
	case !ok:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "budget not watched"})
	case report == nil:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "budget not loaded yet"})
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current state immediately.
	for _, b := range s.budgetStates() {
		if b.report == nil {
			continue
		}
		writeSSE(w, Event{
			Type:       EventSnapshot,
			Timestamp:  b.LoadedAt,
			Collection: b.Collection,
			Budget:     b.Budget,
			Totals:     b.Totals,
		})
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
