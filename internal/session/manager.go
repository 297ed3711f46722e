package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"trackly/internal/geo"
	"trackly/internal/match"
	"trackly/internal/publisher"
	"trackly/internal/transit"
)

// Plan statuses. Everything except StatusOK is a "not available" result.
const (
	StatusOK         = "ok"
	StatusNoBus      = "no_bus"
	StatusNoSchedule = "no_schedule"
	StatusNoTrip     = "no_trip"
	StatusError      = "error"
)

// ErrUnknownSession is returned for a query naming a session the manager did
// not issue or has already evicted.
var ErrUnknownSession = errors.New("unknown session")

type Catalog interface {
	Buses() []transit.Bus
	Refresh(ctx context.Context) (int, error)
	LoadedAt() time.Time
}

type Publisher interface {
	PublishPlan(msg publisher.PlanMessage) error
}

type Metrics interface {
	PlanObserve(status string, d time.Duration)
	SessionsSet(n int)
	SessionsEvictedAdd(n int)
}

// Query is one passenger search. A zero SessionID starts a new session with a
// server-issued id; a non-zero one must name a live session. A nil Location
// formats times in the manager's display location.
type Query struct {
	SessionID string
	Start     geo.Point
	End       geo.Point
	Location  *time.Location
}

// Plan is the outcome of one query: the selected bus and trip, with
// departure and arrival rendered for display.
type Plan struct {
	SessionID      string                 `json:"sessionId"`
	Status         string                 `json:"status"`
	Message        string                 `json:"message,omitempty"`
	VehicleNumber  string                 `json:"vehicleNumber,omitempty"`
	RouteDeparture string                 `json:"routeDeparture,omitempty"`
	RouteArrival   string                 `json:"routeArrival,omitempty"`
	Trip           *transit.ScheduleEntry `json:"trip,omitempty"`
	Departure      string                 `json:"departure,omitempty"`
	Arrival        string                 `json:"arrival,omitempty"`
	ComputedAt     time.Time              `json:"computedAt"`
}

// Session is the state held for one passenger between queries.
type Session struct {
	ID        string    `json:"id"`
	Start     geo.Point `json:"start"`
	End       geo.Point `json:"end"`
	Plan      Plan      `json:"plan"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Options struct {
	Clock           func() time.Time
	DisplayLocation *time.Location
	SessionTTL      time.Duration
	RefreshInterval time.Duration
}

type Manager struct {
	catalog Catalog
	matcher *match.Matcher
	pub     Publisher
	metrics Metrics

	clock      func() time.Time
	displayLoc *time.Location
	ttl        time.Duration
	refresh    time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager wires the pipeline. pub and metrics may be nil.
func NewManager(catalog Catalog, matcher *match.Matcher, pub Publisher, metrics Metrics, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DisplayLocation == nil {
		opts.DisplayLocation = time.Local
	}
	return &Manager{
		catalog:    catalog,
		matcher:    matcher,
		pub:        pub,
		metrics:    metrics,
		clock:      opts.Clock,
		displayLoc: opts.DisplayLocation,
		ttl:        opts.SessionTTL,
		refresh:    opts.RefreshInterval,
		sessions:   make(map[string]*Session),
	}
}

// Plan runs select and resolve for q, stores the result as the session's
// selected trip and publishes it. Unavailable results come back as a Plan
// with a non-ok status; the error is reserved for failures.
func (m *Manager) Plan(ctx context.Context, q Query) (Plan, error) {
	start := time.Now()
	if q.SessionID == "" {
		q.SessionID = uuid.NewString()
	} else if _, ok := m.Get(q.SessionID); !ok {
		return Plan{}, fmt.Errorf("session %s: %w", q.SessionID, ErrUnknownSession)
	}
	loc := q.Location
	if loc == nil {
		loc = m.displayLoc
	}

	if m.catalog.LoadedAt().IsZero() {
		if _, err := m.catalog.Refresh(ctx); err != nil {
			m.observe(StatusError, start)
			return Plan{}, fmt.Errorf("loading bus data: %w", err)
		}
	}

	now := m.clock()
	plan, err := m.compute(q, now, loc)
	if err != nil {
		m.observe(StatusError, start)
		return Plan{}, err
	}

	m.store(q, plan)
	m.publish(plan)
	m.observe(plan.Status, start)
	return plan, nil
}

func (m *Manager) compute(q Query, now time.Time, loc *time.Location) (Plan, error) {
	plan := Plan{SessionID: q.SessionID, ComputedAt: now}
	buses := m.catalog.Buses()

	vehicle, err := m.matcher.SelectNearestBus(q.Start, q.End, buses)
	if errors.Is(err, match.ErrNoCandidate) {
		plan.Status = StatusNoBus
		plan.Message = err.Error()
		return plan, nil
	}
	if err != nil {
		return Plan{}, err
	}
	plan.VehicleNumber = vehicle

	var bus transit.Bus
	for _, b := range buses {
		if b.VehicleNumber == vehicle {
			bus = b
			break
		}
	}

	refDeparture, refArrival, err := match.ReferenceEndpoints(bus)
	if err != nil {
		plan.Status = StatusNoSchedule
		plan.Message = err.Error()
		return plan, nil
	}
	plan.RouteDeparture = refDeparture
	plan.RouteArrival = refArrival

	trip, err := m.matcher.ResolveTrip(bus, q.Start, q.End, refDeparture, refArrival, now)
	switch {
	case errors.Is(err, match.ErrNoSchedule):
		plan.Status = StatusNoSchedule
		plan.Message = err.Error()
		return plan, nil
	case errors.Is(err, match.ErrNoTrip):
		plan.Status = StatusNoTrip
		plan.Message = err.Error()
		return plan, nil
	case err != nil:
		return Plan{}, err
	}

	departure, arrival, err := displayTimes(trip, now, loc)
	if err != nil {
		return Plan{}, err
	}
	plan.Status = StatusOK
	plan.Trip = &trip
	plan.Departure = departure
	plan.Arrival = arrival
	return plan, nil
}

// displayTimes renders a trip's clock times on now's date in loc. An arrival
// clock earlier than the departure clock is read as the next day.
func displayTimes(trip transit.ScheduleEntry, now time.Time, loc *time.Location) (string, string, error) {
	dep, err := transit.At(now, trip.DepartureTime)
	if err != nil {
		return "", "", fmt.Errorf("departure time %q: %w", trip.DepartureTime, err)
	}
	arr, err := transit.At(now, trip.ArrivalTime)
	if err != nil {
		return "", "", fmt.Errorf("arrival time %q: %w", trip.ArrivalTime, err)
	}
	if arr.Before(dep) {
		arr = arr.AddDate(0, 0, 1)
	}
	return dep.In(loc).Format(time.RFC3339), arr.In(loc).Format(time.RFC3339), nil
}

func (m *Manager) store(q Query, plan Plan) {
	m.mu.Lock()
	m.sessions[q.SessionID] = &Session{
		ID:        q.SessionID,
		Start:     q.Start,
		End:       q.End,
		Plan:      plan,
		UpdatedAt: time.Now(),
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SessionsSet(n)
	}
}

func (m *Manager) publish(plan Plan) {
	if m.pub == nil {
		return
	}
	msg := publisher.PlanMessage{
		SessionID:     plan.SessionID,
		Status:        plan.Status,
		VehicleNumber: plan.VehicleNumber,
		DepartureTime: plan.Departure,
		ArrivalTime:   plan.Arrival,
		Timestamp:     plan.ComputedAt,
	}
	if plan.Trip != nil {
		msg.From = plan.Trip.DeparturePlace
		msg.To = plan.Trip.ArrivalPlace
	}
	if err := m.pub.PublishPlan(msg); err != nil {
		log.Printf("publish error for session %s: %v", plan.SessionID, err)
	}
}

func (m *Manager) observe(status string, start time.Time) {
	if m.metrics != nil {
		m.metrics.PlanObserve(status, time.Since(start))
	}
}

// Get returns a copy of the stored session.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if ok && m.metrics != nil {
		m.metrics.SessionsSet(n)
	}
	return ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start launches the idle-session janitor and, when a refresh interval is
// configured, the periodic catalog refresher.
func (m *Manager) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel

	if m.ttl > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(m.ttl / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := m.EvictIdle(time.Now()); n > 0 {
						log.Printf("evicted %d idle sessions", n)
					}
				}
			}
		}()
	}

	if m.refresh > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(m.refresh)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := m.catalog.Refresh(ctx); err != nil {
						log.Printf("refresh bus data error: %v", err)
					}
				}
			}
		}()
	}
}

// EvictIdle drops sessions not updated within the TTL before now.
func (m *Manager) EvictIdle(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	evicted := 0
	for id, s := range m.sessions {
		if now.Sub(s.UpdatedAt) > m.ttl {
			delete(m.sessions, id)
			evicted++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if m.metrics != nil && evicted > 0 {
		m.metrics.SessionsEvictedAdd(evicted)
		m.metrics.SessionsSet(n)
	}
	return evicted
}

// Stop cancels the background loops and waits for them to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
