// Package connectivity tracks whether the claims backend is reachable.
// It combines the platform's online/offline signal with a health probe
// over the configured routes and picks the best route.
package connectivity

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/xelth-com/claimsync/internal/config"
	"github.com/xelth-com/claimsync/internal/logging"
)

// State is the binary connectivity state
type State string

const (
	Online  State = "online"
	Offline State = "offline"
)

// offlineRoute is recorded in the route history when no route answers
const offlineRoute = "offline"

const maxHistory = 100

// Prober checks a route
type Prober interface {
	HealthAt(ctx context.Context, baseURL string) error
}

// RouteSwitch records a change of the active route
type RouteSwitch struct {
	FromRoute string    `json:"fromRoute"`
	ToRoute   string    `json:"toRoute"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// RouteStatus tracks the health of a route
type RouteStatus struct {
	URL          string        `json:"url"`
	IsAvailable  bool          `json:"isAvailable"`
	LastCheck    time.Time     `json:"lastCheck"`
	LastSuccess  *time.Time    `json:"lastSuccess,omitempty"`
	LastFailure  *time.Time    `json:"lastFailure,omitempty"`
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	AvgLatency   time.Duration `json:"avgLatency"`
	latencySum   time.Duration
	latencyCount int
}

// Config configures a Monitor
type Config struct {
	Routes        []config.SyncRouteConfig
	Prober        Prober
	CheckInterval time.Duration
	// OnRoute is called with the new base URL whenever the active route changes
	OnRoute func(url string)
	Logger  *log.Logger
}

// Monitor is the single source of truth for connectivity
type Monitor struct {
	mu sync.RWMutex

	routes   []config.SyncRouteConfig
	statuses map[string]*RouteStatus
	history  []RouteSwitch
	current  string
	online   bool

	prober   Prober
	onRoute  func(string)
	interval time.Duration
	logger   *log.Logger

	listeners map[int]func(bool)
	nextID    int

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMonitor creates a monitor that starts offline
func NewMonitor(cfg Config) *Monitor {
	routes := append([]config.SyncRouteConfig(nil), cfg.Routes...)
	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Priority < routes[j].Priority })

	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m := &Monitor{
		routes:    routes,
		statuses:  make(map[string]*RouteStatus),
		prober:    cfg.Prober,
		onRoute:   cfg.OnRoute,
		interval:  interval,
		logger:    logging.OrDefault(cfg.Logger),
		listeners: make(map[int]func(bool)),
	}
	for _, r := range routes {
		m.statuses[r.URL] = &RouteStatus{URL: r.URL}
	}
	return m
}

// IsOnline reports the current state
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// State returns the current state
func (m *Monitor) State() State {
	if m.IsOnline() {
		return Online
	}
	return Offline
}

// CurrentRoute returns the active route, empty when none was selected yet
func (m *Monitor) CurrentRoute() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers a listener for online/offline transitions. Listeners
// run synchronously on the goroutine that caused the transition and must
// not block. The returned function removes the listener.
func (m *Monitor) OnChange(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// SetOnline applies a platform connectivity signal
func (m *Monitor) SetOnline(online bool) {
	reason := "platform_offline"
	if online {
		reason = "platform_online"
	}
	m.setOnline(online, reason)
}

func (m *Monitor) setOnline(online bool, reason string) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	if online {
		m.logger.Printf("🌐 Connectivity: online (%s)", reason)
	} else {
		m.logger.Printf("📴 Connectivity: offline (%s)", reason)
	}
	for _, fn := range listeners {
		fn(online)
	}
}

// Probe checks the routes in priority order, selects the first healthy one
// and updates the state. It returns whether any route answered. With no
// routes configured the state is left to the platform signal.
func (m *Monitor) Probe(ctx context.Context) bool {
	m.mu.RLock()
	routes := m.routes
	m.mu.RUnlock()
	if len(routes) == 0 || m.prober == nil {
		return m.IsOnline()
	}

	selected := ""
	for _, route := range routes {
		if m.testRoute(ctx, route) {
			selected = route.URL
			break
		}
	}

	if selected == "" {
		m.switchRoute(offlineRoute, "all_routes_unavailable")
		m.setOnline(false, "health_check_failed")
		return false
	}
	m.switchRoute(selected, "route_available")
	m.setOnline(true, "health_check_ok")
	return true
}

// testRoute probes one route without holding the lock during the request
func (m *Monitor) testRoute(ctx context.Context, route config.SyncRouteConfig) bool {
	if route.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(route.Timeout)*time.Second)
		defer cancel()
	}

	start := time.Now()
	err := m.prober.HealthAt(ctx, route.URL)
	latency := time.Since(start)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	status := m.statuses[route.URL]
	status.LastCheck = now
	if err != nil {
		status.IsAvailable = false
		status.FailureCount++
		status.LastFailure = &now
		m.logger.Printf("⚠️ Route %s failed: %v", route.URL, err)
		return false
	}

	status.IsAvailable = true
	status.SuccessCount++
	status.FailureCount = 0
	status.LastSuccess = &now
	status.latencySum += latency
	status.latencyCount++
	status.AvgLatency = status.latencySum / time.Duration(status.latencyCount)
	return true
}

func (m *Monitor) switchRoute(to, reason string) {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return
	}
	m.current = to
	m.history = append(m.history, RouteSwitch{FromRoute: from, ToRoute: to, Reason: reason, Timestamp: time.Now()})
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	onRoute := m.onRoute
	m.mu.Unlock()

	m.logger.Printf("🔀 Route switched: %s -> %s (reason: %s)", from, to, reason)
	if onRoute != nil && to != offlineRoute {
		onRoute(to)
	}
}

// RouteStatuses returns a copy of every route's health
func (m *Monitor) RouteStatuses() map[string]RouteStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]RouteStatus, len(m.statuses))
	for k, v := range m.statuses {
		out[k] = *v
	}
	return out
}

// History returns the route switch history, oldest first
func (m *Monitor) History() []RouteSwitch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RouteSwitch(nil), m.history...)
}

// Start probes once and then on every interval until Stop or ctx ends
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.Probe(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Probe(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the health check loop and waits for it
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()
	<-done
}
