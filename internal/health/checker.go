// Package health tracks the readiness of ledgerd's dependencies.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// ProbeFunc reports whether a dependency is reachable.
type ProbeFunc func(ctx context.Context) error

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, success bool)

// Status is the last known state of one probe.
type Status struct {
	Healthy   bool      `json:"healthy"`
	FailCount int       `json:"fail_count"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	// Advisory probes are reported but never make the checker unhealthy.
	Advisory bool `json:"advisory,omitempty"`
}

// Checker runs registered probes periodically. A probe is reported unhealthy
// only after FailThreshold consecutive failures.
type Checker struct {
	mu        sync.Mutex
	probes    map[string]ProbeFunc
	statuses  map[string]Status
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a Checker.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 15 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		probes:   make(map[string]ProbeFunc),
		statuses: make(map[string]Status),
		cfg:      cfg,
		logger:   logger,
	}
}

// Register adds a named probe. Probes start out healthy.
func (h *Checker) Register(name string, probe ProbeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = probe
	h.statuses[name] = Status{Healthy: true}
}

// RegisterAdvisory adds a named probe whose failures show up in the report
// without affecting Healthy or the /healthz status code.
func (h *Checker) RegisterAdvisory(name string, probe ProbeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = probe
	h.statuses[name] = Status{Healthy: true, Advisory: true}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until ctx is cancelled.
func (h *Checker) Start(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe once, concurrently.
func (h *Checker) CheckAll(ctx context.Context) {
	h.mu.Lock()
	probes := make(map[string]ProbeFunc, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe ProbeFunc) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := probe(pctx)
			cancel()
			h.record(name, err)
		}(name, probe)
	}
	wg.Wait()
}

func (h *Checker) record(name string, err error) {
	if h.onMetrics != nil {
		h.onMetrics(name, err == nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.statuses[name]
	next := Status{CheckedAt: time.Now().UTC(), Advisory: prev.Advisory}
	if err == nil {
		next.Healthy = true
	} else {
		next.FailCount = prev.FailCount + 1
		next.LastError = err.Error()
		next.Healthy = next.FailCount < h.cfg.FailThreshold
	}
	h.statuses[name] = next

	switch {
	case prev.Healthy && !next.Healthy && next.Advisory:
		h.logger.Info("health: advisory probe failing",
			zap.String("probe", name),
			zap.Error(err),
		)
	case prev.Healthy && !next.Healthy:
		h.logger.Warn("health: degraded",
			zap.String("probe", name),
			zap.Int("fail_count", next.FailCount),
			zap.Error(err),
		)
	case !prev.Healthy && next.Healthy:
		h.logger.Info("health: recovered", zap.String("probe", name))
	}
}

// Healthy reports whether every non-advisory probe is healthy, along with a
// copy of the per-probe statuses.
func (h *Checker) Healthy() (bool, map[string]Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ok := true
	out := make(map[string]Status, len(h.statuses))
	for name, s := range h.statuses {
		out[name] = s
		ok = ok && (s.Healthy || s.Advisory)
	}
	return ok, out
}

// Handler serves GET /healthz: 200 when healthy, 503 otherwise.
func (h *Checker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, statuses := h.Healthy()
		status, code := "ok", http.StatusOK
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "probes": statuses})
	}
}
