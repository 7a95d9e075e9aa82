package handlers

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/api/responses"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/interfaces"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

const dependencyTimeout = 2 * time.Second

type HealthHandler struct {
	startTime    time.Time
	version      string
	environment  string
	dependencies map[string]interfaces.Pinger
	critical     map[string]bool
}

type DependencyCheck struct {
	Name         string        `json:"name"`
	Status       string        `json:"status"`
	Critical     bool          `json:"critical"`
	LastChecked  time.Time     `json:"lastChecked"`
	ResponseTime time.Duration `json:"responseTime"`
	Details      string        `json:"details,omitempty"`
}

type HealthStatus struct {
	Status       string                     `json:"status"`
	Timestamp    time.Time                  `json:"timestamp"`
	Version      string                     `json:"version"`
	Environment  string                     `json:"environment"`
	Uptime       string                     `json:"uptime"`
	System       SystemHealth               `json:"system"`
	Dependencies map[string]DependencyCheck `json:"dependencies"`
}

type SystemHealth struct {
	CPUCount   int    `json:"cpuCount"`
	Goroutines int    `json:"goroutines"`
	Allocated  uint64 `json:"allocated"`
	NumGC      uint32 `json:"numGC"`
}

func NewHealthHandler(version, environment string) *HealthHandler {
	return &HealthHandler{
		startTime:    time.Now(),
		version:      version,
		environment:  environment,
		dependencies: make(map[string]interfaces.Pinger),
		critical:     make(map[string]bool),
	}
}

// AddDependency registers a backend to ping on every health request. A
// failing critical dependency makes the service unhealthy; any other
// failure only degrades it.
func (h *HealthHandler) AddDependency(name string, p interfaces.Pinger, critical bool) {
	h.dependencies[name] = p
	h.critical[name] = critical
}

func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := h.performHealthCheck(r.Context())

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	responses.JSON(w, code, status)
}

func (h *HealthHandler) GetLiveness(w http.ResponseWriter, r *http.Request) {
	responses.JSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
	})
}

func (h *HealthHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	responses.JSON(w, http.StatusOK, map[string]interface{}{
		"version":     h.version,
		"environment": h.environment,
		"build_info": map[string]interface{}{
			"go_version": runtime.Version(),
			"go_os":      runtime.GOOS,
			"go_arch":    runtime.GOARCH,
		},
	})
}

func (h *HealthHandler) performHealthCheck(ctx context.Context) HealthStatus {
	deps := h.checkDependencies(ctx)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return HealthStatus{
		Status:      overallStatus(deps),
		Timestamp:   time.Now(),
		Version:     h.version,
		Environment: h.environment,
		Uptime:      time.Since(h.startTime).String(),
		System: SystemHealth{
			CPUCount:   runtime.NumCPU(),
			Goroutines: runtime.NumGoroutine(),
			Allocated:  memStats.Alloc,
			NumGC:      memStats.NumGC,
		},
		Dependencies: deps,
	}
}

// checkDependencies pings every dependency concurrently.
func (h *HealthHandler) checkDependencies(ctx context.Context) map[string]DependencyCheck {
	ctx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.dependencies))
	for name := range h.dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]DependencyCheck, len(names))
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string, p interfaces.Pinger) {
			defer wg.Done()

			start := time.Now()
			check := DependencyCheck{Name: name, Status: StatusHealthy, Critical: h.critical[name]}
			if err := p.Ping(ctx); err != nil {
				check.Status = StatusUnhealthy
				check.Details = err.Error()
			}
			check.LastChecked = time.Now()
			check.ResponseTime = time.Since(start)

			mu.Lock()
			out[name] = check
			mu.Unlock()
		}(name, h.dependencies[name])
	}
	wg.Wait()

	return out
}

func overallStatus(deps map[string]DependencyCheck) string {
	status := StatusHealthy
	for _, dep := range deps {
		if dep.Status != StatusUnhealthy {
			continue
		}
		if dep.Critical {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}
