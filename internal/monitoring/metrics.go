package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type Metrics struct {
	mu              sync.RWMutex
	RequestCount    int64            `json:"request_count"`
	RequestDuration time.Duration    `json:"avg_request_duration"`
	ActiveRequests  int64            `json:"active_requests"`
	ErrorCount      int64            `json:"error_count"`
	StatusCodes     map[string]int64 `json:"status_codes"`
	Endpoints       map[string]int64 `json:"endpoint_calls"`
	StartTime       time.Time        `json:"start_time"`
	LastRequest     time.Time        `json:"last_request"`
	totalDuration   time.Duration
}

type HealthCheckFunc func(ctx context.Context) error

type healthCheck struct {
	name string
	fn   HealthCheckFunc
}

type HealthChecker struct {
	mu     sync.RWMutex
	checks []healthCheck
}

var globalMetrics = &Metrics{
	StatusCodes: make(map[string]int64),
	Endpoints:   make(map[string]int64),
	StartTime:   time.Now(),
}

var globalHealthChecker = &HealthChecker{}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		globalMetrics.mu.Lock()
		globalMetrics.ActiveRequests++
		globalMetrics.mu.Unlock()

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		endpoint := c.Request.Method + " " + c.FullPath()

		globalMetrics.mu.Lock()
		globalMetrics.RequestCount++
		globalMetrics.ActiveRequests--
		globalMetrics.totalDuration += duration
		globalMetrics.RequestDuration = globalMetrics.totalDuration / time.Duration(globalMetrics.RequestCount)
		globalMetrics.LastRequest = time.Now()

		if statusCode >= 400 {
			globalMetrics.ErrorCount++
		}
		globalMetrics.StatusCodes[http.StatusText(statusCode)]++
		globalMetrics.Endpoints[endpoint]++
		globalMetrics.mu.Unlock()
	}
}

func MetricsHandler(c *gin.Context) {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.JSON(http.StatusOK, gin.H{
		"request_count":        globalMetrics.RequestCount,
		"avg_request_duration": globalMetrics.RequestDuration.String(),
		"active_requests":      globalMetrics.ActiveRequests,
		"error_count":          globalMetrics.ErrorCount,
		"status_codes":         globalMetrics.StatusCodes,
		"endpoint_calls":       globalMetrics.Endpoints,
		"uptime":               time.Since(globalMetrics.StartTime).String(),
		"goroutines":           runtime.NumGoroutine(),
		"heap_alloc_bytes":     memStats.HeapAlloc,
	})
}

// RegisterHealthCheck adds a named dependency check run by the health
// endpoint, e.g. database connectivity or Redis ping.
func RegisterHealthCheck(name string, fn HealthCheckFunc) {
	globalHealthChecker.mu.Lock()
	defer globalHealthChecker.mu.Unlock()
	globalHealthChecker.checks = append(globalHealthChecker.checks, healthCheck{name: name, fn: fn})
}

func HealthHandler(c *gin.Context) {
	globalHealthChecker.mu.RLock()
	checks := make([]healthCheck, len(globalHealthChecker.checks))
	copy(checks, globalHealthChecker.checks)
	globalHealthChecker.mu.RUnlock()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(checks))
	for _, check := range checks {
		if err := check.fn(ctx); err != nil {
			results[check.name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			results[check.name] = "ok"
		}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status": overall,
		"checks": results,
	})
}
