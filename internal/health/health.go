// Package health derives a service health status from sweep and launch outcomes.
package health

import (
	"sync"
	"time"
)

// Status represents the health state of the monitor
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

// String returns string representation of health status
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Thresholds tune when the status flips
type Thresholds struct {
	MaxConsecutiveSweepFailures  int
	MaxConsecutiveLaunchFailures int
	// MaxSweepAge marks the monitor unhealthy when no sweep succeeded for this long once
	// sweeping has started. Zero disables the check.
	MaxSweepAge time.Duration
}

// DefaultThresholds returns the thresholds used by the CLI
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxConsecutiveSweepFailures:  5,
		MaxConsecutiveLaunchFailures: 10,
		MaxSweepAge:                  2 * time.Minute,
	}
}

// Check tracks monitor health
type Check struct {
	mu sync.RWMutex

	status           Status
	lastStatusChange time.Time

	sweeping                 bool
	lastSuccessfulSweep      time.Time
	consecutiveSweepFailures int
	totalSweepFailures       int64
	lastSweepError           string

	consecutiveLaunchFailures int
	totalLaunchFailures       int64

	registryDegraded bool

	thresholds Thresholds
	now        func() time.Time
}

// New creates a health check
func New(th Thresholds) *Check {
	if th.MaxConsecutiveSweepFailures <= 0 {
		th.MaxConsecutiveSweepFailures = DefaultThresholds().MaxConsecutiveSweepFailures
	}
	if th.MaxConsecutiveLaunchFailures <= 0 {
		th.MaxConsecutiveLaunchFailures = DefaultThresholds().MaxConsecutiveLaunchFailures
	}
	c := &Check{
		status:     StatusHealthy,
		thresholds: th,
		now:        time.Now,
	}
	c.lastStatusChange = c.now()
	return c
}

// RecordSweepSuccess records a sweep that read the process table
func (c *Check) RecordSweepSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweeping = true
	c.lastSuccessfulSweep = c.now()
	c.consecutiveSweepFailures = 0
	c.updateStatus()
}

// RecordSweepFailure records a sweep that could not read the process table
func (c *Check) RecordSweepFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sweeping {
		c.sweeping = true
		c.lastSuccessfulSweep = c.now()
	}
	c.consecutiveSweepFailures++
	c.totalSweepFailures++
	if err != nil {
		c.lastSweepError = err.Error()
	}
	c.updateStatus()
}

// RecordLaunch records the outcome of a start request
func (c *Check) RecordLaunch(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.consecutiveLaunchFailures = 0
	} else {
		c.consecutiveLaunchFailures++
		c.totalLaunchFailures++
	}
	c.updateStatus()
}

// MarkRegistryDegraded records that the registry was poisoned; it never recovers
func (c *Check) MarkRegistryDegraded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registryDegraded = true
	c.updateStatus()
}

// updateStatus must be called with lock held
func (c *Check) updateStatus() {
	next := StatusHealthy

	switch {
	case c.registryDegraded:
		next = StatusUnhealthy
	case c.sweeping && c.thresholds.MaxSweepAge > 0 && c.now().Sub(c.lastSuccessfulSweep) > c.thresholds.MaxSweepAge:
		next = StatusUnhealthy
	case c.consecutiveSweepFailures >= c.thresholds.MaxConsecutiveSweepFailures:
		next = StatusUnhealthy
	case c.consecutiveSweepFailures >= (c.thresholds.MaxConsecutiveSweepFailures+1)/2:
		next = StatusDegraded
	}

	if c.consecutiveLaunchFailures >= c.thresholds.MaxConsecutiveLaunchFailures && next < StatusDegraded {
		next = StatusDegraded
	}

	if next != c.status {
		c.status = next
		c.lastStatusChange = c.now()
	}
}

// Status returns the current health status
func (c *Check) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.updateStatus()
	return c.status
}

// IsHealthy returns true if the monitor is healthy
func (c *Check) IsHealthy() bool {
	return c.Status() == StatusHealthy
}

// Report returns a detailed health report for the status API
func (c *Check) Report() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.updateStatus()
	report := map[string]interface{}{
		"status":                      c.status.String(),
		"status_duration":             c.now().Sub(c.lastStatusChange).Round(time.Second).String(),
		"consecutive_sweep_failures":  c.consecutiveSweepFailures,
		"total_sweep_failures":        c.totalSweepFailures,
		"consecutive_launch_failures": c.consecutiveLaunchFailures,
		"total_launch_failures":       c.totalLaunchFailures,
		"registry_degraded":           c.registryDegraded,
	}
	if c.sweeping {
		report["last_successful_sweep"] = c.lastSuccessfulSweep.Format(time.RFC3339)
	}
	if c.lastSweepError != "" {
		report["last_sweep_error"] = c.lastSweepError
	}
	return report
}
