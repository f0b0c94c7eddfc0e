package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSweepFailuresEscalate(t *testing.T) {
	c := New(Thresholds{MaxConsecutiveSweepFailures: 4})
	assert.Equal(t, StatusHealthy, c.Status())

	c.RecordSweepFailure(errors.New("denied"))
	assert.Equal(t, StatusHealthy, c.Status())

	c.RecordSweepFailure(errors.New("denied"))
	assert.Equal(t, StatusDegraded, c.Status())

	c.RecordSweepFailure(errors.New("denied"))
	c.RecordSweepFailure(errors.New("denied"))
	assert.Equal(t, StatusUnhealthy, c.Status())

	c.RecordSweepSuccess()
	assert.Equal(t, StatusHealthy, c.Status())
	assert.EqualValues(t, 4, c.Report()["total_sweep_failures"])
}

func TestRegistryDegradedIsUnhealthy(t *testing.T) {
	c := New(DefaultThresholds())
	c.MarkRegistryDegraded()
	c.RecordSweepSuccess()

	assert.Equal(t, StatusUnhealthy, c.Status())
	assert.Equal(t, true, c.Report()["registry_degraded"])
}

func TestLaunchFailuresDegrade(t *testing.T) {
	c := New(Thresholds{MaxConsecutiveLaunchFailures: 2})

	c.RecordLaunch(errors.New("missing template"))
	c.RecordLaunch(errors.New("missing template"))
	assert.Equal(t, StatusDegraded, c.Status())

	c.RecordLaunch(nil)
	assert.True(t, c.IsHealthy())
}

func TestStaleSweepIsUnhealthy(t *testing.T) {
	now := time.Now()
	c := New(Thresholds{MaxSweepAge: time.Minute})
	c.now = func() time.Time { return now }

	c.RecordSweepSuccess()
	assert.Equal(t, StatusHealthy, c.Status())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, StatusUnhealthy, c.Status())
}
