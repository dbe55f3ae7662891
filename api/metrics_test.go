package api

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertSink struct {
	mu     sync.Mutex
	alerts []AlertEvent
}

func (s *alertSink) record(e AlertEvent) {
	s.mu.Lock()
	s.alerts = append(s.alerts, e)
	s.mu.Unlock()
}

func (s *alertSink) all() []AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AlertEvent(nil), s.alerts...)
}

func TestLoginFailureSpikeAlert(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.record)
	collector.logins.threshold = 5

	for i := 0; i < 4; i++ {
		collector.recordEvent(AuditLoginFailure)
	}
	assert.Empty(t, sink.all(), "no alert below threshold")

	collector.recordEvent(AuditLoginFailure)
	alerts := sink.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLoginFailureSpike, alerts[0].Type)
	assert.Equal(t, 5, alerts[0].Count)
}

func TestRefreshFailureSpikeAlert(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.record)
	collector.refresh.threshold = 3

	for i := 0; i < 3; i++ {
		collector.recordEvent(AuditRefreshFailure)
	}
	alerts := sink.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRefreshFailureSpike, alerts[0].Type)
}

func TestAlertWindowSlides(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.record)
	collector.logins.threshold = 3
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	collector.now = clock.now

	collector.recordEvent(AuditLoginFailure)
	collector.recordEvent(AuditLoginFailure)
	clock.advance(2 * defaultLoginFailureWindow)
	collector.recordEvent(AuditLoginFailure)

	assert.Empty(t, sink.all(), "failures outside the window do not count")
}

func TestAlertResetsAfterFiring(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.record)
	collector.logins.threshold = 2

	for i := 0; i < 3; i++ {
		collector.recordEvent(AuditLoginFailure)
	}
	assert.Len(t, sink.all(), 1, "the third failure starts a new count")
}

func TestIgnoredEventsAndNilCollector(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.record)
	collector.logins.threshold = 1

	collector.recordEvent(AuditLoginSuccess)
	collector.recordEvent(AuditLogout)
	assert.Empty(t, sink.all())

	var nilCollector *metricsCollector
	assert.NotPanics(t, func() { nilCollector.recordEvent(AuditLoginFailure) })
}
