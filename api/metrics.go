package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike   AlertType = "login_failure_spike"
	AlertRefreshFailureSpike AlertType = "refresh_failure_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// slidingWindow counts events in the trailing window and fires once the
// threshold is reached, then starts over.
type slidingWindow struct {
	events    []time.Time
	window    time.Duration
	threshold int
}

func (s *slidingWindow) add(now time.Time) (count int, fired bool) {
	s.events = append(s.events, now)
	cutoff := now.Add(-s.window)
	start := 0
	for start < len(s.events) && s.events[start].Before(cutoff) {
		start++
	}
	s.events = s.events[start:]
	count = len(s.events)
	if count >= s.threshold {
		s.events = s.events[:0]
		return count, true
	}
	return count, false
}

// metricsCollector watches audit events for spikes. A burst of refresh
// failures across many browsers usually means the backend rotated its
// signing keys or is rejecting every refresh token.
type metricsCollector struct {
	mu      sync.Mutex
	logins  slidingWindow
	refresh slidingWindow
	alertFn AlertFunc
	now     func() time.Time
}

const (
	defaultLoginFailureWindow      = 1 * time.Minute
	defaultLoginFailureThreshold   = 50
	defaultRefreshFailureWindow    = 5 * time.Minute
	defaultRefreshFailureThreshold = 100
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		logins:  slidingWindow{window: defaultLoginFailureWindow, threshold: defaultLoginFailureThreshold},
		refresh: slidingWindow{window: defaultRefreshFailureWindow, threshold: defaultRefreshFailureThreshold},
		alertFn: alertFn,
		now:     time.Now,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditLoginFailure:
		m.record(&m.logins, AlertLoginFailureSpike, "login failure rate exceeds threshold")
	case AuditRefreshFailure:
		m.record(&m.refresh, AlertRefreshFailureSpike, "refresh failure rate exceeds threshold")
	}
}

func (m *metricsCollector) record(w *slidingWindow, typ AlertType, msg string) {
	m.mu.Lock()
	now := m.now()
	count, fired := w.add(now)
	threshold := w.threshold
	m.mu.Unlock()

	if fired {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     count,
			Threshold: threshold,
			Timestamp: now,
		})
	}
}
