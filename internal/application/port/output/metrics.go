package output

import "time"

// Metrics receives operational counters. The Prometheus collector implements it.
type Metrics interface {
	SessionCreated(chainID string)
	SessionsCleared(reason string, n int)
	RunsPruned(n int)
	GateOutcome(status, mode string)
	VerifyRun(passed, timedOut bool, d time.Duration)
	RequestHandled(kind, status string, d time.Duration)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) SessionCreated(string)                        {}
func (NopMetrics) SessionsCleared(string, int)                  {}
func (NopMetrics) RunsPruned(int)                               {}
func (NopMetrics) GateOutcome(string, string)                   {}
func (NopMetrics) VerifyRun(bool, bool, time.Duration)          {}
func (NopMetrics) RequestHandled(string, string, time.Duration) {}

// OrNop returns m, or NopMetrics when m is nil
func OrNop(m Metrics) Metrics {
	if m == nil {
		return NopMetrics{}
	}
	return m
}
