package domain

import "time"

// Sample is one raw observation of the monitored value.
type Sample struct {
	Value      string    `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// FetchResult is what the fetcher adapter produced for a single tick.
// Err non-nil means the fetch failed and Sample must be ignored.
type FetchResult struct {
	Sample Sample
	Err    *FetchError
}

// Succeeded builds a successful result.
func Succeeded(value string, at time.Time) FetchResult {
	return FetchResult{Sample: Sample{Value: value, ObservedAt: at}}
}

// Failed builds a failed result observed at the given time.
func Failed(err error, at time.Time) FetchResult {
	return FetchResult{
		Sample: Sample{ObservedAt: at},
		Err:    AsFetchError(err),
	}
}

// HistoryEntry is an accepted sample recorded in the history.
type HistoryEntry struct {
	Value      string    `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// HistoryMode selects which accepted samples end up in the history.
type HistoryMode string

const (
	// HistoryTransitions records only samples that changed the value.
	HistoryTransitions HistoryMode = "transitions"
	// HistorySamples records every accepted sample.
	HistorySamples HistoryMode = "samples"
)

// Valid reports whether m is a known mode.
func (m HistoryMode) Valid() bool {
	return m == HistoryTransitions || m == HistorySamples
}

// CurrentState is the authoritative view of the monitored value.
//
// There is exactly one live instance per monitor. Readers only ever see copies.
type CurrentState struct {
	// ─────────────────────────────
	// Last accepted value
	// ─────────────────────────────

	// Value is empty until the first successful sample.
	Value string `json:"value"`

	// PreviousValue is the value held before the last transition.
	// Empty when only one value has ever been observed.
	PreviousValue string `json:"previous_value,omitempty"`

	// LastUpdated is the observation time of the last accepted sample.
	// It never moves backwards.
	LastUpdated time.Time `json:"last_updated"`

	// LastChanged is the observation time of the last transition.
	LastChanged time.Time `json:"last_changed"`

	// ─────────────────────────────
	// Failure tracking
	// ─────────────────────────────

	// LastError is empty when the last tick succeeded.
	LastError ErrorKind `json:"last_error,omitempty"`

	LastErrorMessage string    `json:"last_error_message,omitempty"`
	LastErrorAt      time.Time `json:"last_error_at"`

	// ConsecutiveFailures resets on every accepted sample.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// HasValue reports whether at least one sample was accepted.
func (s CurrentState) HasValue() bool {
	return s.Value != ""
}

// IsStale reports whether consumers should flag the value as out of date:
// the last tick failed, or nothing was accepted for two poll intervals.
func (s CurrentState) IsStale(now time.Time, interval time.Duration) bool {
	if s.LastError != "" {
		return true
	}
	if s.LastUpdated.IsZero() {
		return true
	}
	return now.Sub(s.LastUpdated) > 2*interval
}

// Age returns how long ago the last sample was accepted, zero if never.
func (s CurrentState) Age(now time.Time) time.Duration {
	if s.LastUpdated.IsZero() {
		return 0
	}
	return now.Sub(s.LastUpdated)
}
