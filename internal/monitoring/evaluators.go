// internal/monitoring/evaluators.go
package monitoring

import (
	"fmt"
	"time"

	"hostwatch/internal/database"
)

// Verdict is one evaluator's view of a (host, check) pair. A nil *Verdict
// from Evaluate means "cannot evaluate" (no data): the pair's alert state is
// left untouched, which is not the same as resolved.
type Verdict struct {
	Alerting bool
	Message  string
}

// Evaluator decides whether a host is breaching a single check kind.
type Evaluator interface {
	Kind() string
	Evaluate(now time.Time, host *database.Host, reading *database.Reading, params map[string]interface{}) (*Verdict, error)
}

func builtinEvaluators() map[string]Evaluator {
	evs := map[string]Evaluator{}
	for _, ev := range []Evaluator{
		&OnlineEvaluator{},
		&GaugeEvaluator{kind: "disk_space", label: "disk usage", field: func(r *database.Reading) *float64 { return r.DiskPct }},
		&GaugeEvaluator{kind: "memory_usage", label: "memory usage", field: func(r *database.Reading) *float64 { return r.MemPct }},
		&GaugeEvaluator{kind: "cpu_usage", label: "CPU usage", field: func(r *database.Reading) *float64 { return r.CPUPct }},
	} {
		evs[ev.Kind()] = ev
	}
	return evs
}

// mergeParams lays the host override over the check-type defaults, override
// winning per key.
func mergeParams(defaults, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaults)+len(override))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// paramFloat reads a numeric parameter. YAML seeds arrive as int, JSON
// overrides as float64; both are accepted.
func paramFloat(params map[string]interface{}, name string, def float64) (float64, error) {
	raw, ok := params[name]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("parameter %q has non-numeric value %v (%T)", name, raw, raw)
	}
}

// OnlineEvaluator alerts when a host has not reported within its offline
// window. Parameters: offline_threshold_minutes.
type OnlineEvaluator struct{}

func (e *OnlineEvaluator) Kind() string { return "host_online" }

func (e *OnlineEvaluator) Evaluate(now time.Time, host *database.Host, reading *database.Reading, params map[string]interface{}) (*Verdict, error) {
	minutes, err := paramFloat(params, "offline_threshold_minutes", 60)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 {
		return nil, fmt.Errorf("offline_threshold_minutes must be positive, got %v", minutes)
	}
	threshold := time.Duration(minutes * float64(time.Minute))

	// A host that never reported anything is considered offline outright.
	if host.LastSeen.IsZero() && reading == nil {
		return &Verdict{
			Alerting: true,
			Message:  fmt.Sprintf("Host '%s' has never reported data", host.Name),
		}, nil
	}

	lastSeen := host.LastSeen
	if lastSeen.IsZero() {
		lastSeen = reading.CollectedAt
	}

	elapsed := now.Sub(lastSeen)
	// Strict: a host exactly at the threshold is still online.
	if elapsed > threshold {
		return &Verdict{
			Alerting: true,
			Message: fmt.Sprintf("Host '%s' offline for %d minutes (threshold: %d)",
				host.Name, int(elapsed.Minutes()), int(minutes)),
		}, nil
	}

	return &Verdict{
		Alerting: false,
		Message:  fmt.Sprintf("Host '%s' is online", host.Name),
	}, nil
}

// GaugeEvaluator alerts when one percentage field of the latest reading is at
// or above threshold_pct. A missing reading or missing field yields no
// verdict: lack of data must not open or resolve anything.
type GaugeEvaluator struct {
	kind  string
	label string
	field func(*database.Reading) *float64
}

func (e *GaugeEvaluator) Kind() string { return e.kind }

func (e *GaugeEvaluator) Evaluate(now time.Time, host *database.Host, reading *database.Reading, params map[string]interface{}) (*Verdict, error) {
	threshold, err := paramFloat(params, "threshold_pct", 90)
	if err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("threshold_pct must be between 0 and 100, got %v", threshold)
	}

	if reading == nil {
		return nil, nil
	}
	value := e.field(reading)
	if value == nil {
		return nil, nil
	}

	if *value >= threshold {
		return &Verdict{
			Alerting: true,
			Message: fmt.Sprintf("Host '%s' %s critical: %.1f%% (threshold: %.0f%%)",
				host.Name, e.label, *value, threshold),
		}, nil
	}

	return &Verdict{
		Alerting: false,
		Message: fmt.Sprintf("Host '%s' %s normal: %.1f%%",
			host.Name, e.label, *value),
	}, nil
}
