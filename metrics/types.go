package metrics

import "sort"

// Policy defines the aggregation policy for metric values.
// It decides which prometheus collector backs a metric.
type Policy int

const (
	PolicyNone      Policy = iota // No specific policy specified, reported as a gauge
	PolicySet                     // Instantaneous value - last value wins
	PolicySum                     // Sum of all values, a counter
	PolicyAvg                     // Average of all values
	PolicyMax                     // Maximum value
	PolicyMin                     // Minimum value
	PolicyMid                     // Median value
	PolicyStopwatch               // Timer - measures duration in seconds
	PolicyHistogram               // Histogram statistics
)

var policyNames = [...]string{"none", "set", "sum", "avg", "max", "min", "mid", "stopwatch", "histogram"}

func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return "unknown"
	}
	return policyNames[p]
}

// kind groups policies by the collector they need.
type kind int

const (
	kindGauge kind = iota
	kindCounter
	kindHistogram
)

func (p Policy) kind() kind {
	switch p {
	case PolicySum:
		return kindCounter
	case PolicyStopwatch, PolicyHistogram, PolicyAvg, PolicyMid:
		return kindHistogram
	default:
		return kindGauge
	}
}

// Value represents a metric value as a float64.
type Value float64

// Dimension represents metric dimensions as key-value pairs.
// Dimensions become prometheus labels, such as service name or result.
type Dimension map[string]string

// Keys returns the label names in sorted order.
func (d Dimension) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
