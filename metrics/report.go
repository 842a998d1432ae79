package metrics

import (
	"net/http"
	"sync/atomic"
)

var _defaultRegistry atomic.Pointer[Registry]

func init() {
	_defaultRegistry.Store(NewRegistry())
}

// Default returns the process wide registry used by the package functions.
func Default() *Registry {
	return _defaultRegistry.Load()
}

// SetDefault replaces the process wide registry. Tests use it to start from zero.
func SetDefault(r *Registry) {
	if r != nil {
		_defaultRegistry.Store(r)
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return Default().Handler()
}

// IncrCounterWithGroup adds v to a counter.
func IncrCounterWithGroup(group, name string, v Value) {
	Default().Report(group, name, v, PolicySum, nil)
}

// IncrCounterWithDimGroup adds v to the counter labelled by dim.
func IncrCounterWithDimGroup(group, name string, v Value, dim Dimension) {
	Default().Report(group, name, v, PolicySum, dim)
}

// UpdateGaugeWithGroup sets a gauge.
func UpdateGaugeWithGroup(group, name string, v Value) {
	Default().Report(group, name, v, PolicySet, nil)
}

// UpdateGaugeWithDimGroup sets the gauge labelled by dim.
func UpdateGaugeWithDimGroup(group, name string, v Value, dim Dimension) {
	Default().Report(group, name, v, PolicySet, dim)
}

// ObserveWithGroup adds an observation, usually seconds, to a histogram.
func ObserveWithGroup(group, name string, v Value) {
	Default().Report(group, name, v, PolicyStopwatch, nil)
}
