package models

import (
	"time"
)

// Metric is one named, pattern specific value attached to an event.
type Metric struct {
	Name  string
	Value interface{}
}

// Metrics is an ordered list of metrics. Order is preserved into exported tables.
type Metrics []Metric

// Set appends the metric or replaces an existing value with the same name.
func (m *Metrics) Set(name string, value interface{}) {
	for i := range *m {
		if (*m)[i].Name == name {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Metric{Name: name, Value: value})
}

// Get returns the value stored under name.
func (m Metrics) Get(name string) (interface{}, bool) {
	for _, metric := range m {
		if metric.Name == name {
			return metric.Value, true
		}
	}
	return nil, false
}

// Float returns a numeric metric as float64, or 0 if absent or not numeric.
func (m Metrics) Float(name string) float64 {
	v, _ := m.Get(name)
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// Int returns an integer metric, or 0 if absent or not an integer.
func (m Metrics) Int(name string) int {
	v, _ := m.Get(name)
	if n, ok := v.(int); ok {
		return n
	}
	return 0
}

// Time returns a time metric, or the zero time if absent.
func (m Metrics) Time(name string) time.Time {
	v, _ := m.Get(name)
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}

// Names returns the metric names in order.
func (m Metrics) Names() []string {
	names := make([]string, len(m))
	for i, metric := range m {
		names[i] = metric.Name
	}
	return names
}

// Event is one detected pattern occurrence for a single symbol.
type Event struct {
	Symbol  string
	Scan    string
	Time    time.Time
	Price   float64
	Side    Side
	Metrics Metrics
	Details TickerDetails
}
