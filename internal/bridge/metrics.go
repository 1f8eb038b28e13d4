// Copyright 2025 Joseph Cumines
//
// Metrics registry for bridge observability

package bridge

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Metrics tracks bridge activity with simple in-memory counters exportable in
// Prometheus text format. It is safe for concurrent use.
type Metrics struct {
	mu             sync.RWMutex
	messages       map[string]uint64 // "type|direction" -> count
	toolRequests   map[string]uint64 // status -> count
	durationBkts   []uint64          // bucket counts, aligned with durationBounds
	durationSum    float64
	durationCount  uint64
	linksConnected float64
}

// durationBounds are the upper bounds (seconds) of the tool-request latency
// histogram.
var durationBounds = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// NewMetrics creates an empty registry.
func NewMetrics() *Metrics {
	return &Metrics{
		messages:     make(map[string]uint64),
		toolRequests: make(map[string]uint64),
		durationBkts: make([]uint64, len(durationBounds)),
	}
}

// CountMessage records one protocol message crossing the socket.
func (m *Metrics) CountMessage(msgType, direction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msgType+"|"+direction]++
}

// ObserveToolRequest records one completed (or failed) tool call.
func (m *Metrics) ObserveToolRequest(status string, d time.Duration) {
	secs := d.Seconds()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolRequests[status]++
	m.durationSum += secs
	m.durationCount++
	for i, bound := range durationBounds {
		if secs <= bound {
			m.durationBkts[i]++
		}
	}
}

// SetLinksConnected records how many handshaken extension links exist (0 or 1
// in the current single-link topology).
func (m *Metrics) SetLinksConnected(n float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linksConnected = n
}

// WriteMetrics exports the registry in Prometheus text format.
func (m *Metrics) WriteMetrics(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fmt.Fprintln(w, "# TYPE bridge_messages_total counter")
	for _, key := range sortedKeys(m.messages) {
		parts := splitKey(key)
		fmt.Fprintf(w, "bridge_messages_total{type=%q,direction=%q} %d\n", parts[0], parts[1], m.messages[key])
	}

	fmt.Fprintln(w, "# TYPE bridge_tool_requests_total counter")
	for _, status := range sortedKeys(m.toolRequests) {
		fmt.Fprintf(w, "bridge_tool_requests_total{status=%q} %d\n", status, m.toolRequests[status])
	}

	fmt.Fprintln(w, "# TYPE bridge_tool_request_duration_seconds histogram")
	for i, bound := range durationBounds {
		fmt.Fprintf(w, "bridge_tool_request_duration_seconds_bucket{le=\"%g\"} %d\n", bound, m.durationBkts[i])
	}
	fmt.Fprintf(w, "bridge_tool_request_duration_seconds_bucket{le=\"+Inf\"} %d\n", m.durationCount)
	fmt.Fprintf(w, "bridge_tool_request_duration_seconds_sum %g\n", m.durationSum)
	fmt.Fprintf(w, "bridge_tool_request_duration_seconds_count %d\n", m.durationCount)

	fmt.Fprintln(w, "# TYPE bridge_links_connected gauge")
	fmt.Fprintf(w, "bridge_links_connected %g\n", m.linksConnected)
	return nil
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func splitKey(key string) [2]string {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return [2]string{key[:i], key[i+1:]}
		}
	}
	return [2]string{key, ""}
}
