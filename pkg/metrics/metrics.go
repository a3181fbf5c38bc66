// Package metrics holds the prometheus collectors for the bridge and the
// tool engine. Collectors register with the default registry.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/bridge"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

const (
	namespace = "nmbridge"

	// otherLabel stands in for tool and command names outside the known set.
	otherLabel = "other"
)

var (
	knownMu sync.RWMutex
	known   = map[string]struct{}{}
)

// KnownNames adds tool and command names that are reported under their own
// label. Anything else is counted as "other".
func KnownNames(names ...string) {
	knownMu.Lock()
	defer knownMu.Unlock()
	for _, n := range names {
		if n != "" {
			known[n] = struct{}{}
		}
	}
}

func label(name string) string {
	knownMu.RLock()
	defer knownMu.RUnlock()
	if _, ok := known[name]; ok {
		return name
	}
	return otherLabel
}

var (
	toolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "executions_total",
		Help:      "Tool executions by tool and status",
	}, []string{"tool", "status"})

	fileChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "file_changes_total",
		Help:      "File change notifications by operation",
	}, []string{"op"})

	bridgeState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "connection_state",
		Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected",
	})

	bridgeConnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "connects_total",
		Help:      "Successful connection opens",
	})

	bridgeCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "commands_total",
		Help:      "Commands sent over the bridge by command and outcome",
	}, []string{"command", "outcome"})

	bridgeSnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "snapshots_total",
		Help:      "State snapshots received",
	})
)

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveToolResult matches tool.Observer.
func ObserveToolResult(call types.ToolCall, result types.ToolResult) {
	toolExecutionsTotal.WithLabelValues(label(call.Name), status(result.Success)).Inc()
}

func RecordFileChange(op types.FileChangeOp) {
	fileChangesTotal.WithLabelValues(string(op)).Inc()
}

// ObserveBridgeState matches bridge.StateHandler.
func ObserveBridgeState(state bridge.ConnectionState) {
	bridgeState.Set(float64(state))
	if state == bridge.Connected {
		bridgeConnectsTotal.Inc()
	}
}

func RecordSnapshot() {
	bridgeSnapshotsTotal.Inc()
}

// RecordCommand classifies the outcome of a SendCommand call.
func RecordCommand(command string, err error) {
	bridgeCommandsTotal.WithLabelValues(label(command), CommandOutcome(err)).Inc()
}

func CommandOutcome(err error) string {
	var remote *bridge.RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, bridge.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, bridge.ErrCommandTimeout):
		return "timeout"
	case errors.As(err, &remote):
		return "remote_error"
	default:
		return "error"
	}
}
