// Package controlplane wires the bridge client to the tool engine: pushed
// snapshots replace the engine's file set, and engine mutations are
// forwarded to the connected instance as bridge commands.
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/agent/tools"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/bridge"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/config"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/metrics"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// Bridge is the part of *bridge.Client the control plane drives.
type Bridge interface {
	OnSnapshot(fn bridge.SnapshotHandler)
	OnStateChange(fn bridge.StateHandler)
	State() bridge.ConnectionState
	Attempts() int
	Snapshot() (types.ApplicationSnapshot, bool)
	RequestStateRefresh()
	SendCommand(ctx context.Context, name string, params any) (json.RawMessage, error)
}

// Status is a point-in-time view of the bridge.
type Status struct {
	State       string `json:"state"`
	Attempts    int    `json:"attempts"`
	HasSnapshot bool   `json:"has_snapshot"`
	Files       int    `json:"files"`
	PendingSync int    `json:"pending_sync"`
}

type ControlPlane struct {
	cfg     config.SyncConfig
	bridge  Bridge
	engine  *tools.Engine
	log     *slog.Logger
	changes chan types.FileChange
}

// New builds the engine from engineCfg and connects it to b. Any sink
// already in engineCfg keeps receiving notifications.
func New(cfg config.SyncConfig, b Bridge, engineCfg tools.Config, logger *slog.Logger) (*ControlPlane, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	p := &ControlPlane{
		cfg:     cfg,
		bridge:  b,
		log:     logger.With("component", "controlplane"),
		changes: make(chan types.FileChange, cfg.QueueSize),
	}

	sinks := tools.MultiSink{tools.SinkFunc(func(_ context.Context, c types.FileChange) { metrics.RecordFileChange(c.Op) })}
	if engineCfg.Sink != nil {
		sinks = append(sinks, engineCfg.Sink)
	}
	if cfg.Enable {
		sinks = append(sinks, p)
	}
	engineCfg.Sink = sinks
	if engineCfg.Logger == nil {
		engineCfg.Logger = logger
	}

	engine, err := tools.New(engineCfg)
	if err != nil {
		return nil, fmt.Errorf("create tool engine: %w", err)
	}
	engine.SetObserver(metrics.ObserveToolResult)
	metrics.KnownNames(cfg.Command, cfg.DeleteCommand)
	metrics.KnownNames(cfg.Commands...)
	for _, t := range engine.Tools() {
		metrics.KnownNames(t.Name)
	}
	p.engine = engine

	b.OnSnapshot(p.applySnapshot)
	b.OnStateChange(metrics.ObserveBridgeState)
	return p, nil
}

func (p *ControlPlane) Engine() *tools.Engine {
	return p.engine
}

func (p *ControlPlane) applySnapshot(s types.ApplicationSnapshot) {
	metrics.RecordSnapshot()
	p.engine.ReplaceFiles(s.Files, s.RootPath)
	p.log.Info("snapshot applied", "files", len(s.Files), "root", s.RootPath, "view", s.ActiveView)
}

// FileChanged queues a change for forwarding. It never blocks: when the
// queue is full the change is dropped.
func (p *ControlPlane) FileChanged(_ context.Context, change types.FileChange) {
	select {
	case p.changes <- change:
	default:
		p.log.Warn("sync queue full, dropping file change", "path", change.Path, "op", change.Op)
	}
}

// Run forwards queued changes until ctx is cancelled.
func (p *ControlPlane) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case change := <-p.changes:
			p.forward(ctx, change)
		}
	}
}

func (p *ControlPlane) forward(ctx context.Context, change types.FileChange) {
	if p.bridge.State() != bridge.Connected {
		p.log.Debug("bridge not connected, file change not forwarded", "path", change.Path)
		return
	}

	command := p.cfg.Command
	params := map[string]any{"path": change.Path, "content": change.Content, "op": change.Op}
	if change.Op == types.FileChangeRemoved && p.cfg.DeleteCommand != "" {
		command = p.cfg.DeleteCommand
		params = map[string]any{"path": change.Path}
	}

	if _, err := p.SendCommand(ctx, command, params); err != nil {
		p.log.Warn("file change not applied remotely", "path", change.Path, "command", command, "error", err)
	}
}

// SendCommand forwards an arbitrary command over the bridge.
func (p *ControlPlane) SendCommand(ctx context.Context, name string, params any) (json.RawMessage, error) {
	result, err := p.bridge.SendCommand(ctx, name, params)
	metrics.RecordCommand(name, err)
	return result, err
}

func (p *ControlPlane) RequestStateRefresh() {
	p.bridge.RequestStateRefresh()
}

func (p *ControlPlane) Snapshot() (types.ApplicationSnapshot, bool) {
	return p.bridge.Snapshot()
}

func (p *ControlPlane) Status() Status {
	_, ok := p.bridge.Snapshot()
	return Status{
		State:       p.bridge.State().String(),
		Attempts:    p.bridge.Attempts(),
		HasSnapshot: ok,
		Files:       len(p.engine.Files()),
		PendingSync: len(p.changes),
	}
}
