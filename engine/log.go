package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vsariola/kappale"
)

// LogEngine writes every command to a structured logger. It keeps track of
// the nodes only to name them in the log.
type LogEngine struct {
	logger *slog.Logger
	level  slog.Level

	mu    sync.Mutex
	next  kappale.NodeID
	nodes map[kappale.NodeID]kappale.NodeSpec
}

func NewLogEngine(logger *slog.Logger, level slog.Level) *LogEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEngine{logger: logger, level: level, nodes: map[kappale.NodeID]kappale.NodeSpec{}}
}

func (e *LogEngine) CreateNode(spec kappale.NodeSpec) (kappale.NodeID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.nodes[e.next] = spec
	e.log("create node", "node", e.next, "machine", spec.Machine, "kind", spec.Kind, "type", spec.Type)
	return e.next, nil
}

func (e *LogEngine) Connect(src, dst kappale.NodeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.nodes[src]
	if !ok {
		return fmt.Errorf("no node %d", src)
	}
	d, ok := e.nodes[dst]
	if !ok {
		return fmt.Errorf("no node %d", dst)
	}
	e.log("connect", "src", s.Machine, "dst", d.Machine)
	return nil
}

func (e *LogEngine) UpdateParam(node kappale.NodeID, param int, value float64, atTick int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	spec, ok := e.nodes[node]
	if !ok {
		return fmt.Errorf("no node %d", node)
	}
	if param < 0 || param >= len(spec.Params) {
		return fmt.Errorf("node %d has no parameter %d", node, param)
	}
	e.log("update param", "tick", atTick, "machine", spec.Machine, "param", spec.Params[param].Name, "value", value)
	return nil
}

func (e *LogEngine) DestroyNode(node kappale.NodeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	spec, ok := e.nodes[node]
	if !ok {
		return fmt.Errorf("no node %d", node)
	}
	delete(e.nodes, node)
	e.log("destroy node", "node", node, "machine", spec.Machine)
	return nil
}

func (e *LogEngine) log(msg string, args ...any) {
	e.logger.Log(context.Background(), e.level, msg, args...)
}
