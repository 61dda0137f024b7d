package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/vsariola/kappale"
)

type (
	// Recorder is an engine that renders nothing and records every command
	// it receives. It is safe for concurrent use.
	Recorder struct {
		// Fail, if set, is called before every command with the name of the
		// operation; a non-nil return makes the command fail.
		Fail func(op string) error

		mu       sync.Mutex
		next     kappale.NodeID
		nodes    map[kappale.NodeID]kappale.NodeSpec
		commands []Command
		batches  int
	}

	// Command is one recorded engine call. Fields not used by Op are zero.
	Command struct {
		Op     Op
		Node   kappale.NodeID
		Dst    kappale.NodeID
		Spec   kappale.NodeSpec
		Update kappale.ParamUpdate
	}

	Op int
)

const (
	OpCreate Op = iota
	OpConnect
	OpUpdate
	OpDestroy
)

var opNames = [...]string{"create", "connect", "update", "destroy"}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("op(%d)", int(o))
	}
	return opNames[o]
}

func (c Command) String() string {
	switch c.Op {
	case OpCreate:
		return fmt.Sprintf("create node %d for %s (%s)", c.Node, c.Spec.Machine, c.Spec.Kind)
	case OpConnect:
		return fmt.Sprintf("connect node %d to %d", c.Node, c.Dst)
	case OpUpdate:
		u := c.Update
		return fmt.Sprintf("tick %d: node %d param %d = %g", u.AtTick, u.Node, u.Param, u.Value)
	}
	return fmt.Sprintf("%s node %d", c.Op, c.Node)
}

func NewRecorder() *Recorder {
	return &Recorder{nodes: map[kappale.NodeID]kappale.NodeSpec{}}
}

func (r *Recorder) CreateNode(spec kappale.NodeSpec) (kappale.NodeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("create"); err != nil {
		return 0, err
	}
	r.next++
	r.nodes[r.next] = spec
	r.commands = append(r.commands, Command{Op: OpCreate, Node: r.next, Spec: spec})
	return r.next, nil
}

func (r *Recorder) Connect(src, dst kappale.NodeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("connect"); err != nil {
		return err
	}
	if err := r.check(src); err != nil {
		return err
	}
	if err := r.check(dst); err != nil {
		return err
	}
	r.commands = append(r.commands, Command{Op: OpConnect, Node: src, Dst: dst})
	return nil
}

func (r *Recorder) UpdateParam(node kappale.NodeID, param int, value float64, atTick int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(kappale.ParamUpdate{Node: node, Param: param, Value: value, AtTick: atTick})
}

// ApplyBatch records the updates of one tick.
func (r *Recorder) ApplyBatch(updates []kappale.ParamUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range updates {
		if err := r.update(u); err != nil {
			return err
		}
	}
	r.batches++
	return nil
}

func (r *Recorder) DestroyNode(node kappale.NodeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("destroy"); err != nil {
		return err
	}
	if err := r.check(node); err != nil {
		return err
	}
	delete(r.nodes, node)
	r.commands = append(r.commands, Command{Op: OpDestroy, Node: node})
	return nil
}

// Commands returns the commands recorded since the last Reset.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.commands)
}

// Updates returns the parameter updates recorded since the last Reset.
func (r *Recorder) Updates() []kappale.ParamUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []kappale.ParamUpdate
	for _, c := range r.commands {
		if c.Op == OpUpdate {
			ret = append(ret, c.Update)
		}
	}
	return ret
}

// Batches returns how many batches were applied since the last Reset.
func (r *Recorder) Batches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

// Nodes returns the specs of the nodes that currently exist, by id.
func (r *Recorder) Nodes() map[kappale.NodeID]kappale.NodeSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make(map[kappale.NodeID]kappale.NodeSpec, len(r.nodes))
	for id, spec := range r.nodes {
		ret[id] = spec
	}
	return ret
}

// Reset forgets the recorded commands. Existing nodes are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
	r.batches = 0
}

func (r *Recorder) update(u kappale.ParamUpdate) error {
	if err := r.fail("update"); err != nil {
		return err
	}
	if err := r.check(u.Node); err != nil {
		return err
	}
	if n := len(r.nodes[u.Node].Params); u.Param < 0 || u.Param >= n {
		return fmt.Errorf("node %d has no parameter %d", u.Node, u.Param)
	}
	r.commands = append(r.commands, Command{Op: OpUpdate, Node: u.Node, Update: u})
	return nil
}

func (r *Recorder) check(node kappale.NodeID) error {
	if _, ok := r.nodes[node]; !ok {
		return fmt.Errorf("no node %d", node)
	}
	return nil
}

func (r *Recorder) fail(op string) error {
	if r.Fail == nil {
		return nil
	}
	return r.Fail(op)
}
