// Package midiengine plays songs on an external MIDI device. Every node gets
// its own MIDI channel; trigger parameters become notes and the other
// parameters become control changes.
package midiengine

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/vsariola/kappale"
	"gitlab.com/gomidi/midi/v2"
)

// ErrNoDriver is returned by Open when the binary was built without a MIDI
// driver.
var ErrNoDriver = errors.New("no MIDI driver available")

type (
	// Engine sends the parameter updates of a song as MIDI messages.
	Engine struct {
		send     func(midi.Message) error
		velocity uint8

		mu    sync.Mutex
		next  kappale.NodeID
		nodes map[kappale.NodeID]*node
	}

	node struct {
		spec    kappale.NodeSpec
		channel uint8
		note    int // sounding note, -1 if none
	}
)

// NumChannels is the number of MIDI channels; node n plays on channel
// (n - 1) mod NumChannels.
const NumChannels = 16

// New returns an engine writing its messages to send, e.g. the function
// returned by midi.SendTo.
func New(send func(midi.Message) error) *Engine {
	return &Engine{send: send, velocity: 100, nodes: map[kappale.NodeID]*node{}}
}

// SetVelocity sets the velocity of the notes started by trigger parameters.
func (e *Engine) SetVelocity(v uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.velocity = min(v, 127)
}

func (e *Engine) CreateNode(spec kappale.NodeSpec) (kappale.NodeID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	n := &node{spec: spec, channel: uint8((int(e.next) - 1) % NumChannels), note: -1}
	e.nodes[e.next] = n
	for i, v := range spec.Values {
		if spec.Params[i].Kind == kappale.Trigger {
			continue
		}
		if err := e.control(n, i, v); err != nil {
			return 0, err
		}
	}
	return e.next, nil
}

// Connect only checks the nodes; routing is up to the device.
func (e *Engine) Connect(src, dst kappale.NodeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[src]; !ok {
		return fmt.Errorf("no node %d", src)
	}
	if _, ok := e.nodes[dst]; !ok {
		return fmt.Errorf("no node %d", dst)
	}
	return nil
}

func (e *Engine) UpdateParam(id kappale.NodeID, param int, value float64, atTick int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(id, param, value)
}

func (e *Engine) ApplyBatch(updates []kappale.ParamUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, u := range updates {
		if err := e.update(u.Node, u.Param, u.Value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) DestroyNode(id kappale.NodeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[id]
	if !ok {
		return fmt.Errorf("no node %d", id)
	}
	delete(e.nodes, id)
	return e.release(n)
}

// Panic releases every sounding note.
func (e *Engine) Panic() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for _, n := range e.nodes {
		errs = append(errs, e.release(n))
	}
	return errors.Join(errs...)
}

func (e *Engine) update(id kappale.NodeID, param int, value float64) error {
	n, ok := e.nodes[id]
	if !ok {
		return fmt.Errorf("no node %d", id)
	}
	if param < 0 || param >= len(n.spec.Params) {
		return fmt.Errorf("node %d has no parameter %d", id, param)
	}
	if n.spec.Params[param].Kind != kappale.Trigger {
		return e.control(n, param, value)
	}
	if err := e.release(n); err != nil {
		return err
	}
	key := int(math.Round(value))
	if key <= 0 || key > 127 {
		return nil
	}
	if err := e.send(midi.NoteOn(n.channel, uint8(key), e.velocity)); err != nil {
		return fmt.Errorf("sending note on failed: %w", err)
	}
	n.note = key
	return nil
}

func (e *Engine) release(n *node) error {
	if n.note < 0 {
		return nil
	}
	key := uint8(n.note)
	n.note = -1
	if err := e.send(midi.NoteOff(n.channel, key)); err != nil {
		return fmt.Errorf("sending note off failed: %w", err)
	}
	return nil
}

func (e *Engine) control(n *node, param int, value float64) error {
	if err := e.send(midi.ControlChange(n.channel, Controller(param), Scale(n.spec.Params[param], value))); err != nil {
		return fmt.Errorf("sending control change failed: %w", err)
	}
	return nil
}

// Controller returns the MIDI controller number of parameter i. Controllers
// start from 20, the first undefined one, and wrap within 20..119.
func Controller(i int) uint8 {
	return uint8(20 + i%100)
}

// Scale maps a parameter value to the 0..127 range of a control change.
func Scale(p kappale.Parameter, value float64) uint8 {
	var f float64
	switch p.Kind {
	case kappale.Enum:
		if len(p.Choices) > 1 {
			f = value / float64(len(p.Choices)-1)
		}
	default:
		if p.Max > p.Min {
			f = (value - p.Min) / (p.Max - p.Min)
		}
	}
	return uint8(math.Round(min(max(f, 0), 1) * 127))
}
