package kappale

import "fmt"

type (
	// Engine is the external processing graph the song is played on. The
	// core only tells the engine which nodes exist, how they are wired and
	// when parameters change; rendering audio is up to the engine.
	Engine interface {
		CreateNode(spec NodeSpec) (NodeID, error)
		Connect(src, dst NodeID) error
		UpdateParam(node NodeID, param int, value float64, atTick int) error
		DestroyNode(node NodeID) error
	}

	// BatchEngine is implemented by engines that prefer to receive all the
	// parameter updates of a tick at once.
	BatchEngine interface {
		ApplyBatch(updates []ParamUpdate) error
	}

	// NodeID identifies a node created by an engine.
	NodeID int

	// NodeSpec describes a node to be created for a machine. Values has the
	// initial value of each parameter, in the order of Params.
	NodeSpec struct {
		Machine string
		Kind    string
		Type    MachineType
		Params  []Parameter
		Values  []float64
	}

	// ParamUpdate sets parameter Param (an index into the parameters of the
	// node) to Value at tick AtTick.
	ParamUpdate struct {
		Node   NodeID
		Param  int
		Value  float64
		AtTick int
	}
)

// NodeSpecFor returns the node description of machine m.
func NodeSpecFor(m *Machine) NodeSpec {
	c := m.Copy()
	return NodeSpec{Machine: c.ID, Kind: c.Kind, Type: c.Type, Params: c.Params, Values: m.InitialValues()}
}

// Apply sends a batch of updates to the engine, in one call if the engine
// supports batches.
func Apply(e Engine, updates []ParamUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if b, ok := e.(BatchEngine); ok {
		if err := b.ApplyBatch(updates); err != nil {
			return fmt.Errorf("engine.ApplyBatch failed: %w", err)
		}
		return nil
	}
	for _, u := range updates {
		if err := e.UpdateParam(u.Node, u.Param, u.Value, u.AtTick); err != nil {
			return fmt.Errorf("engine.UpdateParam failed: %w", err)
		}
	}
	return nil
}
