package playback

import (
	"errors"
	"fmt"

	"github.com/vsariola/kappale"
)

// graph is the set of engine nodes built for a song, one per machine in
// arena order.
type graph struct {
	nodes    []kappale.NodeID
	revision uint64
}

func build(e kappale.Engine, song *kappale.Song) (*graph, error) {
	g := &graph{revision: song.GraphRevision()}
	index := map[string]int{}
	for m := range song.Machines() {
		id, err := e.CreateNode(kappale.NodeSpecFor(&m))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("engine.CreateNode(%q) failed: %w", m.ID, err), g.destroy(e))
		}
		index[m.ID] = len(g.nodes)
		g.nodes = append(g.nodes, id)
	}
	for w := range song.Wires() {
		if err := e.Connect(g.nodes[index[w.Src]], g.nodes[index[w.Dst]]); err != nil {
			return nil, errors.Join(fmt.Errorf("engine.Connect(%q, %q) failed: %w", w.Src, w.Dst, err), g.destroy(e))
		}
	}
	return g, nil
}

// destroy destroys all the nodes, continuing past failures.
func (g *graph) destroy(e kappale.Engine) error {
	var errs []error
	for _, id := range g.nodes {
		if err := e.DestroyNode(id); err != nil {
			errs = append(errs, fmt.Errorf("engine.DestroyNode(%d) failed: %w", id, err))
		}
	}
	g.nodes = nil
	return errors.Join(errs...)
}

// updates turns scheduled changes into engine updates at tick.
func (g *graph) updates(changes []change, tick int) []kappale.ParamUpdate {
	if len(changes) == 0 {
		return nil
	}
	ret := make([]kappale.ParamUpdate, len(changes))
	for i, c := range changes {
		ret[i] = kappale.ParamUpdate{Node: g.nodes[c.machine], Param: c.param, Value: c.value, AtTick: tick}
	}
	return ret
}

// resync returns the updates setting every parameter, except triggers, to
// the value it has when tick starts.
func (g *graph) resync(s *schedule, tick int) []kappale.ParamUpdate {
	var ret []kappale.ParamUpdate
	for m, values := range s.stateAt(tick) {
		for p, v := range values {
			if s.trigger[m][p] {
				continue
			}
			ret = append(ret, kappale.ParamUpdate{Node: g.nodes[m], Param: p, Value: v, AtTick: tick})
		}
	}
	return ret
}
