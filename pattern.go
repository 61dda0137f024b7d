package kappale

import (
	"cmp"
	"fmt"
)

type (
	// Pattern is a sequence of parameter changes for one machine. Event ticks
	// are relative to the start of the pattern and lie within [0, Length).
	// Events are kept ordered by tick and, within a tick, by the position of
	// the parameter in the machine; a tick sets each parameter at most once.
	Pattern struct {
		ID      string  `yaml:"id" json:"id"`
		Machine string  `yaml:"machine" json:"machine"`
		Name    string  `yaml:"name,omitempty" json:"name,omitempty"`
		Length  int     `yaml:"length" json:"length"`
		Events  []Event `yaml:"events,omitempty" json:"events,omitempty"`
	}

	// Event sets the parameter Param of the pattern's machine to Value at Tick.
	Event struct {
		Tick  int     `yaml:"tick" json:"tick"`
		Param string  `yaml:"param" json:"param"`
		Value float64 `yaml:"value" json:"value"`
	}
)

// Copy makes a deep copy of the pattern.
func (p *Pattern) Copy() Pattern {
	return Pattern{ID: p.ID, Machine: p.Machine, Name: p.Name, Length: p.Length, Events: clone(p.Events)}
}

// eventKey orders events of a machine: tick first, then parameter position.
type eventKey struct{ tick, param int }

func compareKeys(a, b eventKey) int {
	if c := cmp.Compare(a.tick, b.tick); c != 0 {
		return c
	}
	return cmp.Compare(a.param, b.param)
}

// checkEvent validates a single event against the pattern bounds and the
// declarations of machine m.
func (p *Pattern) checkEvent(m *Machine, e Event) (eventKey, error) {
	subject := patternSubject(p.ID)
	if e.Tick < 0 || e.Tick >= p.Length {
		return eventKey{}, invalid(InvariantEventBounds, subject, "event at tick %d outside [0, %d)", e.Tick, p.Length)
	}
	i, param, ok := m.Param(e.Param)
	if !ok {
		return eventKey{}, invalid(InvariantParamRef, subject, "event at tick %d sets unknown parameter %q of machine %q", e.Tick, e.Param, m.ID)
	}
	if err := param.Check(e.Value); err != nil {
		return eventKey{}, invalid(InvariantParamValue, subject, "event at tick %d, parameter %q: %v", e.Tick, e.Param, err)
	}
	return eventKey{tick: e.Tick, param: i}, nil
}

// validate checks the whole pattern against machine m, including event
// order.
func (p *Pattern) validate(m *Machine) error {
	subject := patternSubject(p.ID)
	if p.ID == "" {
		return invalid(InvariantUniqueID, subject, "pattern has no id")
	}
	if p.Length <= 0 {
		return invalid(InvariantPatternLength, subject, "length %d is not positive", p.Length)
	}
	prev := eventKey{tick: -1}
	for _, e := range p.Events {
		key, err := p.checkEvent(m, e)
		if err != nil {
			return err
		}
		if compareKeys(prev, key) >= 0 {
			return invalid(InvariantEventOrder, subject, "event at tick %d, parameter %q is out of order", e.Tick, e.Param)
		}
		prev = key
	}
	return nil
}

func (e Event) String() string {
	return fmt.Sprintf("%d:%s=%v", e.Tick, e.Param, e.Value)
}
