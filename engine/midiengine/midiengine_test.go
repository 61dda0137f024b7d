package midiengine_test

import (
	"testing"

	"github.com/vsariola/kappale"
	"github.com/vsariola/kappale/engine/midiengine"
	"gitlab.com/gomidi/midi/v2"
)

type capture struct {
	msgs []midi.Message
}

func (c *capture) send(msg midi.Message) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestNotes(t *testing.T) {
	var c capture
	e := midiengine.New(c.send)
	m, err := kappale.NewMachine("osc", "oscillator")
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	osc, err := e.CreateNode(kappale.NodeSpecFor(&m))
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	c.msgs = nil
	if err := e.UpdateParam(osc, 0, 60, 0); err != nil {
		t.Fatalf("UpdateParam failed: %v", err)
	}
	if err := e.UpdateParam(osc, 0, 64, 1); err != nil {
		t.Fatalf("UpdateParam failed: %v", err)
	}
	if err := e.DestroyNode(osc); err != nil {
		t.Fatalf("DestroyNode failed: %v", err)
	}
	var ch, key, vel uint8
	want := []struct {
		on  bool
		key uint8
	}{{true, 60}, {false, 60}, {true, 64}, {false, 64}}
	if len(c.msgs) != len(want) {
		t.Fatalf("sent %v, expected %d messages", c.msgs, len(want))
	}
	for i, w := range want {
		var ok bool
		if w.on {
			ok = c.msgs[i].GetNoteOn(&ch, &key, &vel)
		} else {
			ok = c.msgs[i].GetNoteOff(&ch, &key, &vel)
		}
		if !ok || key != w.key || ch != 0 {
			t.Errorf("message %d is %v, expected note on=%v key %d on channel 0", i, c.msgs[i], w.on, w.key)
		}
	}
}

func TestControlChange(t *testing.T) {
	var c capture
	e := midiengine.New(c.send)
	m, err := kappale.NewMachine("flt", "filter")
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	for range 2 {
		if _, err := e.CreateNode(kappale.NodeSpecFor(&m)); err != nil {
			t.Fatalf("CreateNode failed: %v", err)
		}
	}
	c.msgs = nil
	if err := e.ApplyBatch([]kappale.ParamUpdate{{Node: 2, Param: 1, Value: 20000}}); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	var ch, cc, val uint8
	if len(c.msgs) != 1 || !c.msgs[0].GetControlChange(&ch, &cc, &val) {
		t.Fatalf("expected one control change, got %v", c.msgs)
	}
	if ch != 1 || cc != midiengine.Controller(1) || val != 127 {
		t.Errorf("got channel %d controller %d value %d, expected 1 %d 127", ch, cc, val, midiengine.Controller(1))
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		param kappale.Parameter
		value float64
		want  uint8
	}{
		{kappale.Parameter{Kind: kappale.Numeric, Min: 0, Max: 1}, 0.5, 64},
		{kappale.Parameter{Kind: kappale.Numeric, Min: 20, Max: 20000}, 20, 0},
		{kappale.Parameter{Kind: kappale.Numeric, Min: -1, Max: 1}, 7, 127},
		{kappale.Parameter{Kind: kappale.Enum, Choices: []string{"a", "b", "c"}}, 1, 64},
		{kappale.Parameter{Kind: kappale.Enum, Choices: []string{"a"}}, 0, 0},
	}
	for _, tt := range tests {
		if got := midiengine.Scale(tt.param, tt.value); got != tt.want {
			t.Errorf("Scale(%v, %v) = %d, expected %d", tt.param, tt.value, got, tt.want)
		}
	}
}

func TestVelocity(t *testing.T) {
	tests := []struct {
		set, want uint8
	}{{40, 40}, {127, 127}, {200, 127}}
	for _, tt := range tests {
		var c capture
		e := midiengine.New(c.send)
		e.SetVelocity(tt.set)
		m, err := kappale.NewMachine("osc", "oscillator")
		if err != nil {
			t.Fatalf("NewMachine failed: %v", err)
		}
		osc, err := e.CreateNode(kappale.NodeSpecFor(&m))
		if err != nil {
			t.Fatalf("CreateNode failed: %v", err)
		}
		c.msgs = nil
		if err := e.UpdateParam(osc, 0, 60, 0); err != nil {
			t.Fatalf("UpdateParam failed: %v", err)
		}
		var ch, key, vel uint8
		if len(c.msgs) != 1 || !c.msgs[0].GetNoteOn(&ch, &key, &vel) {
			t.Fatalf("sent %v, expected one note on", c.msgs)
		}
		if vel != tt.want {
			t.Errorf("SetVelocity(%d) played velocity %d, expected %d", tt.set, vel, tt.want)
		}
	}
}
