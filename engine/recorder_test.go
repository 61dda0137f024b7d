package engine_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/vsariola/kappale"
	"github.com/vsariola/kappale/engine"
)

func spec(t *testing.T, id, kind string) kappale.NodeSpec {
	t.Helper()
	m, err := kappale.NewMachine(id, kind)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	return kappale.NodeSpecFor(&m)
}

func TestRecorder(t *testing.T) {
	r := engine.NewRecorder()
	osc, err := r.CreateNode(spec(t, "osc", "oscillator"))
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	master, err := r.CreateNode(spec(t, "master", "master"))
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if err := r.Connect(osc, master); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	updates := []kappale.ParamUpdate{{Node: osc, Param: 0, Value: 60, AtTick: 3}, {Node: master, Param: 1, Value: 1, AtTick: 3}}
	if err := kappale.Apply(r, updates); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := r.Updates(); len(got) != 2 || got[0] != updates[0] || got[1] != updates[1] {
		t.Errorf("recorded updates %v, expected %v", got, updates)
	}
	if r.Batches() != 1 {
		t.Errorf("recorded %d batches, expected 1", r.Batches())
	}
	if err := r.UpdateParam(osc, 99, 0, 0); err == nil {
		t.Error("updating a missing parameter should fail")
	}
	if err := r.DestroyNode(osc); err != nil {
		t.Fatalf("DestroyNode failed: %v", err)
	}
	if err := r.UpdateParam(osc, 0, 60, 4); err == nil {
		t.Error("updating a destroyed node should fail")
	}
	ops := []engine.Op{}
	for _, c := range r.Commands() {
		ops = append(ops, c.Op)
	}
	want := []engine.Op{engine.OpCreate, engine.OpCreate, engine.OpConnect, engine.OpUpdate, engine.OpUpdate, engine.OpDestroy}
	if len(ops) != len(want) {
		t.Fatalf("recorded ops %v, expected %v", ops, want)
	}
	for i := range ops {
		if ops[i] != want[i] {
			t.Errorf("op %d is %v, expected %v", i, ops[i], want[i])
		}
	}
	if n := len(r.Nodes()); n != 1 {
		t.Errorf("%d nodes left, expected 1", n)
	}
	r.Reset()
	if len(r.Commands()) != 0 || r.Batches() != 0 {
		t.Error("Reset should forget the commands")
	}
}

func TestRecorderFail(t *testing.T) {
	r := engine.NewRecorder()
	boom := errors.New("boom")
	r.Fail = func(op string) error {
		if op == "create" {
			return boom
		}
		return nil
	}
	if _, err := r.CreateNode(spec(t, "osc", "oscillator")); !errors.Is(err, boom) {
		t.Errorf("expected the injected error, got %v", err)
	}
}

func TestApplyWithoutBatches(t *testing.T) {
	r := engine.NewRecorder()
	plain := struct{ kappale.Engine }{r}
	osc, err := plain.CreateNode(spec(t, "osc", "oscillator"))
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	updates := []kappale.ParamUpdate{{Node: osc, Param: 0, Value: 60}, {Node: osc, Param: 5, Value: 0.5}}
	if err := kappale.Apply(plain, updates); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(r.Updates()) != 2 || r.Batches() != 0 {
		t.Errorf("expected two single updates, got %v in %d batches", r.Updates(), r.Batches())
	}
}

func TestLogEngine(t *testing.T) {
	var buf bytes.Buffer
	e := engine.NewLogEngine(slog.New(slog.NewTextHandler(&buf, nil)), slog.LevelInfo)
	osc, err := e.CreateNode(spec(t, "osc", "oscillator"))
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if err := e.UpdateParam(osc, 0, 64, 2); err != nil {
		t.Fatalf("UpdateParam failed: %v", err)
	}
	if !strings.Contains(buf.String(), "param=note") || !strings.Contains(buf.String(), "value=64") {
		t.Errorf("log does not describe the update: %s", buf.String())
	}
	if err := e.DestroyNode(osc); err != nil {
		t.Fatalf("DestroyNode failed: %v", err)
	}
	if err := e.DestroyNode(osc); err == nil {
		t.Error("destroying a node twice should fail")
	}
}
