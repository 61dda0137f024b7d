package kappale

import "fmt"

// Invariant names the rule a rejected mutation would have broken.
type Invariant string

const (
	InvariantUniqueID         Invariant = "unique-id"
	InvariantMachineRef       Invariant = "machine-ref"
	InvariantPatternRef       Invariant = "pattern-ref"
	InvariantTrackRef         Invariant = "track-ref"
	InvariantParamRef         Invariant = "param-ref"
	InvariantParamValue       Invariant = "param-value"
	InvariantParamDecl        Invariant = "param-decl"
	InvariantMachineDecl      Invariant = "machine-decl"
	InvariantEventOrder       Invariant = "event-order"
	InvariantEventBounds      Invariant = "event-bounds"
	InvariantPatternLength    Invariant = "pattern-length"
	InvariantPlacementBounds  Invariant = "placement-bounds"
	InvariantPlacementOverlap Invariant = "placement-overlap"
	InvariantWireEndpoint     Invariant = "wire-endpoint"
	InvariantWireRule         Invariant = "wire-rule"
	InvariantAcyclicGraph     Invariant = "acyclic-graph"
	InvariantSingleSink       Invariant = "single-sink"
	InvariantSinkReachable    Invariant = "sink-reachable"
	InvariantTiming           Invariant = "timing"
	InvariantSongLength       Invariant = "song-length"
	InvariantLoopBounds       Invariant = "loop-bounds"
	InvariantLabel            Invariant = "label"
)

// ValidationError is returned by every Song mutation that was rejected. The
// song is left exactly as it was before the call.
type ValidationError struct {
	Invariant Invariant
	Subject   string // e.g. `pattern "bass"`
	Detail    string
}

func (e *ValidationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %s", e.Invariant, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Invariant, e.Subject, e.Detail)
}

func invalid(inv Invariant, subject string, format string, args ...any) *ValidationError {
	return &ValidationError{Invariant: inv, Subject: subject, Detail: fmt.Sprintf(format, args...)}
}

func machineSubject(id string) string { return fmt.Sprintf("machine %q", id) }
func patternSubject(id string) string { return fmt.Sprintf("pattern %q", id) }
func trackSubject(id string) string   { return fmt.Sprintf("track %q", id) }
