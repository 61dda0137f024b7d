//go:build !cgo

package midiengine

// Open fails: without cgo there is no MIDI driver.
func Open(prefix string) (e *Engine, close func() error, err error) {
	return nil, nil, ErrNoDriver
}

func Outputs() ([]string, error) {
	return nil, ErrNoDriver
}
