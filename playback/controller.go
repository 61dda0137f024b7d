package playback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vsariola/kappale"
)

type (
	// Controller plays a song on an engine. It is driven by calls to Tick,
	// usually from a Clock, while the transport methods may be called from
	// other goroutines; all of them are serialized.
	Controller struct {
		mu     sync.Mutex
		song   *kappale.Song
		engine kappale.Engine
		broker *Broker
		logger *slog.Logger

		state    State
		cursor   int
		loop     *kappale.Loop
		looped   bool
		ended    bool
		resync   bool // a seek while paused, resync on resume
		attached bool // the graph receives updates

		graph    *graph
		sched    *schedule
		schedRev uint64
	}

	Option func(*Controller)
)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithBroker makes the controller publish its status and alerts.
func WithBroker(b *Broker) Option {
	return func(c *Controller) { c.broker = b }
}

// New returns a stopped controller for song. The loop stored in the song,
// if any, becomes the loop of the controller.
func New(song *kappale.Song, engine kappale.Engine, opts ...Option) *Controller {
	c := &Controller{song: song, engine: engine, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	c.loop = songLoop(song)
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Position() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position()
}

// Loop returns the loop of the controller, if any.
func (c *Controller) Loop() (kappale.Loop, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop == nil {
		return kappale.Loop{}, false
	}
	return *c.loop, true
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status()
}

// Song returns the song being played. It must not be modified while playing
// except by the single writer that also calls Refresh.
func (c *Controller) Song() *kappale.Song {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.song
}

// Play starts playing from the start of the song, or resumes if paused.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Playing:
		return nil
	case Paused:
		return c.resume()
	}
	return c.start(0)
}

// PlayFrom starts playing from tick, which is clamped to the song.
func (c *Controller) PlayFrom(tick int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Paused:
		c.seek(tick)
		return c.resume()
	case Playing:
		c.seek(tick)
		err := c.emit(c.graph.resync(c.sched, c.cursor))
		c.publish()
		return err
	}
	return c.start(tick)
}

func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Paused:
		return nil
	case Stopped:
		return &StateError{Op: "pause", State: c.state}
	}
	c.state = Paused
	c.publish()
	return nil
}

func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Playing:
		return nil
	case Stopped:
		return &StateError{Op: "resume", State: c.state}
	}
	return c.resume()
}

// Stop stops playing and rewinds. The engine nodes are kept for the next
// Play as long as the machines of the song do not change.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = false
	c.stop()
	return nil
}

// Seek moves the cursor to tick, clamped to [0, length]. While playing, the
// engine is brought to the state it would have at tick right away.
func (c *Controller) Seek(tick int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seek(tick)
	if c.state == Playing {
		if err := c.emit(c.graph.resync(c.sched, c.cursor)); err != nil {
			return err
		}
	}
	c.publish()
	return nil
}

// SetLoop loops the ticks [start, end) until the loop is cleared.
func (c *Controller) SetLoop(start, end int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := kappale.Loop{Start: start, End: end}
	if start < 0 || start >= end || end > c.song.Length() {
		return fmt.Errorf("loop [%d, %d) is not a non-empty range within [0, %d]", start, end, c.song.Length())
	}
	c.loop = &l
	return nil
}

func (c *Controller) ClearLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = nil
}

// Tick emits the parameter changes of the current tick and advances the
// cursor. It does nothing unless playing. When the cursor reaches the loop
// end it continues from the loop start; without a loop, reaching the end of
// the song stops playback.
func (c *Controller) Tick() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Playing {
		return nil
	}
	c.looped = false
	if c.loop != nil && c.cursor >= c.loop.End {
		c.cursor = c.loop.Start
		c.looped = true
	}
	if c.cursor >= c.sched.length {
		c.ended = true
		c.stop()
		return nil
	}
	err := c.emit(c.graph.updates(c.sched.at(c.cursor), c.cursor))
	c.cursor++
	if c.loop == nil && c.cursor >= c.sched.length {
		c.ended = true
		c.stop()
		return err
	}
	c.publish()
	return err
}

// SetSong replaces the song. The controller must be stopped; the nodes of
// the old song are destroyed.
func (c *Controller) SetSong(song *kappale.Song) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Stopped {
		return &StateError{Op: "replace the song", State: c.state}
	}
	err := c.teardown()
	c.song = song
	c.sched = nil
	c.cursor = 0
	c.ended = false
	c.loop = songLoop(song)
	c.publish()
	return err
}

// Refresh picks up changes made to the song since playback started: the
// graph is rebuilt if machines or wires changed and the schedule is
// recompiled if anything else changed. The song must be valid.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Stopped {
		return nil
	}
	if err := c.song.Validate(); err != nil {
		return err
	}
	if err := c.prepare(); err != nil {
		c.stop()
		return err
	}
	c.cursor = min(c.cursor, c.sched.length)
	if c.loop != nil && c.loop.End > c.sched.length {
		c.loop = nil
	}
	if c.state == Playing {
		return c.emit(c.graph.resync(c.sched, c.cursor))
	}
	c.resync = true
	return nil
}

// Close stops playback and destroys the engine nodes.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop()
	return c.teardown()
}

func (c *Controller) start(tick int) error {
	if err := c.song.Validate(); err != nil {
		return err
	}
	if err := c.prepare(); err != nil {
		return err
	}
	c.state = Playing
	c.attached = true
	c.ended = false
	c.seek(tick)
	c.logger.Debug("playback started", "tick", c.cursor, "song", c.song.Meta().Name)
	err := c.emit(c.graph.resync(c.sched, c.cursor))
	c.publish()
	return err
}

func (c *Controller) resume() error {
	c.state = Playing
	var err error
	if c.resync {
		err = c.emit(c.graph.resync(c.sched, c.cursor))
		c.resync = false
	}
	c.publish()
	return err
}

func (c *Controller) stop() {
	if c.state == Stopped && c.cursor == 0 {
		return
	}
	if c.state != Stopped {
		c.logger.Debug("playback stopped", "tick", c.cursor)
	}
	c.state = Stopped
	c.attached = false
	c.cursor = 0
	c.resync = false
	c.publish()
}

func (c *Controller) seek(tick int) {
	length := c.song.Length()
	if c.sched != nil && c.state != Stopped {
		length = c.sched.length
	}
	c.cursor = min(max(tick, 0), length)
	if c.state == Paused {
		c.resync = true
	}
}

// prepare rebuilds the graph and recompiles the schedule as far as the song
// changed since they were made.
func (c *Controller) prepare() error {
	if c.graph == nil || c.graph.revision != c.song.GraphRevision() {
		if err := c.teardown(); err != nil {
			c.alert("EngineError", err.Error(), Warning)
		}
		g, err := build(c.engine, c.song)
		if err != nil {
			c.alert("EngineError", err.Error(), Error)
			return err
		}
		c.graph = g
		c.sched = nil
	}
	if c.sched == nil || c.schedRev != c.song.Revision() {
		c.sched = compile(c.song)
		c.schedRev = c.song.Revision()
	}
	return nil
}

func (c *Controller) teardown() error {
	if c.graph == nil {
		return nil
	}
	err := c.graph.destroy(c.engine)
	c.graph = nil
	return err
}

func (c *Controller) emit(updates []kappale.ParamUpdate) error {
	if !c.attached || len(updates) == 0 {
		return nil
	}
	if err := kappale.Apply(c.engine, updates); err != nil {
		c.alert("EngineError", err.Error(), Error)
		return err
	}
	return nil
}

func (c *Controller) position() Cursor {
	if c.sched != nil && c.state != Stopped {
		return cursorAt(c.sched.timing, c.cursor)
	}
	return cursorAt(c.song.Timing(), c.cursor)
}

func (c *Controller) status() Status {
	length := c.song.Length()
	if c.sched != nil && c.state != Stopped {
		length = c.sched.length
	}
	return Status{State: c.state, Cursor: c.position(), Length: length, Looped: c.looped, Ended: c.ended}
}

func (c *Controller) publish() {
	if c.broker != nil {
		TrySend(c.broker.Status, c.status())
	}
}

func (c *Controller) alert(name, message string, priority AlertPriority) {
	c.logger.Warn("playback alert", "name", name, "message", message)
	if c.broker != nil {
		TrySend(c.broker.Alerts, Alert{Name: name, Priority: priority, Message: message})
	}
}

func songLoop(song *kappale.Song) *kappale.Loop {
	if l, ok := song.Loop(); ok {
		return &l
	}
	return nil
}
