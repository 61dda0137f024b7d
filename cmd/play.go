package cmd

import (
	"context"
	"fmt"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"
	"github.com/vsariola/kappale/engine"
	"github.com/vsariola/kappale/oto"
	"github.com/vsariola/kappale/playback"
	"github.com/vsariola/kappale/rpc"
	"github.com/vsariola/kappale/session"
	"github.com/vsariola/kappale/songio"
	"golang.org/x/sync/errgroup"
)

type PlayParams struct {
	File      string `pos:"true" help:"Song file to play."`
	Format    string `short:"f" optional:"true" help:"Format of the file, e.g. kappale-json or kappale-yaml@2. Detected when empty."`
	From      int    `optional:"true" help:"Tick to start playing from." default:"0"`
	LoopStart int    `name:"loop-start" optional:"true" help:"First tick of the loop; the loop of the song is used when negative." default:"-1"`
	LoopEnd   int    `name:"loop-end" optional:"true" help:"Tick where the loop wraps back to its start." default:"-1"`
	Engine    string `short:"e" optional:"true" help:"Engine to play on: log, midi or null. Defaults to the configured engine."`
	MIDIPort  string `name:"midi-port" optional:"true" help:"Prefix of the name of the MIDI output to use. See midi-ports."`
	Velocity  int    `optional:"true" help:"Velocity of the MIDI notes. Defaults to the configured velocity." default:"0"`
	Clock     string `optional:"true" help:"What drives playback: timer or audio. Defaults to the configured clock."`
	Watch     bool   `short:"w" optional:"true" help:"Reload the song when the file changes."`
	Listen    string `optional:"true" help:"Accept remote transport commands on this address."`
	DryRun    bool   `name:"dry-run" short:"n" optional:"true" help:"Play once through as fast as possible and print the engine commands."`
}

func PlayCmd() *cobra.Command {
	return boa.CmdT[PlayParams]{
		Use:         "play",
		Short:       "Play a song",
		Long:        "Play a song on an engine until it ends or the command is interrupted.",
		ParamEnrich: defaultParamEnricher(),
		RunFunc:     runner("play", runPlay),
	}.ToCobra()
}

func runPlay(ctx context.Context, e *env, params *PlayParams) error {
	if params.DryRun {
		return dryRun(ctx, e, params)
	}
	engineName := firstNonEmpty(params.Engine, e.cfg.Engine)
	velocity := params.Velocity
	if velocity <= 0 {
		velocity = e.cfg.MIDIVelocity
	}
	eng, closeEngine, err := openEngine(engineName, firstNonEmpty(params.MIDIPort, e.cfg.MIDIPort), velocity, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEngine(); err != nil {
			e.logger.Warn("closing engine failed", "error", err)
		}
	}()
	broker := playback.NewBroker()
	s := session.New(e.registry, eng, session.WithLogger(e.logger), session.WithBroker(broker), session.WithDebounce(e.cfg.WatchDebounce))
	defer s.Close()
	if err := load(ctx, e, s, params); err != nil {
		return err
	}
	if err := s.PlayFrom(params.From); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runClock(ctx, e, s.Controller(), firstNonEmpty(params.Clock, e.cfg.Clock)) })
	if params.Watch {
		g.Go(func() error {
			return s.Watch(ctx, params.File, params.Format, func(res *songio.Result, err error) {
				if err == nil {
					fmt.Fprintf(e.out, "reloaded %s\n", res.Path)
				}
			})
		})
	}
	listen := params.Listen
	if listen != "" {
		server, err := rpc.Listen(listen, s)
		if err != nil {
			return err
		}
		e.logger.Info("accepting remote commands", "addr", server.Addr())
		g.Go(func() error { return server.Serve(ctx) })
	}
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case a := <-broker.Alerts:
				e.logger.Warn(a.Message, "alert", a.Name, "priority", a.Priority)
			case <-broker.Status:
				// a remote-controlled player keeps running after the song ends;
				// a reload stops the controller too, but does not end the song
				if listen == "" && s.Controller().Status().Ended {
					cancel()
					return nil
				}
			}
		}
	})
	return g.Wait()
}

func load(ctx context.Context, e *env, s *session.Session, params *PlayParams) error {
	lctx, cancel := e.loadContext(ctx)
	defer cancel()
	res, err := s.LoadSong(lctx, params.File, params.Format)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(e.out, "warning: %s\n", w)
	}
	if params.LoopStart >= 0 || params.LoopEnd >= 0 {
		end := params.LoopEnd
		if end < 0 {
			end = res.Song.Length()
		}
		if err := s.Controller().SetLoop(max(params.LoopStart, 0), end); err != nil {
			return err
		}
	}
	return nil
}

func runClock(ctx context.Context, e *env, c *playback.Controller, clock string) error {
	switch clock {
	case "timer":
		return playback.NewClock(c).Run(ctx)
	case "audio":
		ac, err := oto.NewClock(c, e.logger)
		if err != nil {
			return err
		}
		return ac.Run(ctx)
	}
	return fmt.Errorf("unknown clock %q", clock)
}

// dryRun plays the song through once on a recording engine without waiting
// for the clock and prints what the engine was told to do.
func dryRun(ctx context.Context, e *env, params *PlayParams) error {
	rec := engine.NewRecorder()
	s := session.New(e.registry, rec, session.WithLogger(e.logger))
	if err := load(ctx, e, s, params); err != nil {
		return err
	}
	c := s.Controller()
	// a loop would play forever; go around it once
	limit := c.Song().Length()
	if l, ok := c.Loop(); ok {
		limit = l.End + (l.End - l.Start)
	}
	if err := s.PlayFrom(params.From); err != nil {
		return err
	}
	printCommands(e, rec)
	for range limit {
		if ctx.Err() != nil || c.State() != playback.Playing {
			break
		}
		if err := c.Tick(); err != nil {
			return err
		}
		printCommands(e, rec)
	}
	if err := s.Close(); err != nil {
		return err
	}
	printCommands(e, rec)
	return nil
}

func printCommands(e *env, rec *engine.Recorder) {
	for _, c := range rec.Commands() {
		fmt.Fprintln(e.out, c)
	}
	rec.Reset()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
