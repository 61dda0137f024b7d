package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"time"

	"github.com/vsariola/kappale/playback"
)

// DefaultAddr is where a remote-controlled player listens unless told
// otherwise.
const DefaultAddr = "localhost:31337"

type (
	// Transport is the part of a player that can be controlled remotely.
	Transport interface {
		Play() error
		Pause() error
		Resume() error
		Stop() error
		Seek(tick int) error
		Status() playback.Status
	}

	// Args are the arguments of every remote call; only Seek uses Tick.
	Args struct {
		Tick int
	}

	// TransportService is the receiver registered with net/rpc. Every
	// method replies with the status after the call.
	TransportService struct {
		transport Transport
	}

	Server struct {
		listener net.Listener
		http     *http.Server
	}

	Client struct {
		client *rpc.Client
	}
)

func (s *TransportService) Play(_ Args, reply *playback.Status) error {
	return s.do(s.transport.Play, reply)
}

func (s *TransportService) Pause(_ Args, reply *playback.Status) error {
	return s.do(s.transport.Pause, reply)
}

func (s *TransportService) Resume(_ Args, reply *playback.Status) error {
	return s.do(s.transport.Resume, reply)
}

func (s *TransportService) Stop(_ Args, reply *playback.Status) error {
	return s.do(s.transport.Stop, reply)
}

func (s *TransportService) Seek(args Args, reply *playback.Status) error {
	return s.do(func() error { return s.transport.Seek(args.Tick) }, reply)
}

func (s *TransportService) Status(_ Args, reply *playback.Status) error {
	*reply = s.transport.Status()
	return nil
}

func (s *TransportService) do(f func() error, reply *playback.Status) error {
	err := f()
	*reply = s.transport.Status()
	return err
}

// Listen starts listening on addr for remote transport calls. Calls are
// served once Serve is called.
func Listen(addr string, t Transport) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("Transport", &TransportService{transport: t}); err != nil {
		return nil, fmt.Errorf("rpc.RegisterName failed: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, srv)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.Listen failed: %w", err)
	}
	return &Server{listener: l, http: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}}, nil
}

// Serve listens on addr and serves t until ctx is done.
func Serve(ctx context.Context, addr string, t Transport) error {
	s, err := Listen(addr, t)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve serves calls until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.http.Serve(s.listener) }()
	select {
	case err := <-errc:
		return fmt.Errorf("http.Serve failed: %w", err)
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdown); err != nil {
		return fmt.Errorf("http.Shutdown failed: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http.Serve failed: %w", err)
	}
	return nil
}

func Dial(addr string) (*Client, error) {
	c, err := rpc.DialHTTP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc.DialHTTP failed: %w", err)
	}
	return &Client{client: c}, nil
}

func (c *Client) Play() (playback.Status, error)   { return c.call("Play", Args{}) }
func (c *Client) Pause() (playback.Status, error)  { return c.call("Pause", Args{}) }
func (c *Client) Resume() (playback.Status, error) { return c.call("Resume", Args{}) }
func (c *Client) Stop() (playback.Status, error)   { return c.call("Stop", Args{}) }
func (c *Client) Status() (playback.Status, error) { return c.call("Status", Args{}) }

func (c *Client) Seek(tick int) (playback.Status, error) {
	return c.call("Seek", Args{Tick: tick})
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) call(method string, args Args) (playback.Status, error) {
	var reply playback.Status
	if err := c.client.Call("Transport."+method, args, &reply); err != nil {
		return reply, fmt.Errorf("Transport.%s failed: %w", method, err)
	}
	return reply, nil
}
