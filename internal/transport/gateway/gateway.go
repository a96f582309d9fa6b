package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const (
	shutdownGrace     = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Options configure the gateway listeners.
type Options struct {
	// HTTPAddr and GRPCAddr use port 0 for an ephemeral port.
	HTTPAddr string
	GRPCAddr string
	// RegisterGRPC registers extra services next to health.
	RegisterGRPC func(*grpc.Server)
}

// ListenerInfo describes one bound listener.
type ListenerInfo struct {
	Scheme  string
	Address string
	Port    int
}

// Info holds the addresses the daemon advertises in its runtime file.
type Info struct {
	HTTP ListenerInfo
	GRPC ListenerInfo
}

// endpoint is one listener plus the server bound to it.
type endpoint struct {
	scheme   string
	listener net.Listener
	serve    func(net.Listener) error
	stop     func(context.Context) error
	// benign reports errors that only mean the server was stopped.
	benign func(error) bool
}

func (e *endpoint) info() ListenerInfo {
	port := 0
	if addr, ok := e.listener.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	return ListenerInfo{Scheme: e.scheme, Address: e.listener.Addr().String(), Port: port}
}

// Gateway serves the page-facing HTTP API and the gRPC health service used
// by `comfort daemon status`.
type Gateway struct {
	handler http.Handler
	opts    Options

	mu        sync.RWMutex
	endpoints []*endpoint
	health    *health.Server
	errCh     chan error
	wg        sync.WaitGroup
	info      Info
}

// New constructs a Gateway serving handler over HTTP.
func New(handler http.Handler, opts Options) *Gateway {
	return &Gateway{handler: handler, opts: opts}
}

// Start binds both listeners and serves until ctx ends or Shutdown runs.
// It must not race with Shutdown.
func (g *Gateway) Start(ctx context.Context) (*Info, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.endpoints != nil {
		return nil, errors.New("gateway: already started")
	}

	httpLn, err := net.Listen("tcp", g.opts.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("gateway: listen http: %w", err)
	}
	grpcLn, err := net.Listen("tcp", g.opts.GRPCAddr)
	if err != nil {
		_ = httpLn.Close()
		return nil, fmt.Errorf("gateway: listen grpc: %w", err)
	}

	g.health = health.NewServer()
	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	web := g.httpEndpoint(httpLn)
	rpc := g.grpcEndpoint(grpcLn)
	g.endpoints = []*endpoint{web, rpc}
	g.info = Info{HTTP: web.info(), GRPC: rpc.info()}
	g.errCh = make(chan error, len(g.endpoints))

	for _, ep := range g.endpoints {
		g.wg.Add(1)
		go g.run(ctx, ep)
	}
	go func(ch chan error) {
		g.wg.Wait()
		close(ch)
	}(g.errCh)

	info := g.info
	return &info, nil
}

func (g *Gateway) httpEndpoint(ln net.Listener) *endpoint {
	srv := &http.Server{Handler: g.handler, ReadHeaderTimeout: readHeaderTimeout}
	return &endpoint{
		scheme:   "http",
		listener: ln,
		serve:    srv.Serve,
		stop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
			defer cancel()
			return srv.Shutdown(ctx)
		},
		benign: func(err error) bool {
			return errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled)
		},
	}
}

func (g *Gateway) grpcEndpoint(ln net.Listener) *endpoint {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, g.health)
	if g.opts.RegisterGRPC != nil {
		g.opts.RegisterGRPC(srv)
	}
	return &endpoint{
		scheme:   "grpc",
		listener: ln,
		serve:    srv.Serve,
		stop: func(context.Context) error {
			done := make(chan struct{})
			go func() {
				srv.GracefulStop()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(shutdownGrace):
				srv.Stop()
			}
			return nil
		},
		benign: func(err error) bool {
			return errors.Is(err, grpc.ErrServerStopped) || errors.Is(err, net.ErrClosed) || status.Code(err) == codes.Canceled
		},
	}
}

// run serves ep and stops it when ctx ends.
func (g *Gateway) run(ctx context.Context, ep *endpoint) {
	defer g.wg.Done()

	served := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			g.report(ep, ep.stop(context.Background()))
		case <-served:
		}
	}()

	g.report(ep, ep.serve(ep.listener))
	close(served)
	<-stopped
}

func (g *Gateway) report(ep *endpoint, err error) {
	if err == nil || ep.benign(err) {
		return
	}
	g.mu.RLock()
	ch := g.errCh
	g.mu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- fmt.Errorf("gateway: %s: %w", ep.scheme, err):
	default:
	}
}

// Shutdown reports NOT_SERVING, then stops every listener. Calling it again
// is a no-op.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	endpoints, hs, errCh := g.endpoints, g.health, g.errCh
	g.endpoints, g.health, g.errCh = nil, nil, nil
	g.mu.Unlock()

	if endpoints == nil {
		return nil
	}
	hs.Shutdown()

	var errs []error
	for _, ep := range endpoints {
		if err := ep.stop(ctx); err != nil && !ep.benign(err) {
			errs = append(errs, fmt.Errorf("gateway: stop %s: %w", ep.scheme, err))
		}
	}
	g.wg.Wait()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			errs = append(errs, err)
		}
	default:
	}
	return errors.Join(errs...)
}

// Errors returns listener failures; the channel closes once every listener stops.
func (g *Gateway) Errors() <-chan error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.errCh == nil {
		ch := make(chan error)
		close(ch)
		return ch
	}
	return g.errCh
}

// Info returns the bound listener addresses.
func (g *Gateway) Info() Info {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.info
}
