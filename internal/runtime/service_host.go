package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

const defaultShutdownTimeout = 5 * time.Second

// ServiceFactory constructs a service instance when the host starts.
type ServiceFactory func(ctx context.Context) (Service, error)

// ServiceHost starts daemon services in registration order and stops them in
// reverse.
type ServiceHost struct {
	mu      sync.Mutex
	order   []*serviceRegistration
	names   map[string]bool
	started bool
	errors  chan error
	cancel  context.CancelFunc
}

// Option configures a service registration.
type Option func(*serviceRegistration)

type serviceRegistration struct {
	name            string
	factory         ServiceFactory
	service         Service
	shutdownTimeout time.Duration
}

// WithShutdownTimeout customises the shutdown timeout for a service.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(reg *serviceRegistration) {
		reg.shutdownTimeout = timeout
	}
}

// NewServiceHost creates a new service host.
func NewServiceHost() *ServiceHost {
	return &ServiceHost{
		names:  make(map[string]bool),
		errors: make(chan error, 1),
	}
}

// Register registers a service factory under the provided name.
func (h *ServiceHost) Register(name string, factory ServiceFactory, opts ...Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return fmt.Errorf("runtime: cannot register service %q after start", name)
	}
	if h.names[name] {
		return fmt.Errorf("runtime: service %q already registered", name)
	}
	if factory == nil {
		return fmt.Errorf("runtime: service %q has no factory", name)
	}

	reg := &serviceRegistration{name: name, factory: factory, shutdownTimeout: defaultShutdownTimeout}
	for _, opt := range opts {
		opt(reg)
	}
	h.names[name] = true
	h.order = append(h.order, reg)
	return nil
}

// Start creates and starts every service. On failure the services already
// started are stopped again.
func (h *ServiceHost) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("runtime: service host already started")
	}
	h.started = true
	var hostCtx context.Context
	hostCtx, h.cancel = context.WithCancel(ctx)
	order := append([]*serviceRegistration(nil), h.order...)
	h.mu.Unlock()

	for i, reg := range order {
		svc, err := reg.factory(hostCtx)
		if err == nil {
			err = svc.Start(hostCtx)
		}
		if err != nil {
			h.stopAll(context.Background(), order[:i])
			h.mu.Lock()
			h.started = false
			h.cancel()
			h.mu.Unlock()
			return fmt.Errorf("runtime: start service %q: %w", reg.name, err)
		}
		reg.service = svc
		h.watchErrors(reg)
		log.Printf("[Runtime] service %s started", reg.name)
	}
	return nil
}

// Stop gracefully stops all services in reverse registration order.
func (h *ServiceHost) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	cancel := h.cancel
	h.cancel = nil
	order := append([]*serviceRegistration(nil), h.order...)
	h.mu.Unlock()

	err := h.stopAll(ctx, order)
	if cancel != nil {
		cancel()
	}
	return err
}

// Errors returns a channel receiving fatal service errors.
func (h *ServiceHost) Errors() <-chan error {
	return h.errors
}

func (h *ServiceHost) stopAll(ctx context.Context, regs []*serviceRegistration) error {
	var errs []error
	for i := len(regs) - 1; i >= 0; i-- {
		reg := regs[i]
		if reg.service == nil {
			continue
		}
		timeout := reg.shutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		if err := reg.service.Shutdown(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("runtime: shutdown service %q: %w", reg.name, err))
		}
		cancel()
		reg.service = nil
	}
	return errors.Join(errs...)
}

// watchErrors forwards errors from services exposing Errors() <-chan error.
func (h *ServiceHost) watchErrors(reg *serviceRegistration) {
	observable, ok := reg.service.(interface{ Errors() <-chan error })
	if !ok {
		return
	}
	go func(name string, ch <-chan error) {
		for err := range ch {
			if err == nil {
				continue
			}
			select {
			case h.errors <- fmt.Errorf("%s service error: %w", name, err):
			default:
			}
		}
	}(reg.name, observable.Errors())
}
