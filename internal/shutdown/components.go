package shutdown

import (
	"context"
	"io"
	"net/http"
)

// HTTPServerComponent drains an http.Server.
type HTTPServerComponent struct {
	name   string
	server *http.Server
}

// NewHTTPServerComponent creates an HTTP server shutdown component.
func NewHTTPServerComponent(name string, server *http.Server) *HTTPServerComponent {
	return &HTTPServerComponent{name: name, server: server}
}

func (c *HTTPServerComponent) Name() string { return c.name }

// Shutdown stops accepting connections and waits for in-flight
// requests to finish.
func (c *HTTPServerComponent) Shutdown(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

// CloserComponent closes an io.Closer, such as the store or the NATS
// notifier.
type CloserComponent struct {
	name   string
	closer io.Closer
}

// NewCloserComponent creates a closer shutdown component.
func NewCloserComponent(name string, closer io.Closer) *CloserComponent {
	return &CloserComponent{name: name, closer: closer}
}

func (c *CloserComponent) Name() string { return c.name }

func (c *CloserComponent) Shutdown(ctx context.Context) error {
	return c.closer.Close()
}

// Stopper is a background loop that can be stopped, like the watchdog.
type Stopper interface {
	Stop()
}

// StopperComponent stops a background loop, honoring the context
// deadline in case Stop blocks.
type StopperComponent struct {
	name    string
	stopper Stopper
}

// NewStopperComponent creates a stopper shutdown component.
func NewStopperComponent(name string, stopper Stopper) *StopperComponent {
	return &StopperComponent{name: name, stopper: stopper}
}

func (c *StopperComponent) Name() string { return c.name }

func (c *StopperComponent) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.stopper.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
