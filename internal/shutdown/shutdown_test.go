package shutdown

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockComponent records shutdown calls with a configurable delay.
type mockComponent struct {
	name       string
	delay      time.Duration
	shouldFail bool

	calls int32
}

func newMockComponent(name string, delay time.Duration, shouldFail bool) *mockComponent {
	return &mockComponent{name: name, delay: delay, shouldFail: shouldFail}
}

func (m *mockComponent) Name() string { return m.name }

func (m *mockComponent) Shutdown(ctx context.Context) error {
	atomic.AddInt32(&m.calls, 1)

	select {
	case <-time.After(m.delay):
		if m.shouldFail {
			return errors.New("mock shutdown failed")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockComponent) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

func TestShutdownStopsAllComponents(t *testing.T) {
	coordinator := NewCoordinator(WithTimeout(time.Second))

	components := []*mockComponent{
		newMockComponent("store", 0, false),
		newMockComponent("watchdog", 0, false),
		newMockComponent("http", 0, false),
	}
	for _, c := range components {
		coordinator.Register(c)
	}

	coordinator.Shutdown()
	coordinator.Wait()

	for _, c := range components {
		assert.Equal(t, 1, c.Calls(), "component %s", c.name)
	}
	assert.Equal(t, 0, coordinator.ExitCode())
}

func TestShutdownIsIdempotent(t *testing.T) {
	coordinator := NewCoordinator(WithTimeout(time.Second))
	c := newMockComponent("store", 0, false)
	coordinator.Register(c)

	coordinator.Shutdown()
	coordinator.Shutdown()
	coordinator.Wait()

	assert.Equal(t, 1, c.Calls())
}

func TestShutdownTimeoutForcesTermination(t *testing.T) {
	coordinator := NewCoordinator(WithTimeout(50 * time.Millisecond))
	coordinator.Register(newMockComponent("slow", 5*time.Second, false))

	start := time.Now()
	coordinator.Shutdown()
	coordinator.Wait()

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, coordinator.ExitCode())
}

func TestComponentFailureDoesNotBlockOthers(t *testing.T) {
	coordinator := NewCoordinator(WithTimeout(time.Second))
	failing := newMockComponent("bad", 0, true)
	healthy := newMockComponent("good", 0, false)
	coordinator.Register(failing)
	coordinator.Register(healthy)

	coordinator.Shutdown()
	coordinator.Wait()

	assert.Equal(t, 1, failing.Calls())
	assert.Equal(t, 1, healthy.Calls())
	assert.Equal(t, 0, coordinator.ExitCode())
}

func TestWaitForSignalTriggersShutdown(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	coordinator := NewCoordinator(
		WithTimeout(time.Second),
		WithSignalChannel(sigCh),
	)
	c := newMockComponent("store", 0, false)
	coordinator.Register(c)

	done := make(chan struct{})
	go func() {
		coordinator.WaitForSignal()
		close(done)
	}()

	sigCh <- syscall.SIGTERM

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not complete after signal")
	}
	assert.Equal(t, 1, c.Calls())
}

func TestPropertyAllComponentsShutDownWithinTimeout(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	genDelay := gen.Int64Range(0, 20).Map(func(ms int64) time.Duration {
		return time.Duration(ms) * time.Millisecond
	})

	properties.Property("every registered component is shut down exactly once", prop.ForAll(
		func(delay time.Duration, numComponents int) bool {
			coordinator := NewCoordinator(WithTimeout(2 * time.Second))

			components := make([]*mockComponent, numComponents)
			for i := range components {
				components[i] = newMockComponent("c", delay, false)
				coordinator.Register(components[i])
			}

			coordinator.Shutdown()
			coordinator.Wait()

			for _, c := range components {
				if c.Calls() != 1 {
					return false
				}
			}
			return coordinator.ExitCode() == 0
		},
		genDelay,
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

func TestHTTPServerComponentDrainsServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.NewServeMux()}
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ln)
	}()

	c := NewHTTPServerComponent("http-server", srv)
	assert.Equal(t, "http-server", c.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	select {
	case err := <-served:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop serving")
	}
}
