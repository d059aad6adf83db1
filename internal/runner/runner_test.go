package runner

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorker blocks until its context is done, optionally failing first.
type fakeWorker struct {
	err     error
	started atomic.Bool
}

func (f *fakeWorker) Start(ctx context.Context) error {
	f.started.Store(true)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

// fakeServer implements the HTTP server surface without binding a port.
type fakeServer struct {
	serveErr  error
	closed    chan struct{}
	shutdowns atomic.Int32
}

func newFakeServer(serveErr error) *fakeServer {
	return &fakeServer{serveErr: serveErr, closed: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.serveErr != nil {
		return f.serveErr
	}
	<-f.closed
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.shutdowns.Add(1)
	close(f.closed)
	return nil
}

func TestRunner_StopsOnContextCancel(t *testing.T) {
	r := New()
	worker := &fakeWorker{}
	server := newFakeServer(nil)
	r.AddWorker(worker)
	r.AddHTTPServer(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop on context cancellation")
	}
	assert.True(t, worker.started.Load())
	assert.Equal(t, int32(1), server.shutdowns.Load())
}

func TestRunner_ReturnsFirstWorkerError(t *testing.T) {
	r := New()
	boom := errors.New("worker exploded")
	r.AddWorker(&fakeWorker{err: boom})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.ErrorIs(t, r.Run(ctx), boom)
}

func TestRunner_ReturnsServerError(t *testing.T) {
	r := New()
	boom := errors.New("listen failed")
	r.AddHTTPServer(newFakeServer(boom))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.ErrorIs(t, r.Run(ctx), boom)
}

func TestRunner_NothingRegistered(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Run(ctx))
}
