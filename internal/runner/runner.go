// Package runner coordinates the server's long-lived goroutines: the
// periodic workers and the HTTP server, with graceful shutdown on
// context cancellation.
package runner

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Worker is a long-running loop that exits when its context is done.
type Worker interface {
	Start(ctx context.Context) error
}

// HTTPServer is the server surface the runner manages.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

const shutdownTimeout = 5 * time.Second

// Runner owns a set of workers and HTTP servers and runs them until
// the first error or context cancellation.
type Runner struct {
	mu      sync.Mutex
	workers []Worker
	servers []HTTPServer
	wg      sync.WaitGroup
	errCh   chan error
}

// New creates an empty Runner.
func New() *Runner {
	return &Runner{
		errCh: make(chan error, 1),
	}
}

// AddWorker registers a worker to run.
func (r *Runner) AddWorker(w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = append(r.workers, w)
}

// AddHTTPServer registers an HTTP server to run.
func (r *Runner) AddHTTPServer(srv HTTPServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = append(r.servers, srv)
}

// Run starts everything and blocks until the context is cancelled, the
// first error occurs, or all goroutines finish.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	workers := append([]Worker(nil), r.workers...)
	servers := append([]HTTPServer(nil), r.servers...)
	r.mu.Unlock()

	for _, w := range workers {
		r.wg.Add(1)
		go func(w Worker) {
			defer r.wg.Done()
			if err := w.Start(ctx); err != nil {
				r.sendError(err)
			}
		}(w)
	}
	for _, srv := range servers {
		r.wg.Add(1)
		go func(srv HTTPServer) {
			defer r.wg.Done()
			r.serveHTTP(ctx, srv)
		}(srv)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		<-done
		return nil
	case err := <-r.errCh:
		return err
	case <-done:
		return nil
	}
}

func (r *Runner) serveHTTP(ctx context.Context, srv HTTPServer) {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.sendError(err)
		}
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.sendError(err)
		}
	}
}

// sendError keeps only the first error.
func (r *Runner) sendError(err error) {
	select {
	case r.errCh <- err:
	default:
	}
}
