package wsupgrade

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Grace enables graceful shutdown of upgraded WebSocket connections.
//
// Use Handler to wrap upgrade handlers so that upgraded connections are
// recorded, then Close or Shutdown to close them.
//
// Grace is intended to be used in harmony with net/http.Server's Shutdown and Close methods.
type Grace struct {
	mu      sync.Mutex
	closing bool
	conns   map[*Conn]struct{}
}

// Handler returns a handler that wraps around h to record
// all WebSocket connections upgraded through FromRequest.
func (g *Grace) Handler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), graceContextKey{}, g)
		r = r.WithContext(ctx)
		h.ServeHTTP(w, r)
	})
}

func (g *Grace) isClosing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}

func graceFromRequest(r *http.Request) *Grace {
	g, _ := r.Context().Value(graceContextKey{}).(*Grace)
	return g
}

func (g *Grace) addConn(c *Conn) error {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		c.CloseWith(context.Background(), CloseAway, ErrGraceClosing.Body())
		return ErrGraceClosing
	}
	if g.conns == nil {
		g.conns = make(map[*Conn]struct{})
	}
	g.conns[c] = struct{}{}
	g.mu.Unlock()
	return nil
}

func (g *Grace) delConn(c *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, c)
}

type graceContextKey struct{}

// Close prevents new upgrades, which are rejected with ErrGraceClosing,
// and closes all upgraded connections with CloseAway.
func (g *Grace) Close() error {
	g.mu.Lock()
	g.closing = true
	var wg sync.WaitGroup
	for c := range g.conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			defer cancel()
			c.CloseWith(ctx, CloseAway, ErrGraceClosing.Body())
		}(c)

		delete(g.conns, c)
	}
	g.mu.Unlock()

	wg.Wait()

	return nil
}

// Shutdown prevents new upgrades and waits until every upgrade callback
// has returned. If the context is cancelled before that, it calls Close
// to close all connections immediately.
func (g *Grace) Shutdown(ctx context.Context) error {
	defer g.Close()

	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	// Same poll period used by net/http.
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
	for {
		if g.zeroConns() {
			return nil
		}

		select {
		case <-t.C:
		case <-ctx.Done():
			return fmt.Errorf("failed to shutdown WebSockets: %w", ctx.Err())
		}
	}
}

func (g *Grace) zeroConns() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns) == 0
}
