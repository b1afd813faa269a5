package wsframe

import (
	"context"
	"sync"
	"time"
)

var aLongTimeAgo = time.Unix(1, 0)

// deadline maps a context onto one direction of a net.Conn's deadlines.
//
// Only cancellation touches the deadline, so an interrupted operation always
// observes ctx.Err() != nil.
type deadline struct {
	mu  sync.Mutex
	gen uint64
	set func(time.Time) error
}

// watch clears any past deadline and interrupts the pending operation once
// ctx is done. The returned func must be called when the operation returns.
func (d *deadline) watch(ctx context.Context) (stop func()) {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.set(time.Time{})
	d.mu.Unlock()

	stopAfter := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		// A stale callback must not interrupt a later operation.
		if d.gen == gen {
			d.set(aLongTimeAgo)
		}
	})
	return func() {
		stopAfter()
		d.mu.Lock()
		d.gen++
		d.mu.Unlock()
	}
}
