package wsupgrade

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"sync"
)

// Extensions is a per request store of values keyed by their Go type.
// It is safe for concurrent use. Get and Take treat a nil *Extensions
// as an empty store.
type Extensions struct {
	mu sync.Mutex
	m  map[reflect.Type]interface{}
}

// NewExtensions returns an empty store.
func NewExtensions() *Extensions {
	return &Extensions{}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Insert stores v under its type and returns the value it replaced, if any.
func Insert[T any](e *Extensions, v T) (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.m == nil {
		e.m = make(map[reflect.Type]interface{})
	}
	k := typeOf[T]()
	old, ok := e.m[k].(T)
	e.m[k] = v
	return old, ok
}

// Get returns the value stored under T without removing it.
func Get[T any](e *Extensions) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.m[typeOf[T]()].(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Take removes and returns the value stored under T.
// A second Take of the same type reports absence.
func Take[T any](e *Extensions) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	k := typeOf[T]()
	v, ok := e.m[k].(T)
	if !ok {
		return zero, false
	}
	delete(e.m, k)
	return v, true
}

// ErrUpgradeConsumed is returned when a connection upgrade is attempted twice.
var ErrUpgradeConsumed = errors.New("connection upgrade already performed")

// OnUpgrade is the one-shot capability to take over the connection of an
// HTTP/1.1 request. It resolves once the switching protocols response has
// been written and the connection hijacked.
type OnUpgrade struct {
	hj   http.Hijacker
	once sync.Once
	done chan struct{}

	nc  net.Conn
	brw *bufio.ReadWriter
	err error
}

// NewOnUpgrade returns the upgrade capability for a connection that hj can hijack.
func NewOnUpgrade(hj http.Hijacker) *OnUpgrade {
	return &OnUpgrade{
		hj:   hj,
		done: make(chan struct{}),
	}
}

// hijack takes over the connection and resolves u.
// Only the first call hijacks; later calls return ErrUpgradeConsumed.
func (u *OnUpgrade) hijack() error {
	err := ErrUpgradeConsumed
	u.once.Do(func() {
		defer close(u.done)

		nc, brw, herr := u.hj.Hijack()
		if herr != nil {
			u.err = fmt.Errorf("failed to hijack connection: %w", herr)
			err = u.err
			return
		}

		// https://github.com/golang/go/issues/32314
		b, _ := brw.Reader.Peek(brw.Reader.Buffered())
		brw.Reader.Reset(io.MultiReader(bytes.NewReader(b), nc))

		u.nc = nc
		u.brw = brw
		err = nil
	})
	return err
}

// Wait blocks until the connection has been hijacked or ctx is done.
// An upgrade that completed before ctx was done is still returned.
func (u *OnUpgrade) Wait(ctx context.Context) (net.Conn, *bufio.ReadWriter, error) {
	select {
	case <-u.done:
	case <-ctx.Done():
		select {
		case <-u.done:
		default:
			return nil, nil, fmt.Errorf("failed to wait for connection upgrade: %w", ctx.Err())
		}
	}
	if u.err != nil {
		return nil, nil, u.err
	}
	return u.nc, u.brw, nil
}
