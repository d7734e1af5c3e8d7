package decimal

import (
	"sync"
	"sync/atomic"

	sd "github.com/shopspring/decimal"
)

// Status is the bitmask of conditions raised by a decimal operation.
// Callers check it after each operation the way the IEEE context status
// word is checked; the zero value means the operation was exact.
type Status uint32

const (
	StatusOK               Status = 0
	StatusInexact          Status = 1 << iota // digits were discarded
	StatusRounded                             // the coefficient was shortened
	StatusInvalidOperation                    // the operation has no result in the context
	StatusDivisionByZero                      // division or remainder by zero
	StatusOverflow                            // exponent above the context maximum
	StatusConversionSyntax                    // text could not be parsed as a decimal
)

// Inexact reports whether digits were lost.
func (s Status) Inexact() bool { return s&StatusInexact != 0 }

// Invalid reports whether the operation was invalid in the context,
// including division by zero and overflow.
func (s Status) Invalid() bool {
	return s&(StatusInvalidOperation|StatusDivisionByZero|StatusOverflow) != 0
}

// Syntax reports whether a conversion from text failed.
func (s Status) Syntax() bool { return s&StatusConversionSyntax != 0 }

var (
	contextOnce  sync.Once
	contextReady atomic.Bool
)

// EnsureContext installs the standard decimal context. Every goroutine that
// touches decimal values must call it before the first operation; after the
// first call it is a no-op. Unlike a thread-local C context the Go runtime
// migrates goroutines across threads, so the context is process-global and
// this function serializes its one-time installation.
func EnsureContext() {
	contextOnce.Do(func() {
		// the backing library carries one global division precision; the
		// quotient path in arith.go computes its own 38 digit cut so this
		// only guards direct library use.
		sd.DivisionPrecision = MaxPrecision
		contextReady.Store(true)
	})
}

// ContextReady reports whether the standard context has been installed.
func ContextReady() bool {
	return contextReady.Load()
}
