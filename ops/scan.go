package ops

import (
	"time"

	"github.com/pkg/errors"

	"github.com/mstgnz/sqlexec/kvs"
	"github.com/mstgnz/sqlexec/record"
)

// ScanSource is the read surface the scan and find operators need; both the
// store and a transaction snapshot satisfy it.
type ScanSource interface {
	Get(key []byte) ([]byte, bool, error)
	Scan(lower []byte, lowerInclusive bool, upper []byte, upperInclusive bool) (kvs.Iterator, error)
}

// ScanBounds is the key range of a scan, already encoded and prefixed.
// A nil endpoint leaves the table prefix as the bound on that side.
type ScanBounds struct {
	Lower          []byte
	LowerInclusive bool
	Upper          []byte
	UpperInclusive bool
}

// Scan reads a key range of a table's primary index, decodes each row into
// the output variable table and drives the downstream chain. It yields
// cooperatively every blockSize records or yieldInterval of wall time.
type Scan struct {
	index         int
	spec          kvs.TableSpec
	source        ScanSource
	bounds        ScanBounds
	output        *record.VariableTable
	downstream    RecordOperator
	blockSize     int
	yieldInterval time.Duration
}

// NewScan builds a scan operator.
func NewScan(index int, spec kvs.TableSpec, source ScanSource, bounds ScanBounds, output *record.VariableTable, downstream RecordOperator, blockSize int, yieldInterval time.Duration) *Scan {
	if blockSize <= 0 {
		blockSize = 100
	}
	if yieldInterval <= 0 {
		yieldInterval = time.Millisecond
	}
	return &Scan{
		index:         index,
		spec:          spec,
		source:        source,
		bounds:        bounds,
		output:        output,
		downstream:    downstream,
		blockSize:     blockSize,
		yieldInterval: yieldInterval,
	}
}

// Kind implements RecordOperator.
func (s *Scan) Kind() Kind { return OpScan }

// Index implements RecordOperator.
func (s *Scan) Index() int { return s.index }

type scanContext struct {
	contextBase
	it kvs.Iterator
}

func (c *scanContext) Kind() Kind { return OpScan }

func (c *scanContext) Release() {
	if c.it != nil {
		c.it.Release()
		c.it = nil
	}
}

// Run drives the scan until the range is exhausted, the task yields, or the
// request is cancelled. ErrYield means call again; any other error means the
// task is finished.
func (s *Scan) Run(tc *TaskContext) error {
	ctx := contextFor(tc, s.index, func() *scanContext { return &scanContext{} })
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	if ctx.it == nil {
		it, err := s.openIterator()
		if err != nil {
			return s.fail(tc, ctx, err)
		}
		ctx.it = it
	}
	processed := 0
	sliceStart := time.Now()
	for ctx.it.Next() {
		if tc.Canceled() {
			ctx.Abort()
			_ = s.downstream.Finish(tc)
			return ErrAborted
		}
		if err := kvs.DecodeRecord(s.spec, ctx.it.Key(), ctx.it.Value(), s.output.Record()); err != nil {
			return s.fail(tc, ctx, err)
		}
		if err := s.downstream.ProcessRecord(tc); err != nil {
			return s.fail(tc, ctx, err)
		}
		processed++
		if processed >= s.blockSize || time.Since(sliceStart) >= s.yieldInterval {
			return ErrYield
		}
	}
	if err := ctx.it.Error(); err != nil {
		return s.fail(tc, ctx, errors.Wrap(err, "scan iterator"))
	}
	return s.Finish(tc)
}

func (s *Scan) openIterator() (kvs.Iterator, error) {
	lower, upper := kvs.PrefixRange(kvs.PrimaryPrefix(s.spec.Name))
	li, ui := true, false
	if s.bounds.Lower != nil {
		lower, li = s.bounds.Lower, s.bounds.LowerInclusive
	}
	if s.bounds.Upper != nil {
		upper, ui = s.bounds.Upper, s.bounds.UpperInclusive
	}
	return s.source.Scan(lower, li, upper, ui)
}

func (s *Scan) fail(tc *TaskContext, ctx *scanContext, err error) error {
	ctx.Abort()
	ctx.Release()
	_ = s.downstream.Finish(tc)
	return err
}

// Finish releases the iterator and cascades downstream.
func (s *Scan) Finish(tc *TaskContext) error {
	if ctx, ok := tc.Contexts.At(s.index).(*scanContext); ok && ctx != nil {
		ctx.Release()
	}
	return s.downstream.Finish(tc)
}
