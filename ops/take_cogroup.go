package ops

import (
	"container/heap"

	"github.com/mstgnz/sqlexec/record"
)

// TakeCogroup reads N already-sorted group streams and delivers cogroups in
// global key order. For each input it keeps the current group (valid when
// filled) and the pre-read next group; the min-heap holds exactly the inputs
// with a pre-read next key.
type TakeCogroup struct {
	index      int
	readers    []GroupReader
	downstream CogroupOperator
}

// NewTakeCogroup builds a take_cogroup over the upstream exchange readers.
func NewTakeCogroup(index int, readers []GroupReader, downstream CogroupOperator) *TakeCogroup {
	return &TakeCogroup{index: index, readers: readers, downstream: downstream}
}

// Kind implements the operator protocol.
func (t *TakeCogroup) Kind() Kind { return OpTakeCogroup }

// Index implements the operator protocol.
func (t *TakeCogroup) Index() int { return t.index }

type cogroupInput struct {
	reader  GroupReader
	ordinal int
	next    record.Group
	hasNext bool
	current record.Group
	filled  bool
	eof     bool
}

// read pre-loads the next group, marking EOF when the stream ends.
func (in *cogroupInput) read() error {
	g, ok, err := in.reader.NextGroup()
	if err != nil {
		return err
	}
	if !ok {
		in.hasNext = false
		in.eof = true
		return nil
	}
	in.next = g
	in.hasNext = true
	return nil
}

// fill promotes the pre-read group to current.
func (in *cogroupInput) fill() {
	in.current = in.next
	in.hasNext = false
	in.filled = true
}

type inputHeap []*cogroupInput

func (h inputHeap) Len() int { return len(h) }
func (h inputHeap) Less(i, j int) bool {
	if c := record.Compare(h[i].next.Key(), h[j].next.Key()); c != 0 {
		return c < 0
	}
	return h[i].ordinal < h[j].ordinal
}
func (h inputHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *inputHeap) Push(x any)        { *h = append(*h, x.(*cogroupInput)) }
func (h *inputHeap) Pop() any {
	old := *h
	n := len(old)
	out := old[n-1]
	*h = old[:n-1]
	return out
}

type takeCogroupContext struct {
	contextBase
	inputs []*cogroupInput
	heap   inputHeap
	inited bool
}

func (c *takeCogroupContext) Kind() Kind { return OpTakeCogroup }

func (c *takeCogroupContext) Release() {
	for _, in := range c.inputs {
		if in.reader != nil {
			in.reader.Release()
			in.reader = nil
		}
	}
}

// Run executes the state machine: init, then keys_filled/values_filled until
// every input is exhausted. The cancel source is checked at each transition.
func (t *TakeCogroup) Run(tc *TaskContext) error {
	ctx := contextFor(tc, t.index, func() *takeCogroupContext {
		inputs := make([]*cogroupInput, len(t.readers))
		for i, r := range t.readers {
			inputs[i] = &cogroupInput{reader: r, ordinal: i}
		}
		return &takeCogroupContext{inputs: inputs}
	})
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	if !ctx.inited {
		for _, in := range ctx.inputs {
			if err := in.read(); err != nil {
				return t.fail(tc, ctx, err)
			}
			if in.hasNext {
				ctx.heap = append(ctx.heap, in)
			}
		}
		heap.Init(&ctx.heap)
		ctx.inited = true
	}
	scratchMark := tc.Scratch.Save()
	varlenMark := tc.Varlen.Save()
	for {
		if tc.Canceled() {
			ctx.Abort()
			_ = t.downstream.Finish(tc)
			return ErrAborted
		}
		// keys_filled: pick every input sharing the smallest key
		if ctx.heap.Len() == 0 {
			break
		}
		top := heap.Pop(&ctx.heap).(*cogroupInput)
		top.fill()
		if err := t.reload(ctx, top); err != nil {
			return t.fail(tc, ctx, err)
		}
		for ctx.heap.Len() > 0 && record.Compare(ctx.heap[0].next.Key(), top.current.Key()) == 0 {
			same := heap.Pop(&ctx.heap).(*cogroupInput)
			same.fill()
			if err := t.reload(ctx, same); err != nil {
				return t.fail(tc, ctx, err)
			}
		}
		// values_filled: deliver one group per input, empty where unfilled
		key := top.current.Key()
		groups := make([]record.Group, len(ctx.inputs))
		for i, in := range ctx.inputs {
			if in.filled {
				groups[i] = in.current
			} else {
				groups[i] = record.EmptyGroup(key)
			}
		}
		if err := t.downstream.ProcessCogroup(tc, record.NewCogroup(key, groups)); err != nil {
			return t.fail(tc, ctx, err)
		}
		for _, in := range ctx.inputs {
			in.filled = false
		}
		tc.Scratch.Rewind(scratchMark)
		tc.Varlen.Rewind(varlenMark)
	}
	ctx.Release()
	return t.downstream.Finish(tc)
}

// reload re-reads the input after a fill and re-pushes it while not at EOF,
// keeping the heap invariant: exactly the inputs with a pre-read next key.
func (t *TakeCogroup) reload(ctx *takeCogroupContext, in *cogroupInput) error {
	if err := in.read(); err != nil {
		return err
	}
	if in.hasNext {
		heap.Push(&ctx.heap, in)
	}
	return nil
}

func (t *TakeCogroup) fail(tc *TaskContext, ctx *takeCogroupContext, err error) error {
	ctx.Abort()
	ctx.Release()
	_ = t.downstream.Finish(tc)
	return err
}
