package exchange

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/mstgnz/sqlexec/record"
)

// Kind selects the data transfer of an exchange step.
type Kind int

const (
	// KindShuffle repartitions by key hash and regroups on the read side.
	KindShuffle Kind = iota
	// KindForward passes records through partition-to-partition.
	KindForward
	// KindBroadcast delivers every record to every reader.
	KindBroadcast
)

// Shuffle is the exchange connecting two process steps through partitioned,
// key-grouped stores. Writers hash records across the output partitions;
// each output partition is later merged across writers in key order.
type Shuffle struct {
	meta       Meta
	partitions int

	mu     sync.Mutex
	stores [][]*InputPartition // per output partition, one store per writer
}

// NewShuffle builds a shuffle with the given output partition count.
func NewShuffle(meta Meta, partitions int) *Shuffle {
	if partitions <= 0 {
		partitions = 1
	}
	return &Shuffle{
		meta:       meta,
		partitions: partitions,
		stores:     make([][]*InputPartition, partitions),
	}
}

// Meta returns the exchange metadata.
func (s *Shuffle) Meta() Meta { return s.meta }

// Partitions returns the output partition count.
func (s *Shuffle) Partitions() int { return s.partitions }

// NewWriter creates a writer owning one input partition per output
// partition. Each producer task takes its own writer.
func (s *Shuffle) NewWriter() *ShuffleWriter {
	w := &ShuffleWriter{exchange: s, parts: make([]*InputPartition, s.partitions)}
	for i := range w.parts {
		w.parts[i] = NewInputPartition(s.meta)
	}
	return w
}

// Reader merges every flushed store of one output partition.
func (s *Shuffle) Reader(partition int) (*GroupReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if partition < 0 || partition >= s.partitions {
		return nil, errors.Errorf("partition %d out of range", partition)
	}
	return NewGroupReader(s.meta, s.stores[partition]), nil
}

func (s *Shuffle) attach(partition int, store *InputPartition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[partition] = append(s.stores[partition], store)
}

// ShuffleWriter is one producer task's write handle.
type ShuffleWriter struct {
	exchange *Shuffle
	parts    []*InputPartition
	flushed  bool
}

// Write hashes the record's key columns into an output partition.
func (w *ShuffleWriter) Write(rec *record.Record) error {
	if w.flushed {
		return errors.New("exchange writer is already flushed")
	}
	p := w.exchange.meta.hashKey(rec, w.exchange.partitions)
	return w.parts[p].Write(rec)
}

// Flush freezes every owned store and attaches them to the exchange for the
// reading side.
func (w *ShuffleWriter) Flush() error {
	if w.flushed {
		return nil
	}
	w.flushed = true
	for i, p := range w.parts {
		p.Flush()
		w.exchange.attach(i, p)
	}
	return nil
}

// Release implements the writer protocol.
func (w *ShuffleWriter) Release() error {
	return w.Flush()
}

// Forward is the pass-through exchange: one FIFO per partition, no
// regrouping. Writes inside one task keep call order; order across tasks is
// unspecified.
type Forward struct {
	meta       Meta
	partitions int

	mu     sync.Mutex
	queues [][]*record.Record
}

// NewForward builds a forward exchange.
func NewForward(meta Meta, partitions int) *Forward {
	if partitions <= 0 {
		partitions = 1
	}
	return &Forward{meta: meta, partitions: partitions, queues: make([][]*record.Record, partitions)}
}

// Meta returns the exchange metadata.
func (f *Forward) Meta() Meta { return f.meta }

// NewWriter creates a write handle targeting one partition.
func (f *Forward) NewWriter(partition int) *ForwardWriter {
	return &ForwardWriter{exchange: f, partition: partition % f.partitions}
}

// ForwardWriter appends records to its partition queue.
type ForwardWriter struct {
	exchange  *Forward
	partition int
}

// Write implements the writer protocol.
func (w *ForwardWriter) Write(rec *record.Record) error {
	w.exchange.mu.Lock()
	defer w.exchange.mu.Unlock()
	w.exchange.queues[w.partition] = append(w.exchange.queues[w.partition], rec.Clone())
	return nil
}

// Flush implements the writer protocol.
func (w *ForwardWriter) Flush() error { return nil }

// Release implements the writer protocol.
func (w *ForwardWriter) Release() error { return nil }

// Reader drains one partition queue in arrival order.
func (f *Forward) Reader(partition int) *ForwardReader {
	return &ForwardReader{exchange: f, partition: partition % f.partitions}
}

// ForwardReader reads one partition of a forward exchange.
type ForwardReader struct {
	exchange  *Forward
	partition int
	pos       int
	released  bool
}

// NextRecord implements the reader protocol.
func (r *ForwardReader) NextRecord() (*record.Record, bool, error) {
	if r.released {
		return nil, false, nil
	}
	r.exchange.mu.Lock()
	defer r.exchange.mu.Unlock()
	q := r.exchange.queues[r.partition]
	if r.pos >= len(q) {
		return nil, false, nil
	}
	out := q[r.pos]
	r.pos++
	return out, true, nil
}

// Release implements the reader protocol.
func (r *ForwardReader) Release() { r.released = true }

// Broadcast delivers every written record to every reader.
type Broadcast struct {
	meta Meta

	mu      sync.Mutex
	records []*record.Record
}

// NewBroadcast builds a broadcast exchange.
func NewBroadcast(meta Meta) *Broadcast {
	return &Broadcast{meta: meta}
}

// Meta returns the exchange metadata.
func (b *Broadcast) Meta() Meta { return b.meta }

// NewWriter creates a write handle.
func (b *Broadcast) NewWriter() *BroadcastWriter {
	return &BroadcastWriter{exchange: b}
}

// BroadcastWriter appends to the shared store.
type BroadcastWriter struct {
	exchange *Broadcast
}

// Write implements the writer protocol.
func (w *BroadcastWriter) Write(rec *record.Record) error {
	w.exchange.mu.Lock()
	defer w.exchange.mu.Unlock()
	w.exchange.records = append(w.exchange.records, rec.Clone())
	return nil
}

// Flush implements the writer protocol.
func (w *BroadcastWriter) Flush() error { return nil }

// Release implements the writer protocol.
func (w *BroadcastWriter) Release() error { return nil }

// Reader replays the whole store for one consumer.
func (b *Broadcast) Reader() *BroadcastReader {
	return &BroadcastReader{exchange: b}
}

// BroadcastReader reads the full broadcast store.
type BroadcastReader struct {
	exchange *Broadcast
	pos      int
	released bool
}

// NextRecord implements the reader protocol.
func (r *BroadcastReader) NextRecord() (*record.Record, bool, error) {
	if r.released {
		return nil, false, nil
	}
	r.exchange.mu.Lock()
	defer r.exchange.mu.Unlock()
	if r.pos >= len(r.exchange.records) {
		return nil, false, nil
	}
	out := r.exchange.records[r.pos]
	r.pos++
	return out, true, nil
}

// Release implements the reader protocol.
func (r *BroadcastReader) Release() { r.released = true }
