package pipeline

import (
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-scrape-pages/models"
)

// orderedSink forwards records to a Sink in input order, buffering records
// that complete ahead of their predecessors.
type orderedSink struct {
	sink Sink

	mu      sync.Mutex
	pending []*models.ResultRecord
	next    int
	err     error
}

func newOrderedSink(sink Sink, n int) *orderedSink {
	return &orderedSink{
		sink:    sink,
		pending: make([]*models.ResultRecord, n),
	}
}

func (o *orderedSink) put(i int, rec *models.ResultRecord) {
	if o.sink == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending[i] = rec
	start := o.next
	for o.next < len(o.pending) && o.pending[o.next] != nil {
		o.next++
	}
	o.flush(o.pending[start:o.next])
}

// drain writes records stranded behind a gap left by cancellation.
func (o *orderedSink) drain() {
	if o.sink == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	var rest []*models.ResultRecord
	for _, rec := range o.pending[o.next:] {
		if rec != nil {
			rest = append(rest, rec)
		}
	}
	o.next = len(o.pending)
	o.flush(rest)
}

func (o *orderedSink) flush(batch []*models.ResultRecord) {
	if len(batch) == 0 || o.err != nil {
		return
	}
	if err := o.sink.Write(batch); err != nil {
		o.err = err
		slog.Error("record sink failed, streaming stopped", slog.Any("error", err))
	}
}

// Err returns the first sink failure.
func (o *orderedSink) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
