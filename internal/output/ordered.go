// Package output writes task results to CSV and JSON Lines files from a
// single writer goroutine, in the order items were dispatched.
package output

import (
	"sort"
	"sync"
)

type entry[T any] struct {
	seq  int
	val  T
	skip bool
}

// ordered owns the writer goroutine. Values are submitted with the sequence
// number of their item; emit is called in sequence order. A sequence that is
// never submitted holds back everything after it until close.
type ordered[T any] struct {
	in   chan entry[T]
	done chan struct{}
	emit func(T) error

	closeOnce sync.Once
	err       error
	emitted   int
}

func newOrdered[T any](buffer int, emit func(T) error) *ordered[T] {
	o := &ordered[T]{
		in:   make(chan entry[T], buffer),
		done: make(chan struct{}),
		emit: emit,
	}
	go o.run()
	return o
}

func (o *ordered[T]) submit(seq int, val T) {
	o.in <- entry[T]{seq: seq, val: val}
}

func (o *ordered[T]) skip(seq int) {
	o.in <- entry[T]{seq: seq, skip: true}
}

// close stops the goroutine after every submitted value was handled and
// returns the first emit error.
func (o *ordered[T]) close() error {
	o.closeOnce.Do(func() {
		close(o.in)
	})
	<-o.done
	return o.err
}

func (o *ordered[T]) run() {
	defer close(o.done)

	pending := make(map[int]entry[T])
	next := 0

	for e := range o.in {
		if e.seq < next {
			continue
		}
		pending[e.seq] = e
		for {
			p, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			o.write(p)
			next++
		}
	}

	// Gaps left by sequences that never arrived.
	seqs := make([]int, 0, len(pending))
	for seq := range pending {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	for _, seq := range seqs {
		o.write(pending[seq])
	}
}

func (o *ordered[T]) write(e entry[T]) {
	if e.skip || o.err != nil {
		return
	}
	if err := o.emit(e.val); err != nil {
		o.err = err
		return
	}
	o.emitted++
}
