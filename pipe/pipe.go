/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pipe implements the bounded in-memory FIFO connecting filters
// within one process. Enqueue blocks while the pipe is full and dequeue
// blocks while it is empty; these are the only two suspension points in
// the whole pipeline model, so a slow consumer bounds the buffered
// footprint of every upstream stage.
package pipe

import (
	"fmt"
	"io"
	"sync"

	"github.com/rulego/flatdb/types"
)

// Pipe is a fixed-capacity ring buffer of stream items shared by one or
// more producers and consumers. Ordering is strict FIFO. Rows are
// copied on enqueue so a producer's later mutation of a row is never
// observed by the consumer.
type Pipe struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	buf   []types.Item
	head  int
	tail  int
	count int

	writeClosed bool
	readClosed  bool
}

// New creates a pipe with the given item capacity. A non-positive
// capacity selects the process default.
func New(capacity int) *Pipe {
	if capacity <= 0 {
		capacity = types.Default().PipeCapacity
	}
	p := &Pipe{buf: make([]types.Item, capacity)}
	p.notFull = sync.NewCond(&p.mu)
	p.notEmpty = sync.NewCond(&p.mu)
	return p
}

// Enqueue appends item, blocking while the pipe is at capacity. It
// returns ErrClosedPipe once either side has been closed.
func (p *Pipe) Enqueue(item types.Item) error {
	if item.Kind == types.KindRow {
		item.Row = item.Row.Clone()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.writeClosed || p.readClosed {
			return fmt.Errorf("%w: enqueue on closed pipe", types.ErrClosedPipe)
		}
		if p.count < len(p.buf) {
			break
		}
		p.notFull.Wait()
	}
	p.buf[p.tail] = item
	p.tail = (p.tail + 1) % len(p.buf)
	p.count++
	p.notEmpty.Signal()
	return nil
}

// Dequeue removes the oldest item, blocking while the pipe is empty. It
// returns io.EOF once the write side is closed and the buffer drained.
func (p *Pipe) Dequeue() (types.Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.count == 0 {
		if p.writeClosed || p.readClosed {
			return types.Item{}, io.EOF
		}
		p.notEmpty.Wait()
	}
	return p.pop(), nil
}

// TryDequeue removes the oldest item without blocking. ok is false when
// the pipe is momentarily empty; io.EOF reports a closed, drained pipe.
func (p *Pipe) TryDequeue() (item types.Item, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		if p.writeClosed || p.readClosed {
			return types.Item{}, false, io.EOF
		}
		return types.Item{}, false, nil
	}
	return p.pop(), true, nil
}

func (p *Pipe) pop() types.Item {
	item := p.buf[p.head]
	p.buf[p.head] = types.Item{}
	p.head = (p.head + 1) % len(p.buf)
	p.count--
	p.notFull.Signal()
	return item
}

// Pending returns the number of buffered items.
func (p *Pipe) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Close shuts the write side. Buffered items remain readable; after the
// drain, Dequeue returns io.EOF. Closing twice is harmless.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeClosed = true
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
	return nil
}

// CloseRead abandons the read side: buffered items are discarded and
// any blocked or future Enqueue fails with ErrClosedPipe, which is how
// a failing consumer propagates cancellation upstream.
func (p *Pipe) CloseRead() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readClosed = true
	p.head, p.tail, p.count = 0, 0, 0
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
}

// Closed reports whether the write side has been closed.
func (p *Pipe) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeClosed
}

// ReadItem implements types.ItemReader.
func (p *Pipe) ReadItem() (types.Item, error) { return p.Dequeue() }

// WriteItem implements types.ItemWriter.
func (p *Pipe) WriteItem(item types.Item) error { return p.Enqueue(item) }
