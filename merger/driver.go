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

package merger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rulego/flatdb/codec"
	"github.com/rulego/flatdb/logger"
	"github.com/rulego/flatdb/pipe"
	"github.com/rulego/flatdb/tmpfile"
	"github.com/rulego/flatdb/types"
)

// Driver merges any number of presorted, schema-compatible inputs into
// one sorted output as a balanced binary tree of two-way merges. Memory
// stays bounded by parallelism times pipe capacity; scratch disk stays
// linear in the total record count. Intermediate levels spill to temp
// files until the remaining tree fits under the parallelism budget, at
// which point outputs switch to in-memory pipes and the final levels run
// as a streaming pipeline, the last merge inline in the caller.
type Driver struct {
	keys         types.KeySpec
	out          types.ItemWriter
	inputs       []Source
	xargs        types.ItemReader
	parallelism  int
	endgame      bool
	pipeCapacity int
	removeInputs bool
	registry     *tmpfile.Registry
	log          logger.Logger

	mu      sync.Mutex
	temps   map[string]bool
	aborted atomic.Bool
	errOnce sync.Once
	err     error
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithInputs appends presorted inputs at depth zero.
func WithInputs(srcs ...Source) DriverOption {
	return func(d *Driver) { d.inputs = append(d.inputs, srcs...) }
}

// WithFileInputs appends file-backed inputs at depth zero.
func WithFileInputs(paths ...string) DriverOption {
	return func(d *Driver) {
		for _, p := range paths {
			d.inputs = append(d.inputs, FileInput(p))
		}
	}
}

// WithXargs feeds depth zero incrementally from a stream carrying one
// filename per row; depth zero stays open until that stream ends.
func WithXargs(r types.ItemReader) DriverOption {
	return func(d *Driver) { d.xargs = r }
}

// WithParallelism bounds concurrently running two-way merges. Zero
// selects the sequential driver.
func WithParallelism(n int) DriverOption {
	return func(d *Driver) { d.parallelism = n }
}

// WithEndgame toggles the streaming endgame.
func WithEndgame(enabled bool) DriverOption {
	return func(d *Driver) { d.endgame = enabled }
}

// WithRegistry supplies the temp-file registry for spill outputs.
func WithRegistry(r *tmpfile.Registry) DriverOption {
	return func(d *Driver) { d.registry = r }
}

// WithRemoveInputs deletes each caller-supplied input file once it has
// been merged.
func WithRemoveInputs(remove bool) DriverOption {
	return func(d *Driver) { d.removeInputs = remove }
}

// WithPipeCapacity sets the capacity of endgame pipes.
func WithPipeCapacity(n int) DriverOption {
	return func(d *Driver) { d.pipeCapacity = n }
}

// WithDriverLogger overrides the logger.
func WithDriverLogger(l logger.Logger) DriverOption {
	return func(d *Driver) { d.log = l }
}

// NewDriver builds a merge driver producing into out: exactly one
// header item followed by rows and pass-through comments.
func NewDriver(keys types.KeySpec, out types.ItemWriter, opts ...DriverOption) *Driver {
	cfg := types.Default()
	d := &Driver{
		keys:         keys,
		out:          out,
		parallelism:  cfg.Parallelism,
		endgame:      cfg.Endgame,
		pipeCapacity: cfg.PipeCapacity,
		log:          logger.GetDefault(),
		temps:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = tmpfile.Default()
	}
	return d
}

// slot is one work item at a merge depth. A slot is created the moment
// its producing merge is scheduled so sibling order is fixed by
// scheduling order, not completion order; that keeps the whole tree
// stable.
type slot struct {
	ready bool
	src   Source
}

// message is one event on the driver's control queue.
type message struct {
	slot     *slot  // completed merge: slot becomes ready
	src      Source // completed output, or arriving xargs input
	addInput bool
	closeIn  bool
	err      error
}

// deferred is a merge scheduled beyond the parallelism budget, parked
// on a one-shot gate the driver raises when budget frees.
type deferred struct {
	gate chan struct{}
}

// Run executes the merge. It returns the first error any merge in the
// tree reported; on failure pending gates are drained and in-flight
// merges cancelled by closing their input sides.
func (d *Driver) Run() error {
	if d.parallelism <= 0 {
		return d.runSequential()
	}
	return d.runParallel()
}

func (d *Driver) fail(err error) {
	if err == nil {
		return
	}
	d.aborted.Store(true)
	d.errOnce.Do(func() { d.err = err })
}

// release deletes a consumed input when it is a driver-created temp or
// when the caller asked for input removal.
func (d *Driver) release(src Source) {
	if src.Path == "" {
		return
	}
	d.mu.Lock()
	temp := d.temps[src.Path]
	delete(d.temps, src.Path)
	d.mu.Unlock()
	switch {
	case temp:
		d.registry.Release(src.Path)
	case d.removeInputs:
		d.registry.Track(src.Path)
		d.registry.Release(src.Path)
	}
}

// newTemp allocates a registered spill file.
func (d *Driver) newTemp() (string, error) {
	path, err := d.registry.New("merge")
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	d.temps[path] = true
	d.mu.Unlock()
	return path, nil
}

// fileWriter lazily opens a codec writer once the merged header is
// known.
type fileWriter struct {
	path string
	f    *os.File
	w    *codec.Writer
}

func (fw *fileWriter) WriteItem(item types.Item) error {
	if fw.w == nil {
		if item.Kind != types.KindHeader {
			return fmt.Errorf("%w: merge output must start with a header", types.ErrSchema)
		}
		f, err := os.Create(fw.path)
		if err != nil {
			return fmt.Errorf("%w: create %s: %v", types.ErrResource, fw.path, err)
		}
		fw.f = f
		fw.w = codec.NewWriter(f, item.Schema)
		return nil
	}
	return fw.w.WriteItem(item)
}

func (fw *fileWriter) Close() error {
	if fw.w == nil {
		return nil
	}
	return fw.w.Close()
}

// runSequential is the fallback driver: one merge at a time, no
// endgame, selected by parallelism zero.
func (d *Driver) runSequential() error {
	level, err := d.seed()
	if err != nil {
		return err
	}
	for len(level) > 2 {
		next := make([]Source, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			path, err := d.newTemp()
			if err != nil {
				return err
			}
			fw := &fileWriter{path: path}
			if err := mergeTwo(level[i], level[i+1], d.keys, fw); err != nil {
				fw.Close()
				return err
			}
			if err := fw.Close(); err != nil {
				return err
			}
			d.release(level[i])
			d.release(level[i+1])
			next = append(next, FileInput(path))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	if err := mergeTwo(level[0], level[1], d.keys, d.out); err != nil {
		return err
	}
	d.release(level[0])
	d.release(level[1])
	return nil
}

// seed collects the depth-zero inputs, draining the xargs stream when
// configured, and enforces the two-input minimum.
func (d *Driver) seed() ([]Source, error) {
	level := append([]Source(nil), d.inputs...)
	if d.xargs != nil {
		srcs, err := drainXargs(d.xargs)
		if err != nil {
			return nil, err
		}
		level = append(level, srcs...)
	}
	if len(level) < 2 {
		return nil, fmt.Errorf("%w: merge needs at least two inputs, have %d", types.ErrConfig, len(level))
	}
	return level, nil
}

func drainXargs(r types.ItemReader) ([]Source, error) {
	var srcs []Source
	for {
		item, err := r.ReadItem()
		if err != nil {
			if filterEOF(err) {
				return srcs, nil
			}
			return nil, err
		}
		if item.Kind == types.KindRow && len(item.Row) > 0 {
			srcs = append(srcs, FileInput(item.Row[0]))
		}
	}
}

// runParallel is the work-queue-per-depth machine. One control loop
// owns all queue state; merge workers report completions on the control
// queue and never touch the queues themselves.
func (d *Driver) runParallel() error {
	var (
		queues   = make(map[int][]*slot)
		closed   = make(map[int]bool)
		maxDepth = 0
		running  = 0
		deferQ   []*deferred
		ctrl     = make(chan message, 64)
		wg       sync.WaitGroup
		added    = 0
	)
	for _, src := range d.inputs {
		queues[0] = append(queues[0], &slot{ready: true, src: src})
		added++
	}
	closed[0] = d.xargs == nil
	if closed[0] && added < 2 {
		return fmt.Errorf("%w: merge needs at least two inputs, have %d", types.ErrConfig, added)
	}
	if d.xargs != nil {
		// The feeder is deliberately not joined: on an abort its stdin
		// read cannot be interrupted, and its messages land in the
		// post-loop drain.
		go func() {
			for {
				item, err := d.xargs.ReadItem()
				if err != nil {
					if filterEOF(err) {
						ctrl <- message{closeIn: true}
					} else {
						ctrl <- message{err: err}
					}
					return
				}
				if item.Kind == types.KindRow && len(item.Row) > 0 {
					ctrl <- message{addInput: true, src: FileInput(item.Row[0])}
				}
			}
		}()
	}

	// startMerge schedules one two-way merge into a temp file. The
	// output slot already sits in the next depth's queue. Beyond the
	// parallelism budget the worker parks on a gate.
	startMerge := func(left, right Source, outSlot *slot) error {
		path, err := d.newTemp()
		if err != nil {
			return err
		}
		var gate chan struct{}
		if running < d.parallelism {
			running++
		} else {
			gate = make(chan struct{})
			deferQ = append(deferQ, &deferred{gate: gate})
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate != nil {
				<-gate
			}
			if d.aborted.Load() {
				ctrl <- message{slot: outSlot, err: nil}
				return
			}
			fw := &fileWriter{path: path}
			err := mergeTwo(left, right, d.keys, fw)
			if cerr := fw.Close(); err == nil {
				err = cerr
			}
			if err == nil {
				d.release(left)
				d.release(right)
			}
			ctrl <- message{slot: outSlot, src: FileInput(path), err: err}
		}()
		return nil
	}

	totalSlots := func() int {
		n := 0
		for _, q := range queues {
			n += len(q)
		}
		return n
	}
	// Remaining slots in global sibling order: a deeper slot was built
	// from the front of the level below, so it covers earlier inputs
	// than anything still queued there.
	allReady := func() []Source {
		var srcs []Source
		for depth := maxDepth; depth >= 0; depth-- {
			for _, s := range queues[depth] {
				srcs = append(srcs, s.src)
			}
		}
		return srcs
	}

	var finalErr error
	done := false
	for !done {
		// Closure and runt promotion cascade upward.
		for depth := 0; depth <= maxDepth; depth++ {
			if closed[depth] && len(queues[depth]) == 1 && queues[depth][0].ready {
				if depth == maxDepth && totalSlots() == 1 {
					break // sole remaining item is the result, not a runt
				}
				queues[depth+1] = append(queues[depth+1], queues[depth][0])
				queues[depth] = nil
				if depth+1 > maxDepth {
					maxDepth = depth + 1
				}
			}
			if closed[depth] && len(queues[depth]) == 0 && !closed[depth+1] {
				closed[depth+1] = true
			}
		}

		total := totalSlots()
		endgameEligible := closed[0] && !d.aborted.Load() &&
			total >= 2 && (total-1 <= d.parallelism && d.endgame || total == 2)

		if endgameEligible && running == 0 && len(deferQ) == 0 {
			ready := true
			for _, q := range queues {
				for _, s := range q {
					ready = ready && s.ready
				}
			}
			if ready {
				finalErr = d.endgameRun(allReady(), &wg)
				done = true
				break
			}
		}

		// Outside the endgame window, pair the two front-most ready
		// items of each depth into temp-file merges. While depth zero is
		// still open, at least two slots are kept so the last merge is
		// left for the inline endgame.
		if !endgameEligible && !d.aborted.Load() {
			for depth := 0; depth <= maxDepth; depth++ {
				for (closed[0] || totalSlots() > 2) &&
					len(queues[depth]) >= 2 && queues[depth][0].ready && queues[depth][1].ready {
					left, right := queues[depth][0].src, queues[depth][1].src
					queues[depth] = queues[depth][2:]
					outSlot := &slot{}
					queues[depth+1] = append(queues[depth+1], outSlot)
					if depth+1 > maxDepth {
						maxDepth = depth + 1
					}
					if err := startMerge(left, right, outSlot); err != nil {
						d.fail(err)
					}
				}
			}
		}

		if d.aborted.Load() && running == 0 && len(deferQ) == 0 {
			break
		}

		// Nothing to do until a worker or the xargs feeder reports.
		msg := <-ctrl
		switch {
		case msg.addInput:
			queues[0] = append(queues[0], &slot{ready: true, src: msg.src})
			added++
		case msg.closeIn:
			closed[0] = true
			if added < 2 {
				d.fail(fmt.Errorf("%w: merge needs at least two inputs, have %d", types.ErrConfig, added))
			}
		case msg.slot != nil:
			running--
			msg.slot.ready = true
			msg.slot.src = msg.src
			if msg.err != nil {
				d.fail(msg.err)
			}
			// Budget freed: raise the oldest pending gate.
			if len(deferQ) > 0 && running < d.parallelism {
				running++
				close(deferQ[0].gate)
				deferQ = deferQ[1:]
			}
		case msg.err != nil:
			d.fail(msg.err)
		}
	}

	if d.aborted.Load() {
		// Drain remaining gates so parked workers can exit.
		for _, g := range deferQ {
			close(g.gate)
		}
		for running > 0 {
			msg := <-ctrl
			if msg.slot != nil {
				running--
			}
		}
	}
	// Keep the control queue flowing for any late xargs sends while the
	// workers finish.
	stopDrain := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctrl:
			case <-stopDrain:
				return
			}
		}
	}()
	wg.Wait()
	close(stopDrain)
	d.fail(finalErr)
	if d.aborted.Load() {
		return d.err
	}
	return nil
}

// endgameRun executes the whole remaining merge tree as a streaming
// pipeline: every level but the last produces into an in-memory pipe,
// and the final merge runs inline in the caller, producing the system
// output.
func (d *Driver) endgameRun(sources []Source, wg *sync.WaitGroup) error {
	d.log.Debug("merge endgame over %d sources", len(sources))
	level := sources
	for len(level) > 2 {
		next := make([]Source, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			p := pipe.New(d.pipeCapacity)
			left, right := level[i], level[i+1]
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := mergeTwo(left, right, d.keys, p)
				if err != nil {
					d.fail(err)
				} else {
					d.release(left)
					d.release(right)
				}
				p.Close()
			}()
			next = append(next, ReaderInput(p))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	if err := mergeTwo(level[0], level[1], d.keys, d.out); err != nil {
		return err
	}
	d.release(level[0])
	d.release(level[1])
	return nil
}

// filterEOF reports a plain end-of-stream.
func filterEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
