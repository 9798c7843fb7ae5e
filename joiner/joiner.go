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

// Package joiner implements the sort-merge join of two presorted
// streams on a common key tuple, behind dbjoin. Inner and full-outer
// joins are supported; callers that cannot assert pre-sortedness get a
// transparent sort on each side.
package joiner

import (
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/merger"
	"github.com/rulego/flatdb/pipe"
	"github.com/rulego/flatdb/sorter"
	"github.com/rulego/flatdb/types"
)

// Type selects the join semantics.
type Type string

const (
	// Inner keeps only rows with a match on the other side.
	Inner Type = "inner"
	// Outer keeps every row, substituting the empty token for the
	// missing side's non-key columns.
	Outer Type = "outer"
)

// Join is the merge-join filter.
type Join struct {
	filter.Base

	keys     types.KeySpec
	joinType Type
	left     filter.Source
	right    filter.Source
	sorted   bool
	empty    string
	warnRows int

	lc, rc    *merger.Cursor
	sorters   errgroup.Group
	outSchema *types.Schema
	closers   []io.Closer

	headerOut     bool
	earlyComments []types.Item

	// column assembly, resolved at setup
	leftNonKey  []int
	rightNonKey []int
}

// Option configures a Join filter.
type Option func(*Join)

// WithKeys sets the join key tuple.
func WithKeys(keys types.KeySpec) Option {
	return func(j *Join) { j.keys = keys }
}

// WithType selects inner or outer semantics. "left" and "right" are
// not implemented and rejected at setup.
func WithType(t Type) Option {
	return func(j *Join) { j.joinType = t }
}

// WithLeft selects the left input.
func WithLeft(src filter.Source) Option {
	return func(j *Join) { j.left = src }
}

// WithRight selects the right input.
func WithRight(src filter.Source) Option {
	return func(j *Join) { j.right = src }
}

// WithOutput selects the output endpoint.
func WithOutput(sink filter.Sink) Option {
	return func(j *Join) { j.Out = sink }
}

// WithPresorted asserts both inputs are already sorted by the key
// spec; order is still verified as the join consumes them.
func WithPresorted() Option {
	return func(j *Join) { j.sorted = true }
}

// WithEmpty sets the token substituted for the missing side in outer
// joins.
func WithEmpty(token string) Option {
	return func(j *Join) { j.empty = token }
}

// WithWarnRows overrides the right-run size beyond which a warning is
// logged.
func WithWarnRows(n int) Option {
	return func(j *Join) {
		if n > 0 {
			j.warnRows = n
		}
	}
}

// WithProvenance toggles the trailing provenance comment.
func WithProvenance(enabled bool) Option {
	return func(j *Join) { j.NoProvenance = !enabled }
}

// WithArgs records the invocation for the provenance comment.
func WithArgs(args ...string) Option {
	return func(j *Join) { j.Args = args }
}

// New constructs a join filter.
func New(opts ...Option) *Join {
	j := &Join{joinType: Inner}
	j.Init("dbjoin")
	j.empty = types.DefaultEmpty
	j.warnRows = j.Cfg.JoinWarnRows
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Setup validates the configuration, starts the transparent sorts when
// pre-sortedness was not asserted, reads both headers and commits the
// combined output schema: key columns first in spec order, then the
// left side's non-key columns, then the right side's non-key,
// non-duplicate columns.
func (j *Join) Setup() error {
	switch j.joinType {
	case Inner, Outer:
	case "left", "right":
		return fmt.Errorf("%w: join type %q is not implemented; use inner or outer", types.ErrConfig, j.joinType)
	default:
		return fmt.Errorf("%w: unknown join type %q", types.ErrConfig, j.joinType)
	}
	if len(j.keys) == 0 {
		return fmt.Errorf("%w: join requires a key specification", types.ErrConfig)
	}
	if j.left.IsZero() || j.right.IsZero() {
		return fmt.Errorf("%w: join requires two inputs", types.ErrConfig)
	}

	leftIn, err := j.prepare(j.left)
	if err != nil {
		return err
	}
	rightIn, err := j.prepare(j.right)
	if err != nil {
		return err
	}

	// The output schema is only known after both headers are read, so
	// comments met while positioning the cursors buffer until the
	// header is out.
	j.SetOutput(filter.LazySink(j.Out))

	j.lc, err = merger.NewCursor("left input", leftIn, j.keys, commentSink{j})
	if err != nil {
		return err
	}
	j.rc, err = merger.NewCursor("right input", rightIn, j.keys, commentSink{j})
	if err != nil {
		return err
	}

	if err := j.buildSchema(); err != nil {
		return err
	}
	if err := j.Output().WriteItem(types.HeaderItem(j.outSchema)); err != nil {
		return err
	}
	j.headerOut = true
	for _, c := range j.earlyComments {
		if err := j.Output().WriteItem(c); err != nil {
			return err
		}
	}
	j.earlyComments = nil
	// Position both cursors on their first rows; comments met from here
	// on write straight through.
	if err := j.lc.Advance(); err != nil {
		return err
	}
	return j.rc.Advance()
}

// prepare wraps one side, inserting a pipe-connected sort when the
// caller did not assert pre-sortedness.
func (j *Join) prepare(src filter.Source) (merger.Source, error) {
	if j.sorted {
		rd, closer, err := src.Open()
		if err != nil {
			return merger.Source{}, err
		}
		if closer != nil {
			j.closers = append(j.closers, closer)
		}
		return merger.ReaderInput(rd), nil
	}
	p := pipe.New(j.Cfg.PipeCapacity)
	srt := sorter.New(
		sorter.WithKeys(j.keys),
		sorter.WithInput(src),
		sorter.WithOutput(filter.PipeSink(p)),
		sorter.WithProvenance(false),
	)
	j.sorters.Go(func() error {
		err := filter.Invoke(srt)
		p.Close()
		return err
	})
	return merger.ReaderInput(p), nil
}

// buildSchema computes the combined output schema and the non-key
// column projections of both sides.
func (j *Join) buildSchema() error {
	ls, rs := j.lc.Schema(), j.rc.Schema()
	keyCols := make(map[string]bool, len(j.keys))
	cols := append([]string(nil), j.keys.Columns()...)
	for _, c := range j.keys.Columns() {
		keyCols[c] = true
	}
	leftNames := make(map[string]bool)
	for i, c := range ls.Columns {
		if keyCols[c] {
			continue
		}
		leftNames[c] = true
		cols = append(cols, c)
		j.leftNonKey = append(j.leftNonKey, i)
	}
	for i, c := range rs.Columns {
		if keyCols[c] {
			continue
		}
		if leftNames[c] {
			return fmt.Errorf("%w: non-key column %q appears on both sides", types.ErrSchema, c)
		}
		cols = append(cols, c)
		j.rightNonKey = append(j.rightNonKey, i)
	}
	schema, err := types.NewSchema(ls.Sep, cols...)
	if err != nil {
		return err
	}
	schema.Empty = j.empty
	j.outSchema = schema
	return nil
}

// combined assembles one output row. Either side may be nil in outer
// joins; its columns render as the empty token.
func (j *Join) combined(left, right types.Row) types.Row {
	out := make(types.Row, 0, len(j.keys)+len(j.leftNonKey)+len(j.rightNonKey))
	switch {
	case left != nil:
		out = append(out, j.lc.Key().Project(left)...)
	default:
		out = append(out, j.rc.Key().Project(right)...)
	}
	for _, idx := range j.leftNonKey {
		if left != nil {
			out = append(out, left[idx])
		} else {
			out = append(out, j.empty)
		}
	}
	for _, idx := range j.rightNonKey {
		if right != nil {
			out = append(out, right[idx])
		} else {
			out = append(out, j.empty)
		}
	}
	return out
}

// Run walks both sides in key order. Equal keys buffer the entire
// right-side run, then every matching left row emits the product with
// that run; order of matching output follows the left side.
func (j *Join) Run() error {
	lc, rc := j.lc, j.rc
	for !lc.Done() && !rc.Done() {
		cmp := lc.Key().CompareWith(rc.Key(), lc.Row(), rc.Row())
		switch {
		case cmp < 0:
			if j.joinType == Outer {
				if err := j.WriteRow(j.combined(lc.Row(), nil)); err != nil {
					return err
				}
			}
			if err := lc.Advance(); err != nil {
				return err
			}
		case cmp > 0:
			if j.joinType == Outer {
				if err := j.WriteRow(j.combined(nil, rc.Row())); err != nil {
					return err
				}
			}
			if err := rc.Advance(); err != nil {
				return err
			}
		default:
			if err := j.emitRun(); err != nil {
				return err
			}
		}
	}
	// One side exhausted: the other drains, emitted only in outer mode.
	for _, side := range []struct {
		c    *merger.Cursor
		left bool
	}{{lc, true}, {rc, false}} {
		for !side.c.Done() {
			if j.joinType == Outer {
				var row types.Row
				if side.left {
					row = j.combined(side.c.Row(), nil)
				} else {
					row = j.combined(nil, side.c.Row())
				}
				if err := j.WriteRow(row); err != nil {
					return err
				}
			}
			if err := side.c.Advance(); err != nil {
				return err
			}
		}
	}
	j.MarkConsumed()
	return nil
}

// emitRun handles one equal-key encounter: buffer the right run, then
// emit the product against every matching left row.
func (j *Join) emitRun() error {
	lc, rc := j.lc, j.rc
	anchor := rc.Row()
	run := []types.Row{anchor}
	for {
		if err := rc.Advance(); err != nil {
			return err
		}
		if rc.Done() || !rc.Key().Equal(anchor, rc.Row()) {
			break
		}
		run = append(run, rc.Row())
		if len(run) == j.warnRows {
			j.Log.Warn("dbjoin buffering a run of %d+ equal-key rows on the right side; memory is unbounded here", len(run))
		}
	}
	for !lc.Done() && lc.Key().CompareWith(rc.Key(), lc.Row(), anchor) == 0 {
		for _, r := range run {
			if err := j.WriteRow(j.combined(lc.Row(), r)); err != nil {
				return err
			}
		}
		if err := lc.Advance(); err != nil {
			return err
		}
	}
	return nil
}

// Finish joins the helper sorters, closes the cursors and the output.
func (j *Join) Finish() error {
	sortErr := j.sorters.Wait()
	if j.lc != nil {
		j.lc.Close()
	}
	if j.rc != nil {
		j.rc.Close()
	}
	err := j.Base.Finish()
	for _, c := range j.closers {
		c.Close()
	}
	if sortErr != nil {
		return sortErr
	}
	return err
}

// commentSink routes cursor comment passthrough: buffered until the
// output header is committed, written through afterwards.
type commentSink struct {
	j *Join
}

func (c commentSink) WriteItem(item types.Item) error {
	if !c.j.headerOut {
		c.j.earlyComments = append(c.j.earlyComments, item)
		return nil
	}
	return c.j.Output().WriteItem(item)
}
