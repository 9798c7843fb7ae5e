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

// Package groupby implements the map/reduce driver behind dbmapreduce:
// it segments a keyed stream into maximal contiguous equal-key groups
// and routes each group through a fresh reducer instance, re-injecting
// the key into reducer output that lacks it.
package groupby

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/pipe"
	"github.com/rulego/flatdb/sorter"
	"github.com/rulego/flatdb/types"
)

// GroupContext is what a reducer factory receives for one group. The
// factory is pure configuration: it builds a fresh filter reading the
// group's rows from In and writing its result to Out.
type GroupContext struct {
	// Key is the group's key value; meaningless when Null is set.
	Key string
	// Null marks the single invocation made for an empty input, so the
	// reducer can still emit a header.
	Null bool
	In   filter.Source
	Out  filter.Sink
}

// Factory builds one reducer instance per group.
type Factory func(ctx GroupContext) filter.Filter

// GroupBy is the group-by driver filter.
type GroupBy struct {
	filter.Base

	keyColumn  string
	factory    Factory
	groupAware bool
	passKey    bool
	presorted  bool
	skipVerify bool

	keyIdx       int
	outSchema    *types.Schema
	injectKey    bool
	schemaSet    bool
	reducerNames []string

	sorters       errgroup.Group
	headerOut     bool
	earlyComments []types.Item
}

// Option configures a GroupBy filter.
type Option func(*GroupBy)

// WithKey names the group-by key column.
func WithKey(column string) Option {
	return func(g *GroupBy) { g.keyColumn = column }
}

// WithFactory installs the per-group reducer factory.
func WithFactory(f Factory) Option {
	return func(g *GroupBy) { g.factory = f }
}

// WithGroupAware marks the reducer as group-aware: it receives the
// whole stream once and observes key transitions itself.
func WithGroupAware() Option {
	return func(g *GroupBy) { g.groupAware = true }
}

// WithPassKey sets the key of the null invocation made for an empty
// input. Reducer factories receive the key of every real group whether
// or not it is set; the null invocation's key is empty either way.
func WithPassKey() Option {
	return func(g *GroupBy) { g.passKey = true }
}

// WithPresorted asserts the input is already grouped by the key. Given
// once, contiguity is still verified; verify=false skips the check.
func WithPresorted(verify bool) Option {
	return func(g *GroupBy) {
		g.presorted = true
		g.skipVerify = !verify
	}
}

// WithInput selects the input endpoint.
func WithInput(src filter.Source) Option {
	return func(g *GroupBy) { g.In = src }
}

// WithOutput selects the output endpoint.
func WithOutput(sink filter.Sink) Option {
	return func(g *GroupBy) { g.Out = sink }
}

// WithProvenance toggles the trailing provenance comment.
func WithProvenance(enabled bool) Option {
	return func(g *GroupBy) { g.NoProvenance = !enabled }
}

// WithArgs records the invocation for the provenance comment.
func WithArgs(args ...string) Option {
	return func(g *GroupBy) { g.Args = args }
}

// New constructs a group-by filter.
func New(opts ...Option) *GroupBy {
	g := &GroupBy{}
	g.Init("dbmapreduce")
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Setup validates the configuration, inserts the transparent key sort
// when the input is not declared pre-sorted, and resolves the key
// column. The output schema is committed later, from the first
// reducer's header.
func (g *GroupBy) Setup() error {
	if g.keyColumn == "" {
		return fmt.Errorf("%w: group-by requires a key column", types.ErrConfig)
	}
	if g.factory == nil {
		return fmt.Errorf("%w: group-by requires a reducer", types.ErrConfig)
	}
	if !g.presorted {
		p := pipe.New(g.Cfg.PipeCapacity)
		srt := sorter.New(
			sorter.WithKeys(types.KeySpec{{Column: g.keyColumn}}),
			sorter.WithInput(g.In),
			sorter.WithOutput(filter.PipeSink(p)),
			sorter.WithProvenance(false),
		)
		g.sorters.Go(func() error {
			err := filter.Invoke(srt)
			p.Close()
			return err
		})
		g.In = filter.PipeSource(p)
	}
	schema, err := g.OpenInput()
	if err != nil {
		return err
	}
	g.keyIdx, err = schema.ColumnIndex(g.keyColumn)
	if err != nil {
		return err
	}
	g.SetOutput(filter.LazySink(g.Out))
	return nil
}

// Run segments the stream and drives the reducers.
func (g *GroupBy) Run() error {
	if g.groupAware {
		return g.runAware()
	}
	return g.runIgnorant()
}

// runAware hands the whole stream to a single group-aware reducer.
func (g *GroupBy) runAware() error {
	in := pipe.New(g.Cfg.PipeCapacity)
	out := pipe.New(g.Cfg.PipeCapacity)
	red := g.factory(GroupContext{In: filter.PipeSource(in), Out: filter.PipeSink(out)})
	if red == nil {
		return fmt.Errorf("%w: reducer factory returned nothing", types.ErrConfig)
	}

	var workers errgroup.Group
	workers.Go(func() error {
		err := filter.Invoke(red)
		out.Close()
		return err
	})
	workers.Go(func() error {
		return g.collect(out, "", true)
	})

	feedErr := func() error {
		if err := in.Enqueue(types.HeaderItem(g.InputSchema())); err != nil {
			return err
		}
		for {
			item, err := g.NextItem()
			if err != nil {
				if filter.IsEOF(err) {
					return nil
				}
				return err
			}
			if err := in.Enqueue(item); err != nil {
				return err
			}
		}
	}()
	in.Close()
	if err := workers.Wait(); err != nil {
		return err
	}
	return feedErr
}

// runIgnorant runs a fresh reducer per group. Groups execute one at a
// time: the main worker feeds the group's rows into the reducer's
// input pipe while the reducer worker runs it and the post-processing
// worker collects its output, attaching the key when the reducer's
// schema lacks it.
func (g *GroupBy) runIgnorant() error {
	var (
		cur     *groupRun
		curKey  string
		started bool
		seen    = map[string]bool{}
	)
	finish := func() error {
		if cur == nil {
			return nil
		}
		err := cur.finish()
		cur = nil
		if err == nil {
			err = g.flushComments()
		}
		return err
	}
	for {
		item, err := g.NextItem()
		if err != nil {
			if filter.IsEOF(err) {
				break
			}
			finish()
			return err
		}
		switch item.Kind {
		case types.KindComment:
			// The collector owns the output while a group is active, so
			// comments buffer until the group boundary.
			if cur == nil && g.headerOut {
				if err := g.WriteItem(item); err != nil {
					return err
				}
			} else {
				g.earlyComments = append(g.earlyComments, item)
			}
		case types.KindRow:
			key := item.Row[g.keyIdx]
			if !started || key != curKey {
				if g.presorted && !g.skipVerify && seen[key] {
					finish()
					return fmt.Errorf("%w: input declared grouped by %q but group %q is not contiguous",
						types.ErrOrdering, g.keyColumn, key)
				}
				seen[key] = true
				if err := finish(); err != nil {
					return err
				}
				cur, err = g.startGroup(key, false)
				if err != nil {
					return err
				}
				curKey, started = key, true
			}
			if err := cur.in.Enqueue(item); err != nil {
				// A reducer that abandoned its input closed the pipe;
				// its own error says why.
				if ferr := finish(); ferr != nil {
					return ferr
				}
				return err
			}
		}
	}
	if !started {
		// Empty input: one invocation with a null key so the reducer
		// still emits its header.
		var err error
		cur, err = g.startGroup("", true)
		if err != nil {
			return err
		}
	}
	return finish()
}

// groupRun is one reducer invocation in flight.
type groupRun struct {
	in      *pipe.Pipe
	workers errgroup.Group
}

func (r *groupRun) finish() error {
	r.in.Close()
	return r.workers.Wait()
}

// startGroup spins up the reducer and collector workers for one group
// and returns the feeding handle.
func (g *GroupBy) startGroup(key string, null bool) (*groupRun, error) {
	in := pipe.New(g.Cfg.PipeCapacity)
	out := pipe.New(g.Cfg.PipeCapacity)
	ctx := GroupContext{In: filter.PipeSource(in), Out: filter.PipeSink(out), Null: null}
	if g.passKey || !null {
		ctx.Key = key
	}
	red := g.factory(ctx)
	if red == nil {
		return nil, fmt.Errorf("%w: reducer factory returned nothing", types.ErrConfig)
	}
	run := &groupRun{in: in}
	run.workers.Go(func() error {
		err := filter.Invoke(red)
		out.Close()
		return err
	})
	run.workers.Go(func() error {
		return g.collect(out, key, null)
	})
	if err := in.Enqueue(types.HeaderItem(g.InputSchema())); err != nil {
		return nil, err
	}
	return run, nil
}

// collect reads one reducer's output, enforces the schema contract and
// re-injects the key when the reducer's header lacks the key column.
// The surrounding stream's separator wins over the reducer's: numeric
// reducers naturally emit space-separated output, which is repaired by
// re-encoding rather than rejected.
func (g *GroupBy) collect(out *pipe.Pipe, key string, null bool) error {
	for {
		item, err := out.Dequeue()
		if err != nil {
			if filter.IsEOF(err) {
				return nil
			}
			return err
		}
		switch item.Kind {
		case types.KindHeader:
			if err := g.commitReducerSchema(item.Schema); err != nil {
				return err
			}
		case types.KindComment:
			// The reducer's header always precedes its comments.
			if err := g.WriteItem(item); err != nil {
				return err
			}
		case types.KindRow:
			row := item.Row
			if g.injectKey {
				k := key
				if null {
					k = g.outSchema.Empty
				}
				row = append(types.Row{k}, row...)
			}
			if err := g.WriteRow(row); err != nil {
				return err
			}
		}
	}
}

// commitReducerSchema records the first reducer's schema, fixes the
// key-injection policy for the rest of the run and rejects any later
// instance whose columns differ.
func (g *GroupBy) commitReducerSchema(rs *types.Schema) error {
	if g.schemaSet {
		if len(rs.Columns) != len(g.reducerNames) {
			return fmt.Errorf("%w: reducer emitted %d columns, first group emitted %d",
				types.ErrSchema, len(rs.Columns), len(g.reducerNames))
		}
		for i, c := range g.reducerNames {
			if rs.Columns[i] != c {
				return fmt.Errorf("%w: reducer schema changed between groups: column %d is %q, was %q",
					types.ErrSchema, i, rs.Columns[i], c)
			}
		}
		return nil
	}
	g.schemaSet = true
	g.reducerNames = append([]string(nil), rs.Columns...)
	g.injectKey = !rs.HasColumn(g.keyColumn)
	cols := rs.Columns
	if g.injectKey {
		cols = append([]string{g.keyColumn}, cols...)
	}
	schema, err := types.NewSchema(g.InputSchema().Sep, cols...)
	if err != nil {
		return err
	}
	schema.Empty = types.DefaultEmpty
	g.outSchema = schema
	if err := g.Output().WriteItem(types.HeaderItem(schema)); err != nil {
		return err
	}
	// Buffered input comments stay with the main worker; they flush at
	// the next group boundary, once this collector has let go of the
	// output.
	g.headerOut = true
	return nil
}

// flushComments drains the buffered input comments once the output
// header exists and no collector owns the output.
func (g *GroupBy) flushComments() error {
	if !g.headerOut {
		return nil
	}
	for _, c := range g.earlyComments {
		if err := g.WriteItem(c); err != nil {
			return err
		}
	}
	g.earlyComments = nil
	return nil
}

// Finish joins the helper sort, flushes any buffered comments and
// closes the output.
func (g *GroupBy) Finish() error {
	sortErr := g.sorters.Wait()
	g.flushComments()
	err := g.Base.Finish()
	if sortErr != nil {
		return sortErr
	}
	return err
}
