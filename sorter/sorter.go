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

// Package sorter implements the stable external sort behind dbsort:
// in-memory runs spilled through the temp-file registry and recombined
// by the merge driver.
package sorter

import (
	"fmt"
	"os"
	"sort"

	"github.com/rulego/flatdb/codec"
	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/merger"
	"github.com/rulego/flatdb/tmpfile"
	"github.com/rulego/flatdb/types"
)

// Sort is the external-sort filter. Input rows are buffered up to the
// run size, sorted stably under the key spec, and either emitted
// directly (single run) or spilled and handed to the merge driver.
type Sort struct {
	filter.Base

	keys     types.KeySpec
	runRows  int
	tempDir  string
	registry *tmpfile.Registry

	bound *types.BoundKey
}

// Option configures a Sort filter.
type Option func(*Sort)

// WithKeys sets the sort key specification.
func WithKeys(keys types.KeySpec) Option {
	return func(s *Sort) { s.keys = keys }
}

// WithInput selects the input endpoint.
func WithInput(src filter.Source) Option {
	return func(s *Sort) { s.In = src }
}

// WithOutput selects the output endpoint.
func WithOutput(sink filter.Sink) Option {
	return func(s *Sort) { s.Out = sink }
}

// WithRunRows overrides the in-memory run size.
func WithRunRows(n int) Option {
	return func(s *Sort) {
		if n > 0 {
			s.runRows = n
		}
	}
}

// WithTempDir overrides the spill directory.
func WithTempDir(dir string) Option {
	return func(s *Sort) { s.tempDir = dir }
}

// WithConfig replaces the process defaults for this filter.
func WithConfig(cfg types.Config) Option {
	return func(s *Sort) {
		s.Cfg = cfg
		s.runRows = cfg.SortRunRows
	}
}

// WithProvenance toggles the trailing provenance comment.
func WithProvenance(enabled bool) Option {
	return func(s *Sort) { s.NoProvenance = !enabled }
}

// WithArgs records the invocation for the provenance comment.
func WithArgs(args ...string) Option {
	return func(s *Sort) { s.Args = args }
}

// New constructs a sort filter.
func New(opts ...Option) *Sort {
	s := &Sort{}
	s.Init("dbsort")
	s.runRows = s.Cfg.SortRunRows
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup reads the input header, binds the keys and commits the output
// schema, which sorting leaves unchanged.
func (s *Sort) Setup() error {
	if len(s.keys) == 0 {
		return fmt.Errorf("%w: sort requires a key specification", types.ErrConfig)
	}
	schema, err := s.OpenInput()
	if err != nil {
		return err
	}
	s.bound, err = s.keys.Bind(schema)
	if err != nil {
		return err
	}
	if s.tempDir != "" {
		s.registry = tmpfile.NewRegistry(s.tempDir)
	} else {
		s.registry = tmpfile.Default()
	}
	return s.OpenOutput(schema)
}

// Run buffers, sorts and emits. Comments pass straight through, ahead
// of the sorted rows they arrived among.
func (s *Sort) Run() error {
	var (
		buf   []types.Row
		runs  []string
		total int
	)
	for {
		item, err := s.NextItem()
		if err != nil {
			if filter.IsEOF(err) {
				break
			}
			return err
		}
		switch item.Kind {
		case types.KindComment:
			if err := s.PassComment(item); err != nil {
				return err
			}
		case types.KindRow:
			buf = append(buf, item.Row)
			total++
			if len(buf) >= s.runRows {
				path, err := s.spill(buf)
				if err != nil {
					return err
				}
				runs = append(runs, path)
				buf = buf[:0]
			}
		}
	}
	s.Log.Debug("dbsort read %d rows, %d spilled runs", total, len(runs))

	if len(runs) == 0 {
		s.sortBuf(buf)
		for _, row := range buf {
			if err := s.WriteRow(row); err != nil {
				return err
			}
		}
		return nil
	}
	if len(buf) > 0 {
		path, err := s.spill(buf)
		if err != nil {
			return err
		}
		runs = append(runs, path)
	}
	return s.mergeRuns(runs)
}

// sortBuf orders one run stably under the bound key.
func (s *Sort) sortBuf(buf []types.Row) {
	sort.SliceStable(buf, func(i, j int) bool {
		return s.bound.Compare(buf[i], buf[j]) < 0
	})
}

// spill writes one sorted run to a registered temp file.
func (s *Sort) spill(buf []types.Row) (string, error) {
	s.sortBuf(buf)
	path, err := s.registry.New("sort.run")
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %v", types.ErrResource, path, err)
	}
	w := codec.NewWriter(f, s.InputSchema())
	for _, row := range buf {
		if err := w.WriteItem(types.RowItem(row)); err != nil {
			w.Close()
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// mergeRuns recombines the spilled runs through the merge driver. Runs
// enter in creation order and two-way merges prefer the left side on
// ties, so the whole sort stays stable. The driver's header is dropped;
// this filter already committed its own.
func (s *Sort) mergeRuns(runs []string) error {
	if len(runs) == 1 {
		return s.copyRun(runs[0])
	}
	d := merger.NewDriver(s.keys, &headless{s.Output()},
		merger.WithFileInputs(runs...),
		merger.WithParallelism(s.Cfg.Parallelism),
		merger.WithEndgame(s.Cfg.Endgame),
		merger.WithPipeCapacity(s.Cfg.PipeCapacity),
		merger.WithRegistry(s.registry),
		merger.WithRemoveInputs(true),
		merger.WithDriverLogger(s.Log),
	)
	return d.Run()
}

// copyRun streams a lone spilled run back out when the input happened
// to fit exactly one run.
func (s *Sort) copyRun(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", types.ErrResource, path, err)
	}
	defer f.Close()
	r, err := codec.NewReader(f)
	if err != nil {
		return err
	}
	for {
		item, err := r.ReadItem()
		if err != nil {
			if filter.IsEOF(err) {
				break
			}
			return err
		}
		if item.Kind == types.KindRow {
			if err := s.WriteItem(item); err != nil {
				return err
			}
		}
	}
	return s.registry.Release(path)
}

// headless forwards a merged stream into an already-opened output,
// dropping the duplicate header.
type headless struct {
	out types.ItemWriter
}

func (h *headless) WriteItem(item types.Item) error {
	if item.Kind == types.KindHeader {
		return nil
	}
	return h.out.WriteItem(item)
}
