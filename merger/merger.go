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

// Package merger merges presorted flat-table streams: a verified
// two-way ordered interleave and the bounded-parallel N-way driver
// built from it.
package merger

import (
	"fmt"

	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/tmpfile"
	"github.com/rulego/flatdb/types"
)

// Merge is the N-way merge filter behind dbmerge. Inputs are files or
// in-process streams, all presorted under the same key spec and
// schema-compatible.
type Merge struct {
	filter.Base

	keys         types.KeySpec
	inputs       []Source
	xargs        bool
	removeInputs bool
	registry     *tmpfile.Registry
	tempDir      string
}

// Option configures a Merge filter.
type Option func(*Merge)

// WithKeys sets the merge key specification.
func WithKeys(keys types.KeySpec) Option {
	return func(m *Merge) { m.keys = keys }
}

// WithSources appends presorted merge inputs.
func WithSources(srcs ...Source) Option {
	return func(m *Merge) { m.inputs = append(m.inputs, srcs...) }
}

// WithFiles appends file-backed merge inputs.
func WithFiles(paths ...string) Option {
	return func(m *Merge) {
		for _, p := range paths {
			m.inputs = append(m.inputs, FileInput(p))
		}
	}
}

// WithXargsInput reads filenames, one per row, from src; depth zero of
// the merge tree stays open until that stream ends.
func WithXargsInput(src filter.Source) Option {
	return func(m *Merge) {
		m.xargs = true
		m.In = src
	}
}

// WithOutput directs the merged stream.
func WithOutput(sink filter.Sink) Option {
	return func(m *Merge) { m.Out = sink }
}

// WithMergeParallelism bounds concurrent two-way merges; zero selects
// the sequential driver.
func WithMergeParallelism(n int) Option {
	return func(m *Merge) { m.Cfg.Parallelism = n }
}

// WithMergeEndgame toggles the streaming endgame.
func WithMergeEndgame(enabled bool) Option {
	return func(m *Merge) { m.Cfg.Endgame = enabled }
}

// WithRemoveMergedInputs deletes each input file once merged.
func WithRemoveMergedInputs() Option {
	return func(m *Merge) { m.removeInputs = true }
}

// WithTempDir overrides the spill directory.
func WithTempDir(dir string) Option {
	return func(m *Merge) { m.tempDir = dir }
}

// WithProvenance toggles the trailing provenance comment.
func WithProvenance(enabled bool) Option {
	return func(m *Merge) { m.NoProvenance = !enabled }
}

// WithArgs records the invocation for the provenance comment.
func WithArgs(args ...string) Option {
	return func(m *Merge) { m.Args = args }
}

// New constructs a merge filter.
func New(opts ...Option) *Merge {
	m := &Merge{}
	m.Init("dbmerge")
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Setup validates the configuration and prepares the lazily opened
// output: the merged schema only emerges once the first inputs are
// read.
func (m *Merge) Setup() error {
	if len(m.keys) == 0 {
		return fmt.Errorf("%w: merge requires a key specification", types.ErrConfig)
	}
	if m.xargs {
		if len(m.inputs) > 0 {
			return fmt.Errorf("%w: xargs mode and explicit inputs are mutually exclusive", types.ErrConfig)
		}
	} else if len(m.inputs) < 2 {
		return fmt.Errorf("%w: merge needs at least two inputs, have %d", types.ErrConfig, len(m.inputs))
	}
	if m.tempDir != "" {
		m.registry = tmpfile.NewRegistry(m.tempDir)
	} else {
		m.registry = tmpfile.Default()
	}
	m.SetOutput(filter.LazySink(m.Out))
	return nil
}

// Run drives the merge tree to completion.
func (m *Merge) Run() error {
	opts := []DriverOption{
		WithInputs(m.inputs...),
		WithParallelism(m.Cfg.Parallelism),
		WithEndgame(m.Cfg.Endgame),
		WithPipeCapacity(m.Cfg.PipeCapacity),
		WithRegistry(m.registry),
		WithRemoveInputs(m.removeInputs),
		WithDriverLogger(m.Log),
	}
	if m.xargs {
		in, closer, err := m.In.Open()
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
		opts = append(opts, WithXargs(in))
	}
	d := NewDriver(m.keys, m.Output(), opts...)
	err := d.Run()
	m.MarkConsumed()
	if err != nil {
		return err
	}
	return nil
}

// Finish emits provenance, closes the output and, when the filter owns
// a registry of its own (a temp directory was given), removes any
// leftover spill files in it. Files of the process-wide registry are
// left to its owner.
func (m *Merge) Finish() error {
	err := m.Base.Finish()
	if m.registry != nil && m.registry != tmpfile.Default() {
		m.registry.Cleanup()
	}
	return err
}
