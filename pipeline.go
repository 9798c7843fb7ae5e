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

package flatdb

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/logger"
	"github.com/rulego/flatdb/pipe"
	"github.com/rulego/flatdb/types"
)

// StageFactory builds one pipeline stage wired to the given endpoints.
// The builder hands the first stage the pipeline input, the last stage
// the pipeline output, and connects neighbours with bounded pipes.
type StageFactory func(in filter.Source, out filter.Sink) filter.Filter

// Pipeline instantiates an ordered list of filters and runs them as
// cooperating workers connected by bounded pipes.
type Pipeline struct {
	stages []StageFactory
	in     filter.Source
	out    filter.Sink
	cfg    types.Config
	log    logger.Logger
	single bool
}

// NewPipeline builds an empty pipeline with the process defaults.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		out: filter.FileSink(filter.StdioPath),
		cfg: types.Default(),
		log: logger.GetDefault(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithInput sets the whole pipeline's input endpoint, handed to the
// first stage.
func WithInput(src filter.Source) PipelineOption {
	return func(p *Pipeline) { p.in = src }
}

// WithOutput sets the whole pipeline's output endpoint, handed to the
// last stage.
func WithOutput(sink filter.Sink) PipelineOption {
	return func(p *Pipeline) { p.out = sink }
}

// WithConfig replaces the process defaults for this pipeline.
func WithConfig(cfg types.Config) PipelineOption {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithLogger overrides the logger.
func WithLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

// WithSingleWorker runs the stages cooperatively on one worker, in
// order. Legal only when every intermediate stream fits in its pipe;
// the default is one worker per stage.
func WithSingleWorker() PipelineOption {
	return func(p *Pipeline) { p.single = true }
}

// Add appends a stage factory and returns the pipeline for chaining.
func (p *Pipeline) Add(stages ...StageFactory) *Pipeline {
	p.stages = append(p.stages, stages...)
	return p
}

// Run instantiates the stages, connects neighbours with pipes and
// drives everything to completion. Once every worker has returned,
// errors are reported downstream-first, so an error in a late stage is
// reported ahead of the upstream terminations it caused.
func (p *Pipeline) Run() error {
	n := len(p.stages)
	if n == 0 {
		return fmt.Errorf("%w: pipeline has no stages", types.ErrConfig)
	}

	pipes := make([]*pipe.Pipe, n-1)
	for i := range pipes {
		pipes[i] = pipe.New(p.cfg.PipeCapacity)
	}
	filters := make([]filter.Filter, n)
	for i, factory := range p.stages {
		in := p.in
		if i > 0 {
			in = filter.PipeSource(pipes[i-1])
		}
		out := p.out
		if i < n-1 {
			out = filter.PipeSink(pipes[i])
		}
		f := factory(in, out)
		if f == nil {
			return fmt.Errorf("%w: stage %d factory returned nothing", types.ErrConfig, i)
		}
		filters[i] = f
	}

	if p.single {
		for i, f := range filters {
			if err := filter.Invoke(f); err != nil {
				return fmt.Errorf("stage %d: %w", i, err)
			}
		}
		return nil
	}

	errs := make([]error, n)
	var g errgroup.Group
	for i := range filters {
		i := i
		g.Go(func() error {
			err := filter.Invoke(filters[i])
			if err != nil {
				// Unwedge the neighbours: upstream enqueues fail fast,
				// downstream observes end-of-stream.
				if i > 0 {
					pipes[i-1].CloseRead()
				}
				if i < n-1 {
					pipes[i].Close()
				}
				errs[i] = err
			}
			return nil
		})
	}
	g.Wait()
	for i := n - 1; i >= 0; i-- {
		if errs[i] != nil {
			return fmt.Errorf("stage %d: %w", i, errs[i])
		}
	}
	return nil
}
