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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/flatdb/codec"
	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/groupby"
	"github.com/rulego/flatdb/sorter"
	"github.com/rulego/flatdb/types"
)

type sink struct {
	items []types.Item
}

func (s *sink) WriteItem(item types.Item) error {
	s.items = append(s.items, item)
	return nil
}
func (s *sink) Close() error { return nil }

func (s *sink) rows() []types.Row {
	var rows []types.Row
	for _, it := range s.items {
		if it.Kind == types.KindRow {
			rows = append(rows, it.Row)
		}
	}
	return rows
}

func source(t *testing.T, content string) filter.Source {
	t.Helper()
	r, err := codec.NewReader(strings.NewReader(content))
	require.NoError(t, err)
	return filter.ReaderSource(r)
}

func sortStage(keys types.KeySpec) StageFactory {
	return func(in filter.Source, out filter.Sink) filter.Filter {
		return sorter.New(
			sorter.WithKeys(keys),
			sorter.WithInput(in),
			sorter.WithOutput(out),
			sorter.WithProvenance(false),
		)
	}
}

func countStage(key string) StageFactory {
	return func(in filter.Source, out filter.Sink) filter.Filter {
		return groupby.New(
			groupby.WithKey(key),
			groupby.WithFactory(groupby.CountFactory("n")),
			groupby.WithPresorted(true),
			groupby.WithInput(in),
			groupby.WithOutput(out),
			groupby.WithProvenance(false),
		)
	}
}

func TestPipelineSortThenCount(t *testing.T) {
	input := "#flatdb event\nB\nA\nB\nA\nB\n"
	out := &sink{}
	p := NewPipeline(
		WithInput(source(t, input)),
		WithOutput(filter.WriterSink(out)),
	).Add(
		sortStage(types.KeySpec{{Column: "event"}}),
		countStage("event"),
	)
	require.NoError(t, p.Run())
	assert.Equal(t, []types.Row{{"A", "2"}, {"B", "3"}}, out.rows())
}

func TestPipelineSingleWorker(t *testing.T) {
	input := "#flatdb n\n3\n1\n2\n"
	out := &sink{}
	p := NewPipeline(
		WithInput(source(t, input)),
		WithOutput(filter.WriterSink(out)),
		WithSingleWorker(),
	).Add(sortStage(types.KeySpec{{Column: "n", Numeric: true}}))
	require.NoError(t, p.Run())
	assert.Equal(t, []types.Row{{"1"}, {"2"}, {"3"}}, out.rows())
}

func TestPipelinePreservesComments(t *testing.T) {
	input := "#flatdb n\n# upstream note\n2\n1\n"
	out := &sink{}
	p := NewPipeline(
		WithInput(source(t, input)),
		WithOutput(filter.WriterSink(out)),
	).Add(
		sortStage(types.KeySpec{{Column: "n", Numeric: true}}),
		sortStage(types.KeySpec{{Column: "n", Numeric: true}}),
	)
	require.NoError(t, p.Run())
	var comments []string
	for _, it := range out.items {
		if it.Kind == types.KindComment {
			comments = append(comments, it.Comment)
		}
	}
	assert.Contains(t, comments, "# upstream note")
	assert.Equal(t, []types.Row{{"1"}, {"2"}}, out.rows())
}

func TestPipelineErrorPropagates(t *testing.T) {
	// The downstream stage wants a column the input lacks; its failure
	// must surface, not deadlock the upstream producer.
	input := "#flatdb n\n2\n1\n"
	p := NewPipeline(
		WithInput(source(t, input)),
		WithOutput(filter.WriterSink(&sink{})),
	).Add(
		sortStage(types.KeySpec{{Column: "n", Numeric: true}}),
		sortStage(types.KeySpec{{Column: "missing"}}),
	)
	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSchema)
	assert.Contains(t, err.Error(), "stage 1")
}

func TestPipelineNoStages(t *testing.T) {
	err := NewPipeline().Run()
	assert.ErrorIs(t, err, types.ErrConfig)
}
