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

package sorter

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/flatdb/codec"
	"github.com/rulego/flatdb/filter"
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

func runSort(t *testing.T, input string, keys types.KeySpec, opts ...Option) *sink {
	t.Helper()
	r, err := codec.NewReader(strings.NewReader(input))
	require.NoError(t, err)
	out := &sink{}
	opts = append(opts,
		WithKeys(keys),
		WithInput(filter.ReaderSource(r)),
		WithOutput(filter.WriterSink(out)),
		WithTempDir(t.TempDir()),
		WithProvenance(false),
	)
	require.NoError(t, filter.Invoke(New(opts...)))
	return out
}

func TestSortNumeric(t *testing.T) {
	out := runSort(t, "#flatdb cid cname\n11 numanal\n10 pascal\n",
		types.KeySpec{{Column: "cid", Numeric: true}})
	assert.Equal(t, []types.Row{{"10", "pascal"}, {"11", "numanal"}}, out.rows())
}

func TestSortDescending(t *testing.T) {
	out := runSort(t, "#flatdb n\n1\n3\n2\n",
		types.KeySpec{{Column: "n", Numeric: true, Descending: true}})
	assert.Equal(t, []types.Row{{"3"}, {"2"}, {"1"}}, out.rows())
}

func TestSortStability(t *testing.T) {
	out := runSort(t, "#flatdb k v\na 1\nb 2\na 3\nb 4\na 5\n",
		types.KeySpec{{Column: "k"}})
	assert.Equal(t, []types.Row{
		{"a", "1"}, {"a", "3"}, {"a", "5"},
		{"b", "2"}, {"b", "4"},
	}, out.rows())
}

func TestSortSpillsAndMerges(t *testing.T) {
	var b strings.Builder
	b.WriteString("#flatdb n\n")
	for i := 100; i > 0; i-- {
		fmt.Fprintf(&b, "%d\n", i)
	}
	// Run size 7 forces many spilled runs through the merge driver.
	out := runSort(t, b.String(), types.KeySpec{{Column: "n", Numeric: true}}, WithRunRows(7))
	rows := out.rows()
	require.Len(t, rows, 100)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprint(i+1), row[0])
	}
}

func TestSortSpillStability(t *testing.T) {
	var b strings.Builder
	b.WriteString("#flatdb k seq\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "x %d\n", i)
	}
	out := runSort(t, b.String(), types.KeySpec{{Column: "k"}}, WithRunRows(5))
	rows := out.rows()
	require.Len(t, rows, 40)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprint(i), row[1], "equal keys must preserve input order across spilled runs")
	}
}

func TestSortEmptyInput(t *testing.T) {
	out := runSort(t, "#flatdb a b\n", types.KeySpec{{Column: "a"}})
	assert.Empty(t, out.rows())
	assert.Equal(t, types.KindHeader, out.items[0].Kind)
	assert.Equal(t, []string{"a", "b"}, out.items[0].Schema.Columns)
}

func TestSortKeepsComments(t *testing.T) {
	out := runSort(t, "#flatdb a\n# leading note\n2\n1\n", types.KeySpec{{Column: "a"}})
	var comments []string
	for _, it := range out.items {
		if it.Kind == types.KindComment {
			comments = append(comments, it.Comment)
		}
	}
	assert.Equal(t, []string{"# leading note"}, comments)
	assert.Equal(t, []types.Row{{"1"}, {"2"}}, out.rows())
}

func TestSortMissingKey(t *testing.T) {
	r, err := codec.NewReader(strings.NewReader("#flatdb a\n1\n"))
	require.NoError(t, err)
	s := New(
		WithKeys(types.KeySpec{{Column: "nope"}}),
		WithInput(filter.ReaderSource(r)),
		WithOutput(filter.WriterSink(&sink{})),
	)
	assert.ErrorIs(t, s.Setup(), types.ErrSchema)
}

func TestSortNoKeys(t *testing.T) {
	s := New(WithInput(filter.FileSource("-")))
	assert.ErrorIs(t, s.Setup(), types.ErrConfig)
}

func TestSortReleasesSpills(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("#flatdb n\n")
	for i := 30; i > 0; i-- {
		fmt.Fprintf(&b, "%d\n", i)
	}
	r, err := codec.NewReader(strings.NewReader(b.String()))
	require.NoError(t, err)
	s := New(
		WithKeys(types.KeySpec{{Column: "n", Numeric: true}}),
		WithInput(filter.ReaderSource(r)),
		WithOutput(filter.WriterSink(&sink{})),
		WithTempDir(dir),
		WithRunRows(4),
		WithProvenance(false),
	)
	require.NoError(t, filter.Invoke(s))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "every spilled run should be released after the merge")
}
