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

package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/flatdb/codec"
	"github.com/rulego/flatdb/pipe"
	"github.com/rulego/flatdb/types"
)

// identity copies its input to its output; limit > 0 stops early
// without consuming the rest, violating the consumption invariant.
type identity struct {
	Base
	limit int
}

func (f *identity) Setup() error {
	schema, err := f.OpenInput()
	if err != nil {
		return err
	}
	return f.OpenOutput(schema)
}

func (f *identity) Run() error {
	n := 0
	for {
		if f.limit > 0 && n >= f.limit {
			return nil
		}
		item, err := f.NextItem()
		if err != nil {
			if IsEOF(err) {
				return nil
			}
			return err
		}
		if err := f.WriteItem(item); err != nil {
			return err
		}
		n++
	}
}

func newIdentity(t *testing.T, input string, out types.ItemWriteCloser, limit int) *identity {
	t.Helper()
	r, err := codec.NewReader(strings.NewReader(input))
	require.NoError(t, err)
	f := &identity{limit: limit}
	f.Init("identity")
	f.In = ReaderSource(r)
	f.Out = WriterSink(out)
	return f
}

// sink collects written items for inspection.
type sink struct {
	items  []types.Item
	closed bool
}

func (s *sink) WriteItem(item types.Item) error {
	s.items = append(s.items, item)
	return nil
}
func (s *sink) Close() error { s.closed = true; return nil }

func rowsOf(items []types.Item) []types.Row {
	var rows []types.Row
	for _, it := range items {
		if it.Kind == types.KindRow {
			rows = append(rows, it.Row)
		}
	}
	return rows
}

func TestLifecycle(t *testing.T) {
	out := &sink{}
	f := newIdentity(t, "#flatdb a b\n1 2\n# hello\n3 4\n", out, 0)
	require.NoError(t, Invoke(f))

	assert.True(t, out.closed)
	assert.Equal(t, types.KindHeader, out.items[0].Kind)
	assert.Equal(t, []types.Row{{"1", "2"}, {"3", "4"}}, rowsOf(out.items))

	// Comment passthrough plus the trailing provenance comment.
	var comments []string
	for _, it := range out.items {
		if it.Kind == types.KindComment {
			comments = append(comments, it.Comment)
		}
	}
	require.Len(t, comments, 2)
	assert.Equal(t, "# hello", comments[0])
	assert.Contains(t, comments[1], "identity")
}

func TestNoProvenance(t *testing.T) {
	out := &sink{}
	f := newIdentity(t, "#flatdb a\n1\n", out, 0)
	f.NoProvenance = true
	require.NoError(t, Invoke(f))
	for _, it := range out.items {
		assert.NotEqual(t, types.KindComment, it.Kind)
	}
}

func TestConsumptionInvariant(t *testing.T) {
	out := &sink{}
	f := newIdentity(t, "#flatdb a\n1\n2\n3\n", out, 1)
	err := Invoke(f)
	assert.ErrorIs(t, err, types.ErrConsumption)
}

func TestConsumptionUnblocksPipeProducer(t *testing.T) {
	p := pipe.New(1)
	require.NoError(t, p.Enqueue(types.HeaderItem(types.MustSchema(types.SepDefault, "a"))))

	f := &identity{limit: 0}
	f.Init("identity")
	f.In = PipeSource(p)
	f.Out = WriterSink(&sink{})
	require.NoError(t, f.Setup())

	// The filter abandons the stream; Finish must fail and release the
	// producer side.
	err := f.Finish()
	assert.ErrorIs(t, err, types.ErrConsumption)
	assert.ErrorIs(t, p.Enqueue(types.RowItem(types.Row{"x"})), types.ErrClosedPipe)
}

func TestSourceErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, err := FileSource("/nonexistent/path/stream").Open()
		assert.ErrorIs(t, err, types.ErrResource)
	})
	t.Run("unconfigured", func(t *testing.T) {
		_, _, err := Source{}.Open()
		assert.ErrorIs(t, err, types.ErrConfig)
	})
}

func TestLazySink(t *testing.T) {
	t.Run("header first", func(t *testing.T) {
		out := &sink{}
		lazy := LazySink(WriterSink(out))
		err := lazy.WriteItem(types.RowItem(types.Row{"1"}))
		assert.ErrorIs(t, err, types.ErrSchema)

		require.NoError(t, lazy.WriteItem(types.HeaderItem(types.MustSchema(types.SepDefault, "a"))))
		require.NoError(t, lazy.WriteItem(types.RowItem(types.Row{"1"})))
		require.NoError(t, lazy.Close())
		assert.Equal(t, []types.Row{{"1"}}, rowsOf(out.items))
	})
	t.Run("close before open", func(t *testing.T) {
		assert.NoError(t, LazySink(WriterSink(&sink{})).Close())
	})
}
