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

package joiner

import (
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

func source(t *testing.T, content string) filter.Source {
	t.Helper()
	r, err := codec.NewReader(strings.NewReader(content))
	require.NoError(t, err)
	return filter.ReaderSource(r)
}

func runJoin(t *testing.T, left, right string, opts ...Option) (*sink, error) {
	t.Helper()
	out := &sink{}
	opts = append(opts,
		WithLeft(source(t, left)),
		WithRight(source(t, right)),
		WithOutput(filter.WriterSink(out)),
		WithProvenance(false),
	)
	return out, filter.Invoke(New(opts...))
}

func TestInnerJoin(t *testing.T) {
	out, err := runJoin(t,
		"#flatdb sid cid\n1 10\n2 11\n1 12\n2 12\n",
		"#flatdb cid cname\n10 pascal\n11 numanal\n12 os\n",
		WithKeys(types.KeySpec{{Column: "cid", Numeric: true}}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"cid", "sid", "cname"}, out.items[0].Schema.Columns)
	assert.Equal(t, []types.Row{
		{"10", "1", "pascal"},
		{"11", "2", "numanal"},
		{"12", "1", "os"},
		{"12", "2", "os"},
	}, out.rows())
}

func TestOuterJoin(t *testing.T) {
	out, err := runJoin(t,
		"#flatdb sid cid\n1 10\n2 20\n",
		"#flatdb cid cname\n10 a\n30 c\n",
		WithKeys(types.KeySpec{{Column: "cid", Numeric: true}}),
		WithType(Outer),
		WithPresorted(),
	)
	require.NoError(t, err)
	assert.Equal(t, []types.Row{
		{"10", "1", "a"},
		{"20", "2", "-"},
		{"30", "-", "c"},
	}, out.rows())
}

func TestOuterJoinCustomEmpty(t *testing.T) {
	out, err := runJoin(t,
		"#flatdb id l\n1 x\n",
		"#flatdb id r\n2 y\n",
		WithKeys(types.KeySpec{{Column: "id", Numeric: true}}),
		WithType(Outer),
		WithEmpty("NULL"),
	)
	require.NoError(t, err)
	assert.Equal(t, []types.Row{
		{"1", "x", "NULL"},
		{"2", "NULL", "y"},
	}, out.rows())
}

func TestJoinManyToMany(t *testing.T) {
	out, err := runJoin(t,
		"#flatdb k l\na 1\na 2\n",
		"#flatdb k r\na x\na y\na z\n",
		WithKeys(types.KeySpec{{Column: "k"}}),
		WithPresorted(),
	)
	require.NoError(t, err)
	// Multiplicity is the product of the matching run lengths.
	require.Len(t, out.rows(), 6)
	assert.Equal(t, types.Row{"a", "1", "x"}, out.rows()[0])
	assert.Equal(t, types.Row{"a", "2", "z"}, out.rows()[5])
}

func TestJoinSortsUnsortedInputs(t *testing.T) {
	out, err := runJoin(t,
		"#flatdb sid cid\n2 11\n1 10\n",
		"#flatdb cid cname\n11 numanal\n10 pascal\n",
		WithKeys(types.KeySpec{{Column: "cid", Numeric: true}}),
	)
	require.NoError(t, err)
	assert.Equal(t, []types.Row{
		{"10", "1", "pascal"},
		{"11", "2", "numanal"},
	}, out.rows())
}

func TestJoinVerifiesDeclaredOrder(t *testing.T) {
	_, err := runJoin(t,
		"#flatdb k l\nb 1\na 2\n",
		"#flatdb k r\na x\n",
		WithKeys(types.KeySpec{{Column: "k"}}),
		WithPresorted(),
	)
	assert.ErrorIs(t, err, types.ErrOrdering)
}

func TestJoinNonKeyCollision(t *testing.T) {
	_, err := runJoin(t,
		"#flatdb k v\na 1\n",
		"#flatdb k v\na 2\n",
		WithKeys(types.KeySpec{{Column: "k"}}),
		WithPresorted(),
	)
	assert.ErrorIs(t, err, types.ErrSchema)
}

func TestJoinUnsupportedTypes(t *testing.T) {
	for _, jt := range []Type{"left", "right", "cross"} {
		_, err := runJoin(t, "#flatdb k\na\n", "#flatdb k\na\n",
			WithKeys(types.KeySpec{{Column: "k"}}),
			WithType(jt),
		)
		assert.ErrorIs(t, err, types.ErrConfig, "type %s", jt)
	}
}

func TestJoinEmptyInputs(t *testing.T) {
	t.Run("inner drops everything", func(t *testing.T) {
		out, err := runJoin(t,
			"#flatdb k l\n",
			"#flatdb k r\na x\n",
			WithKeys(types.KeySpec{{Column: "k"}}),
			WithPresorted(),
		)
		require.NoError(t, err)
		assert.Empty(t, out.rows())
		assert.Equal(t, []string{"k", "l", "r"}, out.items[0].Schema.Columns)
	})
	t.Run("outer keeps the populated side", func(t *testing.T) {
		out, err := runJoin(t,
			"#flatdb k l\n",
			"#flatdb k r\na x\n",
			WithKeys(types.KeySpec{{Column: "k"}}),
			WithType(Outer),
			WithPresorted(),
		)
		require.NoError(t, err)
		assert.Equal(t, []types.Row{{"a", "-", "x"}}, out.rows())
	})
}

func TestJoinCommentsPassThrough(t *testing.T) {
	out, err := runJoin(t,
		"#flatdb k l\n# left note\na 1\n",
		"#flatdb k r\na x\n",
		WithKeys(types.KeySpec{{Column: "k"}}),
		WithPresorted(),
	)
	require.NoError(t, err)
	var comments []string
	for _, it := range out.items {
		if it.Kind == types.KindComment {
			comments = append(comments, it.Comment)
		}
	}
	assert.Contains(t, comments, "# left note")
}

func TestJoinMissingKeyColumn(t *testing.T) {
	_, err := runJoin(t,
		"#flatdb a\n1\n",
		"#flatdb b\n2\n",
		WithKeys(types.KeySpec{{Column: "a"}}),
		WithPresorted(),
	)
	assert.ErrorIs(t, err, types.ErrSchema)
}
