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

package types

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// KeyField names one sort key column with its comparator and direction.
type KeyField struct {
	Column     string
	Numeric    bool
	Descending bool
}

// KeySpec is an ordered list of key fields. Earlier fields dominate;
// remaining ties preserve input order (all sorts here are stable).
type KeySpec []KeyField

// Columns returns the key column names in order.
func (ks KeySpec) Columns() []string {
	cols := make([]string, len(ks))
	for i, f := range ks {
		cols[i] = f.Column
	}
	return cols
}

func (ks KeySpec) String() string {
	parts := make([]string, len(ks))
	for i, f := range ks {
		tag := "lexical"
		if f.Numeric {
			tag = "numeric"
		}
		dir := "asc"
		if f.Descending {
			dir = "desc"
		}
		parts[i] = fmt.Sprintf("%s(%s,%s)", f.Column, tag, dir)
	}
	return strings.Join(parts, ",")
}

// Comparator orders two rows of the same schema. Negative means a sorts
// before b.
type Comparator func(a, b Row) int

// boundField is a key field with its column index resolved.
type boundField struct {
	KeyField
	idx   int
	empty string
}

// BoundKey is a key spec resolved against a schema. Resolution happens
// once at setup; per-row comparison uses the fixed indices.
type BoundKey struct {
	fields []boundField
}

// Bind resolves the key columns against schema.
func (ks KeySpec) Bind(schema *Schema) (*BoundKey, error) {
	if len(ks) == 0 {
		return nil, fmt.Errorf("%w: empty key specification", ErrConfig)
	}
	empty := schema.Empty
	if empty == "" {
		empty = DefaultEmpty
	}
	bk := &BoundKey{fields: make([]boundField, len(ks))}
	for i, f := range ks {
		idx, err := schema.ColumnIndex(f.Column)
		if err != nil {
			return nil, err
		}
		bk.fields[i] = boundField{KeyField: f, idx: idx, empty: empty}
	}
	return bk, nil
}

// Compare orders rows a and b under the bound key.
func (bk *BoundKey) Compare(a, b Row) int {
	for _, f := range bk.fields {
		c := f.compareField(a[f.idx], b[f.idx])
		if c != 0 {
			if f.Descending {
				return -c
			}
			return c
		}
	}
	return 0
}

// Comparator returns the Compare method as a plain function value.
func (bk *BoundKey) Comparator() Comparator {
	return bk.Compare
}

// CompareWith orders row a, bound by the receiver, against row b,
// bound by other. The two bindings must come from the same key spec;
// this is how join compares rows across two different schemas.
func (bk *BoundKey) CompareWith(other *BoundKey, a, b Row) int {
	for i, f := range bk.fields {
		c := f.compareField(a[f.idx], b[other.fields[i].idx])
		if c != 0 {
			if f.Descending {
				return -c
			}
			return c
		}
	}
	return 0
}

// Equal reports whether a and b agree on every key column, ignoring
// direction. Used by group and join boundaries.
func (bk *BoundKey) Equal(a, b Row) bool {
	for _, f := range bk.fields {
		if f.compareField(a[f.idx], b[f.idx]) != 0 {
			return false
		}
	}
	return true
}

// Project extracts the key columns of row in spec order.
func (bk *BoundKey) Project(row Row) Row {
	out := make(Row, len(bk.fields))
	for i, f := range bk.fields {
		out[i] = row[f.idx]
	}
	return out
}

// Indexes returns the resolved key column positions in spec order.
func (bk *BoundKey) Indexes() []int {
	idx := make([]int, len(bk.fields))
	for i, f := range bk.fields {
		idx[i] = f.idx
	}
	return idx
}

// compareField orders two field values. The empty token sorts before any
// value. Numeric fields compare as float64 via cast; when only one side
// parses the non-numeric side sorts first, and when neither parses the
// comparison falls back to lexical.
func (f boundField) compareField(a, b string) int {
	ae, be := a == f.empty, b == f.empty
	switch {
	case ae && be:
		return 0
	case ae:
		return -1
	case be:
		return 1
	}
	if f.Numeric {
		af, aerr := cast.ToFloat64E(a)
		bf, berr := cast.ToFloat64E(b)
		switch {
		case aerr == nil && berr == nil:
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		case aerr == nil:
			return 1
		case berr == nil:
			return -1
		}
		// Neither side numeric: fall through to lexical.
	}
	return strings.Compare(a, b)
}
