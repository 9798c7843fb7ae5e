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

package groupby

import (
	"fmt"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cast"
	"gonum.org/v1/gonum/stat"

	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/types"
)

// Built-in reducers. Each is an ordinary filter reading one group's
// stream; the factories close over their configuration, so every group
// gets a fresh instance. Reducer output deliberately uses the default
// separator; the driver re-encodes it under the surrounding stream's
// separator.

// CountFactory builds a reducer that emits the group's row count in
// the named column.
func CountFactory(column string) Factory {
	if column == "" {
		column = "n"
	}
	return func(ctx GroupContext) filter.Filter {
		c := &countReducer{column: column}
		c.Init("count")
		c.NoProvenance = true
		c.In, c.Out = ctx.In, ctx.Out
		return c
	}
}

type countReducer struct {
	filter.Base
	column string
}

func (c *countReducer) Setup() error {
	if _, err := c.OpenInput(); err != nil {
		return err
	}
	return c.OpenOutput(types.MustSchema(types.SepDefault, c.column))
}

func (c *countReducer) Run() error {
	n := 0
	for {
		item, err := c.NextItem()
		if err != nil {
			if filter.IsEOF(err) {
				break
			}
			return err
		}
		switch item.Kind {
		case types.KindComment:
			if err := c.PassComment(item); err != nil {
				return err
			}
		case types.KindRow:
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return c.WriteRow(types.Row{strconv.Itoa(n)})
}

// StatsFactory builds a reducer that summarises one numeric column:
// mean, stddev, min, max and the count of parseable values. Values
// equal to the empty token or unparseable are skipped.
func StatsFactory(column string) Factory {
	return func(ctx GroupContext) filter.Filter {
		s := &statsReducer{column: column}
		s.Init("stats")
		s.NoProvenance = true
		s.In, s.Out = ctx.In, ctx.Out
		return s
	}
}

type statsReducer struct {
	filter.Base
	column string
	idx    int
}

func (s *statsReducer) Setup() error {
	if s.column == "" {
		return fmt.Errorf("%w: stats reducer requires a column", types.ErrConfig)
	}
	schema, err := s.OpenInput()
	if err != nil {
		return err
	}
	s.idx, err = schema.ColumnIndex(s.column)
	if err != nil {
		return err
	}
	return s.OpenOutput(types.MustSchema(types.SepDefault, "mean", "stddev", "min", "max", "n"))
}

func (s *statsReducer) Run() error {
	empty := s.InputSchema().Empty
	if empty == "" {
		empty = types.DefaultEmpty
	}
	var values []float64
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
			raw := item.Row[s.idx]
			if raw == empty {
				continue
			}
			if v, err := cast.ToFloat64E(raw); err == nil {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return nil
	}
	mean := stat.Mean(values, nil)
	stddev := 0.0
	if len(values) > 1 {
		stddev = stat.StdDev(values, nil)
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return s.WriteRow(types.Row{
		formatFloat(mean),
		formatFloat(stddev),
		formatFloat(lo),
		formatFloat(hi),
		strconv.Itoa(len(values)),
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ExprFactory builds a reducer around a compiled expression evaluated
// once per group. The environment carries the group key as "key", the
// accumulated rows as "rows" (a list of column-name to string maps)
// and the row count as "n"; a "num" helper converts field strings to
// numbers. The expression must return a map holding every configured
// output column.
func ExprFactory(code string, columns ...string) (Factory, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: expression reducer requires output columns", types.ErrConfig)
	}
	program, err := expr.Compile(code,
		expr.AllowUndefinedVariables(),
		expr.Function("num", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("num requires 1 parameter")
			}
			return cast.ToFloat64E(cast.ToString(params[0]))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling reducer expression: %v", types.ErrConfig, err)
	}
	return func(ctx GroupContext) filter.Filter {
		e := &exprReducer{program: program, columns: columns, key: ctx.Key, null: ctx.Null}
		e.Init("rowexpr")
		e.NoProvenance = true
		e.In, e.Out = ctx.In, ctx.Out
		return e
	}, nil
}

type exprReducer struct {
	filter.Base
	program *vm.Program
	columns []string
	key     string
	null    bool
}

func (e *exprReducer) Setup() error {
	if _, err := e.OpenInput(); err != nil {
		return err
	}
	return e.OpenOutput(types.MustSchema(types.SepDefault, e.columns...))
}

func (e *exprReducer) Run() error {
	var rows []map[string]interface{}
	cols := e.InputSchema().Columns
	for {
		item, err := e.NextItem()
		if err != nil {
			if filter.IsEOF(err) {
				break
			}
			return err
		}
		switch item.Kind {
		case types.KindComment:
			if err := e.PassComment(item); err != nil {
				return err
			}
		case types.KindRow:
			m := make(map[string]interface{}, len(cols))
			for i, c := range cols {
				m[c] = item.Row[i]
			}
			rows = append(rows, m)
		}
	}
	if e.null || len(rows) == 0 {
		return nil
	}
	env := map[string]interface{}{
		"key":  e.key,
		"rows": rows,
		"n":    len(rows),
	}
	result, err := expr.Run(e.program, env)
	if err != nil {
		return fmt.Errorf("%w: reducer expression: %v", types.ErrConfig, err)
	}
	values, ok := result.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%w: reducer expression must return a map, got %T", types.ErrConfig, result)
	}
	out := make(types.Row, len(e.columns))
	for i, c := range e.columns {
		v, ok := values[c]
		if !ok {
			return fmt.Errorf("%w: reducer expression result lacks column %q", types.ErrConfig, c)
		}
		out[i] = cast.ToString(v)
	}
	return e.WriteRow(out)
}
