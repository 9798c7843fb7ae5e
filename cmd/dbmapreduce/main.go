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

// dbmapreduce segments a keyed stream into groups and runs a reducer
// over each group's rows.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rulego/flatdb/cli"
	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/groupby"
	"github.com/rulego/flatdb/types"
)

const usage = `usage: dbmapreduce [options] -k KEY (--count | --stats COL | -C CODE --columns C1,C2...)

Runs a reducer over every maximal run of rows sharing a value in the
key column. Unsorted input is sorted by the key first. When the
reducer's output lacks the key column, the driver prepends it.

options:
  --input PATH | -     input stream (default stdin)
  --output PATH | -    output stream (default stdout)
  -k KEY               group-by key column (required)
  -S                   input is already grouped; repeat to skip the check
  -M                   reducer is group-aware: it sees the whole stream once
  -K                   pass the current key value to the reducer
  --count              built-in reducer: row count per group (column "n")
  --stats COL          built-in reducer: mean/stddev/min/max/n of COL
  -C CODE              expression reducer evaluated once per group
  -f FILE              like -C, reading the expression from FILE
  --columns C1,C2      output columns of the expression reducer
  --nolog              suppress the provenance comment
  -d                   increase verbosity
  --help, --man        this text
`

func main() {
	var (
		key      string
		sorted   int
		aware    bool
		passKey  bool
		countCol string
		doCount  bool
		statsCol string
		exprCode string
		exprCols []string
	)
	c := &cli.Common{
		Name:  "dbmapreduce",
		Usage: usage,
		Extra: func(arg string, next func() (string, error)) (bool, error) {
			switch arg {
			case "-k":
				v, err := next()
				if err != nil {
					return false, err
				}
				key = v
				return true, nil
			case "-S":
				sorted++
				return true, nil
			case "-M":
				aware = true
				return true, nil
			case "-K":
				passKey = true
				return true, nil
			case "--count":
				doCount = true
				return true, nil
			case "--stats":
				v, err := next()
				if err != nil {
					return false, err
				}
				statsCol = v
				return true, nil
			case "-C":
				v, err := next()
				if err != nil {
					return false, err
				}
				exprCode = v
				return true, nil
			case "-f":
				v, err := next()
				if err != nil {
					return false, err
				}
				body, err := os.ReadFile(v)
				if err != nil {
					return false, fmt.Errorf("%w: read %s: %v", types.ErrResource, v, err)
				}
				exprCode = string(body)
				return true, nil
			case "--columns":
				v, err := next()
				if err != nil {
					return false, err
				}
				exprCols = strings.Split(v, ",")
				return true, nil
			}
			return false, nil
		},
	}
	if _, err := c.Parse(os.Args[1:]); err != nil {
		cli.Fail(c.Name, err)
	}

	var factory groupby.Factory
	switch {
	case doCount:
		factory = groupby.CountFactory(countCol)
	case statsCol != "":
		factory = groupby.StatsFactory(statsCol)
	case exprCode != "":
		var err error
		factory, err = groupby.ExprFactory(exprCode, exprCols...)
		if err != nil {
			cli.Fail(c.Name, err)
		}
	default:
		cli.Fail(c.Name, fmt.Errorf("%w: no reducer given; use --count, --stats, -C or -f", types.ErrConfig))
	}

	opts := []groupby.Option{
		groupby.WithKey(key),
		groupby.WithFactory(factory),
		groupby.WithInput(c.InputSource()),
		groupby.WithOutput(c.OutputSink()),
		groupby.WithProvenance(!c.NoLog),
		groupby.WithArgs(os.Args[1:]...),
	}
	if sorted > 0 {
		opts = append(opts, groupby.WithPresorted(sorted == 1))
	}
	if aware {
		opts = append(opts, groupby.WithGroupAware())
	}
	if passKey {
		opts = append(opts, groupby.WithPassKey())
	}
	if err := filter.Invoke(groupby.New(opts...)); err != nil {
		cli.Fail(c.Name, err)
	}
}
