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

// dbjoin sort-merge-joins two streams on a common key tuple.
package main

import (
	"fmt"
	"os"

	"github.com/rulego/flatdb/cli"
	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/joiner"
	"github.com/rulego/flatdb/types"
)

const usage = `usage: dbjoin [options] --input LEFT --input RIGHT [-nNrR] column...

Joins two streams on the given key columns. With one --input the left
side reads standard input. Output columns are the keys, then the left
side's other columns, then the right side's non-duplicate columns.

options:
  --input PATH | -     left then right input (the left defaults to stdin)
  --output PATH | -    output stream (default stdout)
  -t inner|outer       join type (default inner)
  -a                   shorthand for -t outer
  -e EMPTY             token for the missing side in outer joins
  -S                   assert both inputs are presorted by the keys
  --nolog              suppress the provenance comment
  -d                   increase verbosity
  --help, --man        this text
`

func main() {
	var opts []joiner.Option
	c := &cli.Common{
		Name:  "dbjoin",
		Usage: usage,
		Extra: func(arg string, next func() (string, error)) (bool, error) {
			switch arg {
			case "-a":
				opts = append(opts, joiner.WithType(joiner.Outer))
				return true, nil
			case "-t":
				v, err := next()
				if err != nil {
					return false, err
				}
				opts = append(opts, joiner.WithType(joiner.Type(v)))
				return true, nil
			case "-e":
				v, err := next()
				if err != nil {
					return false, err
				}
				opts = append(opts, joiner.WithEmpty(v))
				return true, nil
			case "-S":
				opts = append(opts, joiner.WithPresorted())
				return true, nil
			}
			return false, nil
		},
	}
	keys, err := c.Parse(os.Args[1:])
	if err != nil {
		cli.Fail(c.Name, err)
	}

	var left, right filter.Source
	switch len(c.Inputs) {
	case 1:
		left = filter.FileSource(filter.StdioPath)
		right = filter.FileSource(c.Inputs[0])
	case 2:
		left = filter.FileSource(c.Inputs[0])
		right = filter.FileSource(c.Inputs[1])
	default:
		cli.Fail(c.Name, fmt.Errorf("%w: join requires two inputs, have %d", types.ErrConfig, len(c.Inputs)))
	}

	opts = append(opts,
		joiner.WithKeys(keys),
		joiner.WithLeft(left),
		joiner.WithRight(right),
		joiner.WithOutput(c.OutputSink()),
		joiner.WithProvenance(!c.NoLog),
		joiner.WithArgs(os.Args[1:]...),
	)
	if err := filter.Invoke(joiner.New(opts...)); err != nil {
		cli.Fail(c.Name, err)
	}
}
