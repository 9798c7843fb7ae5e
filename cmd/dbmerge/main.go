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

// dbmerge merges presorted, schema-compatible streams into one sorted
// stream through a bounded-parallel tree of two-way merges.
package main

import (
	"os"

	"github.com/rulego/flatdb/cli"
	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/merger"
	"github.com/rulego/flatdb/tmpfile"
	"github.com/spf13/cast"
)

const usage = `usage: dbmerge [options] [-nNrR] column... --input A --input B ...

Merges two or more presorted inputs by the given key columns. All
inputs must share one schema and be sorted consistently with the keys.

options:
  --input PATH         one presorted input (repeat; at least two)
  --output PATH | -    output stream (default stdout)
  --xargs              read input filenames from stdin, one per row
  --removeinputs       delete each input file once merged
  -T DIR               spill directory (default $TMPDIR)
  --parallelism N      concurrent two-way merges (0 = sequential)
  --endgame            stream the final merge levels through pipes (default)
  --noendgame          always spill intermediate levels
  --nolog              suppress the provenance comment
  -d                   increase verbosity
  --help, --man        this text
`

func main() {
	var (
		xargs        bool
		removeInputs bool
		tempDir      string
		opts         []merger.Option
	)
	c := &cli.Common{
		Name:  "dbmerge",
		Usage: usage,
		Extra: func(arg string, next func() (string, error)) (bool, error) {
			switch arg {
			case "--xargs":
				xargs = true
				return true, nil
			case "--removeinputs":
				removeInputs = true
				return true, nil
			case "-T":
				v, err := next()
				if err != nil {
					return false, err
				}
				tempDir = v
				return true, nil
			case "--parallelism":
				v, err := next()
				if err != nil {
					return false, err
				}
				n, err := cast.ToIntE(v)
				if err != nil {
					return false, err
				}
				opts = append(opts, merger.WithMergeParallelism(n))
				return true, nil
			case "--endgame":
				opts = append(opts, merger.WithMergeEndgame(true))
				return true, nil
			case "--noendgame":
				opts = append(opts, merger.WithMergeEndgame(false))
				return true, nil
			}
			return false, nil
		},
	}
	keys, err := c.Parse(os.Args[1:])
	if err != nil {
		cli.Fail(c.Name, err)
	}

	opts = append(opts,
		merger.WithKeys(keys),
		merger.WithOutput(c.OutputSink()),
		merger.WithTempDir(tempDir),
		merger.WithProvenance(!c.NoLog),
		merger.WithArgs(os.Args[1:]...),
	)
	if removeInputs {
		opts = append(opts, merger.WithRemoveMergedInputs())
	}
	if xargs {
		opts = append(opts, merger.WithXargsInput(c.InputSource()))
	} else {
		opts = append(opts, merger.WithFiles(c.Inputs...))
	}
	m := merger.New(opts...)
	if err := filter.Invoke(m); err != nil {
		cli.Fail(c.Name, err)
	}
	tmpfile.Default().Cleanup()
}
