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

// dbsort sorts a flat-table stream by a key specification, spilling
// runs to disk when the input exceeds memory.
package main

import (
	"os"

	"github.com/rulego/flatdb/cli"
	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/sorter"
	"github.com/rulego/flatdb/tmpfile"
	"github.com/spf13/cast"
)

const usage = `usage: dbsort [options] [-nNrR] column...

Sorts the input stream by the given key columns. Mode flags apply to
the columns that follow them: -n numeric, -N lexical (default),
-r descending, -R ascending (default).

options:
  --input PATH | -     input stream (default stdin)
  --output PATH | -    output stream (default stdout)
  -T DIR               spill directory (default $TMPDIR)
  --runsize N          rows per in-memory run
  --nolog              suppress the provenance comment
  -d                   increase verbosity
  --help, --man        this text
`

func main() {
	var (
		tempDir string
		runRows int
	)
	c := &cli.Common{
		Name:  "dbsort",
		Usage: usage,
		Extra: func(arg string, next func() (string, error)) (bool, error) {
			switch arg {
			case "-T":
				v, err := next()
				if err != nil {
					return false, err
				}
				tempDir = v
				return true, nil
			case "--runsize":
				v, err := next()
				if err != nil {
					return false, err
				}
				n, err := cast.ToIntE(v)
				if err != nil {
					return false, err
				}
				runRows = n
				return true, nil
			}
			return false, nil
		},
	}
	keys, err := c.Parse(os.Args[1:])
	if err != nil {
		cli.Fail(c.Name, err)
	}

	s := sorter.New(
		sorter.WithKeys(keys),
		sorter.WithInput(c.InputSource()),
		sorter.WithOutput(c.OutputSink()),
		sorter.WithTempDir(tempDir),
		sorter.WithRunRows(runRows),
		sorter.WithProvenance(!c.NoLog),
		sorter.WithArgs(os.Args[1:]...),
	)
	if err := filter.Invoke(s); err != nil {
		cli.Fail(c.Name, err)
	}
	tmpfile.Default().Cleanup()
}
