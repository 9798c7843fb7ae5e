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

// Package cli handles the argument surface shared by the flatdb
// command-line tools: the common endpoint and verbosity flags, and the
// key grammar where -n/-N/-r/-R modes intersperse with column names.
// The grammar is order-sensitive in a way none of the stock flag
// packages express, so parsing is a plain hand-rolled scan.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rulego/flatdb/filter"
	"github.com/rulego/flatdb/logger"
	"github.com/rulego/flatdb/types"
)

// Common carries the options every tool understands.
type Common struct {
	Name    string
	Usage   string
	Inputs  []string
	Output  string
	Verbose int
	Autorun bool
	NoLog   bool

	// Extra handles one tool-specific flag. next pulls the flag's
	// value argument. Return true when the flag was consumed.
	Extra func(arg string, next func() (string, error)) (bool, error)
}

// Parse scans args, filling the common options and building the key
// spec from interspersed mode flags and column names.
func (c *Common) Parse(args []string) (types.KeySpec, error) {
	var (
		keys    types.KeySpec
		numeric bool
		desc    bool
	)
	c.Output = filter.StdioPath
	c.Autorun = true
	i := 0
	next := func() (string, error) {
		i++
		if i >= len(args) {
			return "", fmt.Errorf("%w: %s requires a value", types.ErrConfig, args[i-1])
		}
		return args[i], nil
	}
	for ; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--input", "-i":
			v, err := next()
			if err != nil {
				return nil, err
			}
			c.Inputs = append(c.Inputs, v)
		case "--output", "-o":
			v, err := next()
			if err != nil {
				return nil, err
			}
			c.Output = v
		case "--autorun":
			c.Autorun = true
		case "--noautorun":
			c.Autorun = false
		case "--nolog":
			c.NoLog = true
		case "--help", "--man":
			fmt.Fprint(os.Stdout, c.Usage)
			os.Exit(0)
		case "-d":
			c.Verbose++
		case "-n":
			numeric = true
		case "-N":
			numeric = false
		case "-r":
			desc = true
		case "-R":
			desc = false
		default:
			if c.Extra != nil {
				handled, err := c.Extra(arg, next)
				if err != nil {
					return nil, err
				}
				if handled {
					continue
				}
			}
			if strings.HasPrefix(arg, "-") && arg != filter.StdioPath {
				return nil, fmt.Errorf("%w: unknown option %q", types.ErrConfig, arg)
			}
			keys = append(keys, types.KeyField{Column: arg, Numeric: numeric, Descending: desc})
		}
	}
	if c.Verbose > 0 {
		logger.GetDefault().SetLevel(logger.DEBUG)
	}
	return keys, nil
}

// InputSource returns the single-input endpoint: the last --input, or
// standard input.
func (c *Common) InputSource() filter.Source {
	if len(c.Inputs) == 0 {
		return filter.FileSource(filter.StdioPath)
	}
	return filter.FileSource(c.Inputs[len(c.Inputs)-1])
}

// OutputSink returns the configured output endpoint.
func (c *Common) OutputSink() filter.Sink {
	return filter.FileSink(c.Output)
}

// Fail reports a fatal error and exits non-zero.
func Fail(name string, err error) {
	logger.Error("%s: %v", name, err)
	os.Exit(1)
}
