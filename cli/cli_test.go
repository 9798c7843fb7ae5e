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

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/flatdb/types"
)

func TestParseKeySpec(t *testing.T) {
	c := &Common{Name: "dbsort"}
	keys, err := c.Parse([]string{"-n", "cid", "-N", "-r", "cname", "other"})
	require.NoError(t, err)
	assert.Equal(t, types.KeySpec{
		{Column: "cid", Numeric: true},
		{Column: "cname", Descending: true},
		{Column: "other", Descending: true},
	}, keys)
}

func TestParseModesApplyToFollowingColumns(t *testing.T) {
	c := &Common{Name: "dbsort"}
	keys, err := c.Parse([]string{"a", "-n", "-r", "b", "-R", "c"})
	require.NoError(t, err)
	assert.Equal(t, types.KeySpec{
		{Column: "a"},
		{Column: "b", Numeric: true, Descending: true},
		{Column: "c", Numeric: true},
	}, keys)
}

func TestParseCommonOptions(t *testing.T) {
	c := &Common{Name: "dbmerge"}
	_, err := c.Parse([]string{
		"--input", "a.fdb", "-i", "b.fdb",
		"--output", "out.fdb",
		"--noautorun", "--nolog", "-d", "-d",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.fdb", "b.fdb"}, c.Inputs)
	assert.Equal(t, "out.fdb", c.Output)
	assert.False(t, c.Autorun)
	assert.True(t, c.NoLog)
	assert.Equal(t, 2, c.Verbose)
}

func TestParseDefaults(t *testing.T) {
	c := &Common{Name: "dbsort"}
	_, err := c.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "-", c.Output)
	assert.True(t, c.Autorun)
	assert.Equal(t, "-", c.InputSource().Path)
}

func TestParseUnknownOption(t *testing.T) {
	c := &Common{Name: "dbsort"}
	_, err := c.Parse([]string{"--bogus"})
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestParseMissingValue(t *testing.T) {
	c := &Common{Name: "dbsort"}
	_, err := c.Parse([]string{"--input"})
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestParseExtraFlags(t *testing.T) {
	var dir string
	c := &Common{
		Name: "dbmerge",
		Extra: func(arg string, next func() (string, error)) (bool, error) {
			if arg == "-T" {
				v, err := next()
				if err != nil {
					return false, err
				}
				dir = v
				return true, nil
			}
			return false, nil
		},
	}
	keys, err := c.Parse([]string{"-T", "/tmp/spill", "n"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/spill", dir)
	assert.Equal(t, types.KeySpec{{Column: "n"}}, keys)
}

func TestStdinDashIsNotAnOption(t *testing.T) {
	c := &Common{Name: "dbsort"}
	_, err := c.Parse([]string{"--input", "-"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-"}, c.Inputs)
}
