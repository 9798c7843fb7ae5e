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

package merger

import (
	"fmt"

	"github.com/rulego/flatdb/types"
)

// mergeTwo interleaves two schema-compatible presorted inputs into out:
// one header, then rows in key order. The left row wins ties, so a
// merge tree whose siblings keep insertion order is stable. Each side's
// order is verified as it is consumed.
func mergeTwo(left, right Source, keys types.KeySpec, out types.ItemWriter) error {
	lc, err := NewCursor("left input "+left.String(), left, keys, out)
	if err != nil {
		return err
	}
	defer lc.Close()
	rc, err := NewCursor("right input "+right.String(), right, keys, out)
	if err != nil {
		return err
	}
	defer rc.Close()

	if !lc.schema.Compatible(rc.schema) {
		return fmt.Errorf("%w: merge inputs are incompatible: %v vs %v",
			types.ErrSchema, lc.schema, rc.schema)
	}
	if err := out.WriteItem(types.HeaderItem(lc.schema.Clone())); err != nil {
		return err
	}
	if err := lc.Advance(); err != nil {
		return err
	}
	if err := rc.Advance(); err != nil {
		return err
	}

	for !lc.done && !rc.done {
		side := lc
		if lc.key.Compare(lc.row, rc.row) > 0 {
			side = rc
		}
		if err := out.WriteItem(types.RowItem(side.row)); err != nil {
			return err
		}
		if err := side.Advance(); err != nil {
			return err
		}
	}
	for _, side := range []*Cursor{lc, rc} {
		for !side.done {
			if err := out.WriteItem(types.RowItem(side.row)); err != nil {
				return err
			}
			if err := side.Advance(); err != nil {
				return err
			}
		}
	}
	return nil
}
