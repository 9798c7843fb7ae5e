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
	"io"
	"os"

	"github.com/rulego/flatdb/codec"
	"github.com/rulego/flatdb/pipe"
	"github.com/rulego/flatdb/types"
)

// Source identifies one presorted merge input: a file on disk or an
// in-process stream such as a pipe.
type Source struct {
	Path   string
	Reader types.ItemReader
}

// FileInput names a file-backed merge input.
func FileInput(path string) Source { return Source{Path: path} }

// ReaderInput wraps an in-process stream as a merge input.
func ReaderInput(r types.ItemReader) Source { return Source{Reader: r} }

func (s Source) String() string {
	if s.Path != "" {
		return s.Path
	}
	return "<stream>"
}

func (s Source) open() (types.ItemReader, io.Closer, error) {
	if s.Reader != nil {
		return s.Reader, nil, nil
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %v", types.ErrResource, s.Path, err)
	}
	r, err := codec.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f, nil
}

// Cursor walks one presorted input, holding its front row, forwarding
// comments downstream and verifying order as it consumes.
type Cursor struct {
	name   string
	rd     types.ItemReader
	closer io.Closer
	schema *types.Schema
	key    *types.BoundKey
	keys   types.KeySpec

	row  types.Row
	prev types.Row
	done bool

	comments types.ItemWriter
}

// NewCursor opens src, consumes its header and binds the key spec. The
// cursor starts unpositioned: callers Advance once onto the first row
// after they have somewhere for pass-through comments to land.
// Comments encountered while advancing are forwarded to comments when
// non-nil.
func NewCursor(name string, src Source, keys types.KeySpec, comments types.ItemWriter) (*Cursor, error) {
	rd, closer, err := src.open()
	if err != nil {
		return nil, err
	}
	c := &Cursor{name: name, rd: rd, closer: closer, keys: keys, comments: comments}
	item, err := rd.ReadItem()
	if err != nil {
		c.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: %s ended before header", types.ErrSchema, name)
		}
		return nil, err
	}
	if item.Kind != types.KindHeader {
		c.Close()
		return nil, fmt.Errorf("%w: %s did not start with a header", types.ErrSchema, name)
	}
	c.schema = item.Schema
	c.key, err = keys.Bind(c.schema)
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Advance moves to the next data row, passing comments through and
// checking that the input really is sorted. An inversion is fatal and
// names the side and key spec.
func (c *Cursor) Advance() error {
	c.prev = c.row
	for {
		item, err := c.rd.ReadItem()
		if err != nil {
			if err == io.EOF {
				c.done = true
				c.row = nil
				return nil
			}
			return err
		}
		switch item.Kind {
		case types.KindComment:
			if c.comments != nil {
				if err := c.comments.WriteItem(item); err != nil {
					return err
				}
			}
		case types.KindRow:
			c.row = item.Row
			if c.prev != nil && c.key.Compare(c.prev, c.row) > 0 {
				return fmt.Errorf("%w: %s is not sorted by %s: %v follows %v",
					types.ErrOrdering, c.name, c.keys, c.row, c.prev)
			}
			return nil
		case types.KindHeader:
			return fmt.Errorf("%w: %s carries a second header", types.ErrSchema, c.name)
		}
	}
}

func (c *Cursor) Close() {
	if c.closer != nil {
		c.closer.Close()
		c.closer = nil
	}
	if p, ok := c.rd.(*pipe.Pipe); ok {
		p.CloseRead()
	}
}

// Row returns the cursor's front row; nil once the input is exhausted.
func (c *Cursor) Row() types.Row { return c.row }

// Done reports end of input.
func (c *Cursor) Done() bool { return c.done }

// Schema returns the input schema.
func (c *Cursor) Schema() *types.Schema { return c.schema }

// Key returns the key spec bound to this input's schema.
func (c *Cursor) Key() *types.BoundKey { return c.key }
