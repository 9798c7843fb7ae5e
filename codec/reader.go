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

package codec

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rulego/flatdb/types"
)

// HeaderMarker opens every stream header line.
const HeaderMarker = "#flatdb"

// CommentPrefix opens comment lines.
const CommentPrefix = "#"

// sepFlag introduces the separator code inside the header.
const sepFlag = "-F"

// Reader decodes a flat-table stream from an io.Reader. The header is
// parsed eagerly at construction so Schema is available before the
// first ReadItem.
type Reader struct {
	scanner    *bufio.Scanner
	schema     *types.Schema
	sentHeader bool
	closed     bool
	line       int
}

// NewReader parses the header of r and returns a reader positioned
// before the first record. A malformed header is fatal.
func NewReader(r io.Reader) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	rd := &Reader{scanner: sc}
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("%w: reading header: %v", types.ErrResource, err)
		}
		return nil, fmt.Errorf("%w: empty stream, no header", types.ErrSchema)
	}
	rd.line = 1
	schema, err := ParseHeader(sc.Text())
	if err != nil {
		return nil, err
	}
	rd.schema = schema
	return rd, nil
}

// ParseHeader decodes one header line into a schema.
func ParseHeader(line string) (*types.Schema, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != HeaderMarker {
		return nil, fmt.Errorf("%w: header must begin with %q, got %q", types.ErrSchema, HeaderMarker, line)
	}
	fields = fields[1:]
	sep := types.SepDefault
	if len(fields) >= 1 && fields[0] == sepFlag {
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: header %s flag without code", types.ErrSchema, sepFlag)
		}
		var err error
		sep, err = types.ParseSeparator(fields[1])
		if err != nil {
			return nil, err
		}
		fields = fields[2:]
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: header declares no columns", types.ErrSchema)
	}
	return types.NewSchema(sep, fields...)
}

// FormatHeader renders the header line for a schema.
func FormatHeader(schema *types.Schema) string {
	var b strings.Builder
	b.WriteString(HeaderMarker)
	if schema.Sep != types.SepDefault {
		b.WriteString(" ")
		b.WriteString(sepFlag)
		b.WriteString(" ")
		b.WriteString(string(schema.Sep))
	}
	for _, c := range schema.Columns {
		b.WriteString(" ")
		b.WriteString(c)
	}
	return b.String()
}

// Schema returns the stream schema. Fixed for the reader's lifetime.
func (r *Reader) Schema() *types.Schema { return r.schema }

// ReadItem returns the next stream item: the header first, then rows
// and comments in input order, then io.EOF. A data row whose arity does
// not match the header is fatal.
func (r *Reader) ReadItem() (types.Item, error) {
	if !r.sentHeader {
		r.sentHeader = true
		return types.HeaderItem(r.schema), nil
	}
	if r.closed {
		return types.Item{}, io.EOF
	}
	if !r.scanner.Scan() {
		r.closed = true
		if err := r.scanner.Err(); err != nil {
			return types.Item{}, fmt.Errorf("%w: %v", types.ErrResource, err)
		}
		return types.Item{}, io.EOF
	}
	r.line++
	line := r.scanner.Text()
	if strings.HasPrefix(line, CommentPrefix) {
		return types.CommentItem(line), nil
	}
	row := types.Row(r.schema.Sep.Split(line))
	if len(row) != len(r.schema.Columns) {
		return types.Item{}, fmt.Errorf("%w: line %d has %d fields, header declares %d",
			types.ErrSchema, r.line, len(row), len(r.schema.Columns))
	}
	return types.RowItem(row), nil
}

// Close marks the reader exhausted. Subsequent reads return io.EOF.
func (r *Reader) Close() error {
	r.closed = true
	return nil
}
