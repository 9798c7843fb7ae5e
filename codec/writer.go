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

// Writer encodes a flat-table stream onto an io.Writer. The schema is
// fixed at construction; the header line is emitted before the first
// record, or by Close for an empty stream.
type Writer struct {
	bw         *bufio.Writer
	schema     *types.Schema
	wroteHead  bool
	closed     bool
	closer     io.Closer
	delim      string
	empty      string
	collapsing bool
}

// NewWriter builds a writer for schema on w.
func NewWriter(w io.Writer, schema *types.Schema) *Writer {
	empty := schema.Empty
	if empty == "" {
		empty = types.DefaultEmpty
	}
	wr := &Writer{
		bw:         bufio.NewWriter(w),
		schema:     schema.Clone(),
		delim:      schema.Sep.Delim(),
		empty:      empty,
		collapsing: schema.Sep.Collapsing(),
	}
	if c, ok := w.(io.Closer); ok {
		wr.closer = c
	}
	return wr
}

// NewWriterLike clones the schema of an existing reader, guaranteeing
// the output stream is schema-compatible with the input.
func NewWriterLike(w io.Writer, template *Reader) *Writer {
	return NewWriter(w, template.Schema())
}

// Schema returns the writer's schema.
func (w *Writer) Schema() *types.Schema { return w.schema }

// WriteItem encodes one item. A header item is checked for
// compatibility with the construction schema rather than re-emitted; a
// row of the wrong arity is fatal.
func (w *Writer) WriteItem(item types.Item) error {
	if w.closed {
		return types.ErrClosedPipe
	}
	switch item.Kind {
	case types.KindHeader:
		if !w.schema.Compatible(item.Schema) {
			return fmt.Errorf("%w: writer expects %v, got %v", types.ErrSchema, w.schema, item.Schema)
		}
		return w.writeHeader()
	case types.KindComment:
		if err := w.writeHeader(); err != nil {
			return err
		}
		line := item.Comment
		if !strings.HasPrefix(line, CommentPrefix) {
			line = CommentPrefix + " " + line
		}
		return w.writeLine(line)
	case types.KindRow:
		if err := w.writeHeader(); err != nil {
			return err
		}
		if len(item.Row) != len(w.schema.Columns) {
			return fmt.Errorf("%w: row has %d fields, schema declares %d",
				types.ErrSchema, len(item.Row), len(w.schema.Columns))
		}
		fields := make([]string, len(item.Row))
		for i, f := range item.Row {
			fields[i] = w.escapeField(f)
		}
		return w.writeLine(strings.Join(fields, w.delim))
	}
	return fmt.Errorf("%w: unknown item kind %d", types.ErrSchema, item.Kind)
}

func (w *Writer) writeHeader() error {
	if w.wroteHead {
		return nil
	}
	w.wroteHead = true
	return w.writeLine(FormatHeader(w.schema))
}

func (w *Writer) writeLine(line string) error {
	if _, err := w.bw.WriteString(line); err != nil {
		return fmt.Errorf("%w: %v", types.ErrResource, err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: %v", types.ErrResource, err)
	}
	return nil
}

// escapeField renders one field so the line splits back to the same
// arity. A null value becomes the empty token; newlines never survive;
// runs of separator characters inside the value collapse to the empty
// token.
func (w *Writer) escapeField(f string) string {
	if f == "" {
		return w.empty
	}
	if strings.ContainsAny(f, "\n\r") {
		f = strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' {
				return ' '
			}
			return r
		}, f)
	}
	if w.collapsing {
		if strings.ContainsAny(f, " \t") {
			f = collapseRuns(f, func(r rune) bool { return r == ' ' || r == '\t' }, w.empty)
		}
		return f
	}
	if strings.Contains(f, w.delim) {
		f = collapseRuns(f, func(r rune) bool { return strings.ContainsRune(w.delim, r) }, w.empty)
	}
	return f
}

// collapseRuns replaces each maximal run of separator runes with token.
func collapseRuns(s string, isSep func(rune) bool, token string) string {
	var b strings.Builder
	inRun := false
	for _, r := range s {
		if isSep(r) {
			if !inRun {
				b.WriteString(token)
				inRun = true
			}
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}

// Flush writes any buffered output, emitting the header first if no
// record has been written yet.
func (w *Writer) Flush() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrResource, err)
	}
	return nil
}

// Close flushes and, when the underlying writer is a closer, closes it.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if err := w.Flush(); err != nil {
		return err
	}
	w.closed = true
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			return fmt.Errorf("%w: %v", types.ErrResource, err)
		}
	}
	return nil
}
