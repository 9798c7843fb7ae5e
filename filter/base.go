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

package filter

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rulego/flatdb/codec"
	"github.com/rulego/flatdb/logger"
	"github.com/rulego/flatdb/pipe"
	"github.com/rulego/flatdb/types"
)

// Base carries the state every filter shares: endpoints, schema
// bookkeeping, comment passthrough, the provenance comment and the
// consumption invariant. Concrete filters embed it and implement their
// row logic in Setup and Run.
type Base struct {
	Name string
	Args []string
	Log  logger.Logger
	Cfg  types.Config

	In  Source
	Out Sink

	// NoComments marks a terminal sink that drops input comments.
	NoComments bool
	// NoProvenance suppresses the trailing provenance comment.
	NoProvenance bool

	in       types.ItemReader
	inCloser io.Closer
	out      types.ItemWriteCloser
	inSchema *types.Schema
	sawEOF   bool
	outOpen  bool
}

// Init fills the zero-value defaults. Filters call it from their
// constructors before applying options.
func (b *Base) Init(name string) {
	b.Name = name
	b.Log = logger.GetDefault()
	b.Cfg = types.Default()
	b.Out = FileSink(StdioPath)
}

// OpenInput opens the configured source and consumes its header. The
// returned schema is fixed for the stream's lifetime.
func (b *Base) OpenInput() (*types.Schema, error) {
	if b.in != nil {
		return b.inSchema, nil
	}
	in, closer, err := b.In.Open()
	if err != nil {
		return nil, err
	}
	b.in, b.inCloser = in, closer
	item, err := in.ReadItem()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: input ended before header", types.ErrSchema)
		}
		return nil, err
	}
	if item.Kind != types.KindHeader || item.Schema == nil {
		return nil, fmt.Errorf("%w: first input item is not a header", types.ErrSchema)
	}
	b.inSchema = item.Schema
	return b.inSchema, nil
}

// InputSchema returns the schema committed by OpenInput.
func (b *Base) InputSchema() *types.Schema { return b.inSchema }

// NextItem reads the next input record, tracking end-of-stream for the
// consumption check.
func (b *Base) NextItem() (types.Item, error) {
	item, err := b.in.ReadItem()
	if err == io.EOF {
		b.sawEOF = true
	}
	return item, err
}

// OpenOutput commits schema to the configured sink.
func (b *Base) OpenOutput(schema *types.Schema) error {
	out, err := b.Out.Open(schema)
	if err != nil {
		return err
	}
	b.out, b.outOpen = out, true
	return nil
}

// WriteRow emits one data row.
func (b *Base) WriteRow(row types.Row) error {
	return b.out.WriteItem(types.RowItem(row))
}

// WriteItem emits one output item, dropping comments when the filter is
// a terminal sink.
func (b *Base) WriteItem(item types.Item) error {
	if item.Kind == types.KindComment && b.NoComments {
		return nil
	}
	return b.out.WriteItem(item)
}

// PassComment forwards one input comment to the output.
func (b *Base) PassComment(item types.Item) error {
	return b.WriteItem(item)
}

// Output exposes the opened output writer to helpers that stream into
// it directly.
func (b *Base) Output() types.ItemWriteCloser { return b.out }

// SetOutput installs a writer opened by the filter itself, e.g. a lazy
// sink whose schema only emerges mid-run. CloseOutput will close it.
func (b *Base) SetOutput(w types.ItemWriteCloser) {
	b.out, b.outOpen = w, true
}

// MarkConsumed records that the filter deliberately read its input to
// end-of-stream by other means than NextItem.
func (b *Base) MarkConsumed() { b.sawEOF = true }

// Consumed reports whether the input reached end-of-stream.
func (b *Base) Consumed() bool { return b.sawEOF }

// Provenance returns the comment describing this invocation.
func (b *Base) Provenance() string {
	if len(b.Args) == 0 {
		return fmt.Sprintf("%s | %s", codec.CommentPrefix, b.Name)
	}
	return fmt.Sprintf("%s | %s %s", codec.CommentPrefix, b.Name, strings.Join(b.Args, " "))
}

// CloseOutput appends the provenance comment and closes the output
// side, propagating end-of-stream to the consumer.
func (b *Base) CloseOutput() error {
	if !b.outOpen {
		return nil
	}
	b.outOpen = false
	var firstErr error
	if !b.NoProvenance && !b.NoComments {
		if err := b.out.WriteItem(types.CommentItem(b.Provenance())); err != nil &&
			!errors.Is(err, types.ErrClosedPipe) {
			firstErr = err
		}
	}
	if err := b.out.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Finish implements the default filter epilogue: verify full input
// consumption, close the output, release the input file. Filters with
// extra teardown override it and call it last.
func (b *Base) Finish() error {
	closeErr := b.CloseOutput()
	if b.inCloser != nil {
		b.inCloser.Close()
		b.inCloser = nil
	}
	if b.in != nil && !b.sawEOF {
		// Unblock a producer stuck behind a full pipe before raising.
		if p, ok := b.in.(*pipe.Pipe); ok {
			p.CloseRead()
		}
		return fmt.Errorf("%w: %s exited without consuming its input", types.ErrConsumption, b.Name)
	}
	return closeErr
}

// Abort closes both sides so peers observe end-of-stream or a broken
// pipe. Used when a filter fails mid-run.
func (b *Base) Abort() {
	if b.outOpen {
		b.out.Close()
		b.outOpen = false
	}
	if b.inCloser != nil {
		b.inCloser.Close()
		b.inCloser = nil
	}
	if p, ok := b.in.(*pipe.Pipe); ok {
		p.CloseRead()
	}
}
