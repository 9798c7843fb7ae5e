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
	"fmt"
	"io"
	"os"

	"github.com/rulego/flatdb/codec"
	"github.com/rulego/flatdb/pipe"
	"github.com/rulego/flatdb/types"
)

// StdioPath selects standard input or output as an endpoint.
const StdioPath = "-"

// Source describes where a filter reads its stream: a file path, "-"
// for standard input, an in-process pipe, or any prebuilt item reader.
type Source struct {
	Path   string
	Reader types.ItemReader
}

// FileSource reads from path ("-" for stdin).
func FileSource(path string) Source { return Source{Path: path} }

// ReaderSource reads from a prebuilt item reader such as a codec.Reader.
func ReaderSource(r types.ItemReader) Source { return Source{Reader: r} }

// PipeSource reads from an in-process pipe.
func PipeSource(p *pipe.Pipe) Source { return Source{Reader: p} }

// IsZero reports an unconfigured source.
func (s Source) IsZero() bool { return s.Path == "" && s.Reader == nil }

// Open yields the item reader for the source plus an optional closer
// for the underlying file.
func (s Source) Open() (types.ItemReader, io.Closer, error) {
	if s.Reader != nil {
		return s.Reader, nil, nil
	}
	if s.Path == "" {
		return nil, nil, fmt.Errorf("%w: no input configured", types.ErrConfig)
	}
	if s.Path == StdioPath {
		r, err := codec.NewReader(os.Stdin)
		return r, nil, err
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

// Sink describes where a filter writes its stream: a file path, "-"
// for standard output, an in-process pipe, or any prebuilt writer.
type Sink struct {
	Path   string
	Writer types.ItemWriteCloser
}

// FileSink writes to path ("-" for stdout).
func FileSink(path string) Sink { return Sink{Path: path} }

// WriterSink writes to a prebuilt item writer.
func WriterSink(w types.ItemWriteCloser) Sink { return Sink{Writer: w} }

// PipeSink writes to an in-process pipe.
func PipeSink(p *pipe.Pipe) Sink { return Sink{Writer: p} }

// IsZero reports an unconfigured sink.
func (s Sink) IsZero() bool { return s.Path == "" && s.Writer == nil }

// nopCloser hides the Closer of a writer that must outlive the filter.
type nopCloser struct {
	io.Writer
}

// LazySink defers opening a sink until the producing stage knows its
// schema: the first written item must be the header, which opens the
// underlying sink. Filters whose output schema emerges mid-run (merge,
// group-by) write through this.
func LazySink(s Sink) types.ItemWriteCloser {
	return &lazySink{sink: s}
}

type lazySink struct {
	sink Sink
	out  types.ItemWriteCloser
}

func (l *lazySink) WriteItem(item types.Item) error {
	if l.out == nil {
		if item.Kind != types.KindHeader {
			return fmt.Errorf("%w: first output item must be a header", types.ErrSchema)
		}
		out, err := l.sink.Open(item.Schema)
		if err != nil {
			return err
		}
		l.out = out
		return nil
	}
	return l.out.WriteItem(item)
}

func (l *lazySink) Close() error {
	if l.out == nil {
		return nil
	}
	return l.out.Close()
}

// Open commits schema to the sink and returns its writer. A pipe sink
// receives the schema as a leading header item; a path sink gets a
// codec writer over the created file.
func (s Sink) Open(schema *types.Schema) (types.ItemWriteCloser, error) {
	if s.Writer != nil {
		if err := s.Writer.WriteItem(types.HeaderItem(schema)); err != nil {
			return nil, err
		}
		return s.Writer, nil
	}
	if s.Path == "" {
		return nil, fmt.Errorf("%w: no output configured", types.ErrConfig)
	}
	if s.Path == StdioPath {
		// Stdout stays open; only the buffer is flushed on Close.
		return codec.NewWriter(nopCloser{os.Stdout}, schema), nil
	}
	f, err := os.Create(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", types.ErrResource, s.Path, err)
	}
	return codec.NewWriter(f, schema), nil
}
