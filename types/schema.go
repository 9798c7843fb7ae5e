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

package types

import (
	"fmt"
	"strings"
)

// DefaultEmpty is the on-wire token for a null field unless the stream
// configures another one.
const DefaultEmpty = "-"

// Separator identifies the field separator of a stream. The zero value
// selects the default behavior: runs of whitespace on read, a single tab
// on write.
type Separator string

const (
	// SepDefault is the separator used when the header carries no code.
	SepDefault Separator = ""
	// SepTab is a single tab on both read and write (code "D").
	SepTab Separator = "D"
	// SepSpace is a single space on both read and write (code "S").
	SepSpace Separator = "S"
	// SepMultiSpace reads one or more spaces and writes a single space
	// (code "s").
	SepMultiSpace Separator = "s"
	// SepLiteralTab is a literal tab (code "t").
	SepLiteralTab Separator = "t"
	// SepComma is a comma; line-based CSV without quoting (code "C").
	SepComma Separator = "C"
	// SepWhitespace reads any run of whitespace. Write-side it behaves
	// like SepDefault (code "W").
	SepWhitespace Separator = "W"
)

// ParseSeparator maps a header separator code to a Separator.
func ParseSeparator(code string) (Separator, error) {
	switch Separator(code) {
	case SepDefault, SepTab, SepSpace, SepMultiSpace, SepLiteralTab, SepComma, SepWhitespace:
		return Separator(code), nil
	}
	return SepDefault, fmt.Errorf("%w: unknown separator code %q", ErrSchema, code)
}

// Split breaks one data line into fields.
func (s Separator) Split(line string) []string {
	switch s {
	case SepDefault, SepWhitespace:
		return strings.Fields(line)
	case SepTab, SepLiteralTab:
		return strings.Split(line, "\t")
	case SepSpace:
		return strings.Split(line, " ")
	case SepMultiSpace:
		return strings.FieldsFunc(line, func(r rune) bool { return r == ' ' })
	case SepComma:
		return strings.Split(line, ",")
	}
	return strings.Fields(line)
}

// Delim returns the string joining fields on write.
func (s Separator) Delim() string {
	switch s {
	case SepSpace, SepMultiSpace:
		return " "
	case SepComma:
		return ","
	}
	return "\t"
}

// Collapsing reports whether the separator merges adjacent delimiters on
// read, so that an empty field cannot be represented by two delimiters in
// a row.
func (s Separator) Collapsing() bool {
	switch s {
	case SepDefault, SepWhitespace, SepMultiSpace:
		return true
	}
	return false
}

// Schema describes one stream: its separator code, its ordered column
// names and the token rendering a null field. A consumer's view of the
// schema is fixed for the lifetime of the stream.
type Schema struct {
	Sep     Separator
	Columns []string
	Empty   string

	index map[string]int
}

// NewSchema builds a schema over the given columns with the default
// empty token. Column names must be unique.
func NewSchema(sep Separator, columns ...string) (*Schema, error) {
	s := &Schema{Sep: sep, Columns: columns, Empty: DefaultEmpty}
	if err := s.buildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSchema is NewSchema for statically known column lists.
func MustSchema(sep Separator, columns ...string) *Schema {
	s, err := NewSchema(sep, columns...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) buildIndex() error {
	s.index = make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		if c == "" {
			return fmt.Errorf("%w: empty column name at position %d", ErrSchema, i)
		}
		if _, dup := s.index[c]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrSchema, c)
		}
		s.index[c] = i
	}
	return nil
}

// ColumnIndex resolves a column name to its position. Name resolution
// happens once at filter setup; per-row access uses the returned index.
func (s *Schema) ColumnIndex(name string) (int, error) {
	if s.index == nil {
		if err := s.buildIndex(); err != nil {
			return 0, err
		}
	}
	i, ok := s.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: no column %q in [%s]", ErrSchema, name, strings.Join(s.Columns, ","))
	}
	return i, nil
}

// HasColumn reports whether name is a column of the schema.
func (s *Schema) HasColumn(name string) bool {
	_, err := s.ColumnIndex(name)
	return err == nil
}

// Clone returns an independent copy of the schema.
func (s *Schema) Clone() *Schema {
	cols := make([]string, len(s.Columns))
	copy(cols, s.Columns)
	c := &Schema{Sep: s.Sep, Columns: cols, Empty: s.Empty}
	c.buildIndex()
	return c
}

// Compatible reports whether two streams may be merged or concatenated:
// identical separator codes, column names and column order.
func (s *Schema) Compatible(other *Schema) bool {
	if other == nil || s.Sep != other.Sep || len(s.Columns) != len(other.Columns) {
		return false
	}
	for i, c := range s.Columns {
		if other.Columns[i] != c {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	code := string(s.Sep)
	if code == "" {
		code = "default"
	}
	return fmt.Sprintf("schema(%s: %s)", code, strings.Join(s.Columns, ","))
}
