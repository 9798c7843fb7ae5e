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

// Package filter provides the common lifecycle shared by every stream
// filter: configure at construction, Setup reads the input header and
// commits the output schema, Run streams records, Finish flushes and
// closes the output. The Base type carries the input/output endpoints,
// comment passthrough and the consumption invariant so concrete filters
// only implement their row logic.
package filter

import (
	"errors"
	"io"
)

// Filter is one stage of a stream pipeline.
type Filter interface {
	// Setup reads the input header and commits the output schema.
	Setup() error
	// Run streams rows until end of input.
	Run() error
	// Finish flushes and closes the output and verifies the input was
	// fully consumed.
	Finish() error
}

// Invoke drives a filter through its whole lifecycle. Finish runs even
// when Run fails so the output side is closed and peers observe
// end-of-stream; the first error wins.
func Invoke(f Filter) error {
	if err := f.Setup(); err != nil {
		return err
	}
	runErr := f.Run()
	finErr := f.Finish()
	if runErr != nil {
		return runErr
	}
	return finErr
}

// IsEOF reports whether err is a plain end-of-stream.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
