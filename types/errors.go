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

import "errors"

// Error kinds. Every component wraps one of these so callers can route
// on errors.Is without parsing messages.
var (
	// ErrSchema covers malformed headers, arity mismatches, incompatible
	// headers for merge or concatenation and duplicate join columns.
	ErrSchema = errors.New("schema error")
	// ErrOrdering reports input declared sorted that is not.
	ErrOrdering = errors.New("ordering error")
	// ErrResource covers unopenable inputs, unwritable outputs and an
	// unusable temp directory.
	ErrResource = errors.New("resource error")
	// ErrConsumption reports a downstream filter that exited without
	// reading its input to end-of-stream.
	ErrConsumption = errors.New("consumption error")
	// ErrConfig covers missing keys, unsupported join types, missing
	// reducers and other invocation mistakes.
	ErrConfig = errors.New("configuration error")
	// ErrClosedPipe is returned by an enqueue on a pipe whose read side
	// has gone away. Writers that are still expected to produce treat it
	// as fatal; writers draining expected tail output ignore it.
	ErrClosedPipe = errors.New("pipe closed")
)
