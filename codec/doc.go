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

// Package codec reads and writes the self-describing flat-table stream
// format. A stream is line-oriented text: a header line declaring the
// field separator and column names, then one data row or comment per
// line.
//
// Header syntax:
//
//	#flatdb [-F CODE] col1 col2 ... colN
//
// The header line is always tokenized on whitespace, whatever separator
// it declares for the data rows. Comment lines start with "#" and pass
// through filters unchanged.
package codec
