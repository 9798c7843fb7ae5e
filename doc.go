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

// Package flatdb is a toolkit for transforming tabular, self-describing
// flat-text data streams through composable filters, executed from a
// shell or wired together in-process. Every stream carries a header
// declaring its field separator and column names; every filter reads
// such a stream and writes a compatible one, so shell pipelines behave
// as a lightweight relational algebra over ordinary files:
//
//	dbsort -n cid < courses | dbjoin -i enrolled -n cid | dbmapreduce -k cid --count
//
// This package holds the in-process pipeline builder; the engine lives
// in the subpackages (codec, pipe, filter, sorter, merger, joiner,
// groupby) and the CLI tools under cmd.
package flatdb
