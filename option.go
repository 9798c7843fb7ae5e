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

package flatdb

import (
	"github.com/rulego/flatdb/logger"
)

// WithLogLevel sets the global log level.
//
// Example:
//
//	p := flatdb.NewPipeline(flatdb.WithLogLevel(logger.DEBUG))
func WithLogLevel(level logger.Level) PipelineOption {
	return func(p *Pipeline) {
		logger.GetDefault().SetLevel(level)
	}
}

// WithDiscardLog disables log output entirely. Suits embedded use
// where the host application does its own reporting.
func WithDiscardLog() PipelineOption {
	return func(p *Pipeline) {
		l := logger.NewDiscardLogger()
		logger.SetDefault(l)
		p.log = l
	}
}
