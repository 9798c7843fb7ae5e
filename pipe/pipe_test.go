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

package pipe

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/flatdb/types"
)

func TestFIFOOrder(t *testing.T) {
	p := New(16)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Enqueue(types.RowItem(types.Row{fmt.Sprint(i)})))
	}
	assert.Equal(t, 10, p.Pending())
	for i := 0; i < 10; i++ {
		item, err := p.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), item.Row[0])
	}
	assert.Equal(t, 0, p.Pending())
}

func TestBlockingEnqueue(t *testing.T) {
	p := New(2)
	require.NoError(t, p.Enqueue(types.RowItem(types.Row{"a"})))
	require.NoError(t, p.Enqueue(types.RowItem(types.Row{"b"})))

	done := make(chan struct{})
	go func() {
		// Full pipe: this blocks until the consumer makes room.
		p.Enqueue(types.RowItem(types.Row{"c"}))
		close(done)
	}()
	item, err := p.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", item.Row[0])
	<-done
	assert.Equal(t, 2, p.Pending())
}

func TestCloseDrainsThenEOF(t *testing.T) {
	p := New(4)
	require.NoError(t, p.Enqueue(types.RowItem(types.Row{"x"})))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close()) // idempotent

	item, err := p.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "x", item.Row[0])
	_, err = p.Dequeue()
	assert.Equal(t, io.EOF, err)

	err = p.Enqueue(types.RowItem(types.Row{"y"}))
	assert.ErrorIs(t, err, types.ErrClosedPipe)
}

func TestTryDequeue(t *testing.T) {
	p := New(4)
	_, ok, err := p.TryDequeue()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Enqueue(types.CommentItem("# hi")))
	item, ok, err := p.TryDequeue()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "# hi", item.Comment)

	p.Close()
	_, _, err = p.TryDequeue()
	assert.Equal(t, io.EOF, err)
}

func TestCloseReadUnblocksProducer(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Enqueue(types.RowItem(types.Row{"a"})))
	errs := make(chan error, 1)
	go func() {
		errs <- p.Enqueue(types.RowItem(types.Row{"b"}))
	}()
	p.CloseRead()
	assert.ErrorIs(t, <-errs, types.ErrClosedPipe)
}

func TestEnqueueCopiesRows(t *testing.T) {
	p := New(4)
	row := types.Row{"original"}
	require.NoError(t, p.Enqueue(types.RowItem(row)))
	row[0] = "mutated"
	item, err := p.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "original", item.Row[0])
}

func TestConcurrentProducersConsumers(t *testing.T) {
	p := New(8)
	const perProducer = 100
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				p.Enqueue(types.RowItem(types.Row{"r"}))
			}
		}()
	}
	go func() {
		wg.Wait()
		p.Close()
	}()

	var mu sync.Mutex
	got := 0
	var cg sync.WaitGroup
	for w := 0; w < 3; w++ {
		cg.Add(1)
		go func() {
			defer cg.Done()
			for {
				if _, err := p.Dequeue(); err != nil {
					return
				}
				mu.Lock()
				got++
				mu.Unlock()
			}
		}()
	}
	cg.Wait()
	assert.Equal(t, 4*perProducer, got)
}
