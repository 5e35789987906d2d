/*
Copyright © 2025 KLS Core Contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package executor_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kotlinlsp.dev/core/executor"
)

func TestSubmit_OrdersTasksWithinOneKind(t *testing.T) {
	p := executor.NewPool()
	defer p.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		i := i
		p.Submit(executor.OpHover, func(context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	for i, v := range order {
		require.Equal(t, i, v, "tasks submitted to the same op kind must run in submission order")
	}
}

func TestSubmit_DifferentKindsRunConcurrently(t *testing.T) {
	p := executor.NewPool()
	defer p.Close()

	release := make(chan struct{})
	started := make(chan executor.OpKind, 2)

	p.Submit(executor.OpHover, func(context.Context) {
		started <- executor.OpHover
		<-release
	})
	p.Submit(executor.OpDefinition, func(context.Context) {
		started <- executor.OpDefinition
		<-release
	})

	seen := map[executor.OpKind]bool{}
	for i := 0; i < 2; i++ {
		select {
		case kind := <-started:
			seen[kind] = true
		case <-time.After(2 * time.Second):
			t.Fatal("a slow task on one kind blocked a task on another kind from starting")
		}
	}
	close(release)
	require.True(t, seen[executor.OpHover])
	require.True(t, seen[executor.OpDefinition])
}

func TestSubmitAsync_RunsOutsideAnySerialQueue(t *testing.T) {
	p := executor.NewPool()
	defer p.Close()

	done := make(chan struct{})
	p.SubmitAsync(func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async task never ran")
	}
}

func TestClose_WaitsForInFlightWorkThenReturns(t *testing.T) {
	p := executor.NewPool()
	var ran atomic.Bool
	p.Submit(executor.OpCompletion, func(context.Context) {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)
	})
	p.Close()
	require.True(t, ran.Load(), "Close must await queued work instead of abandoning it")
}

func TestSubmit_RejectedAfterClose(t *testing.T) {
	p := executor.NewPool()
	p.Close()
	accepted := p.Submit(executor.OpReferences, func(context.Context) {})
	require.False(t, accepted, "submissions after Close must be rejected")
}

func TestClose_ForceTerminatesTasksThatIgnoreContext(t *testing.T) {
	old := executor.ShutdownTimeout
	executor.ShutdownTimeout = 20 * time.Millisecond
	defer func() { executor.ShutdownTimeout = old }()

	p := executor.NewPool()
	unblocked := make(chan struct{})
	p.Submit(executor.OpDefinition, func(ctx context.Context) {
		<-ctx.Done()
		close(unblocked)
	})

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return within the shutdown grace window")
	}
	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("task never observed context cancellation after force-terminate")
	}
}
