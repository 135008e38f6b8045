package syncengine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orchardfs/orchard/internal/actionqueue"
	"github.com/orchardfs/orchard/internal/remote"
)

func newTestWorkerPool(t *testing.T) *WorkerPool {
	t.Helper()

	s := newTestStore(t)
	adapter := remote.NewMockAdapter()
	queue := actionqueue.New(s, testLogger(), 3, 0, 0)
	heartbeat := NewHeartbeat(adapter, testLogger())

	exec, _, _, _ := newTestExecutor(t)

	return NewWorkerPool(queue, exec, heartbeat, testLogger())
}

func TestWorkerPool_RecordFailureCapsDiagnosticSlice(t *testing.T) {
	wp := newTestWorkerPool(t)

	for i := 0; i < maxRecordedErrors+10; i++ {
		wp.recordFailure(errors.New("boom"))
	}

	_, failed, errs := wp.Stats()
	assert.EqualValues(t, maxRecordedErrors+10, failed)
	assert.Len(t, errs, maxRecordedErrors)
	assert.EqualValues(t, 10, wp.DroppedErrors())
}

func TestWorkerPool_RecordFailureIgnoresNil(t *testing.T) {
	wp := newTestWorkerPool(t)
	wp.recordFailure(nil)

	_, failed, _ := wp.Stats()
	assert.EqualValues(t, 0, failed)
}
