package realtime

import (
	"testing"
	"time"

	"github.com/nimbuscorp/syncengine/internal/model"
)

func newTestQueue(t *testing.T) *OfflineQueue {
	t.Helper()
	q, err := OpenOfflineQueue(t.TempDir())
	if err != nil {
		t.Fatalf("OpenOfflineQueue() error = %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestQueueEnqueueDrain(t *testing.T) {
	q := newTestQueue(t)
	env := Envelope{MessageID: "m1", TenantID: "t1", RecipientID: "u2", InteractionClass: model.ClassB, Timestamp: time.Now()}
	if err := q.Enqueue("t1", "u2", env, time.Hour, 10); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	drained, err := q.Drain("t1", "u2")
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if len(drained) != 1 || drained[0].MessageID != "m1" {
		t.Errorf("Drain() = %+v, want one message m1", drained)
	}
	// Draining again should yield nothing: delivered exactly once.
	drained2, err := q.Drain("t1", "u2")
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if len(drained2) != 0 {
		t.Errorf("second Drain() = %+v, want empty", drained2)
	}
}

func TestQueueRejectsOverCapacity(t *testing.T) {
	q := newTestQueue(t)
	env := Envelope{MessageID: "m1", TenantID: "t1", RecipientID: "u2", InteractionClass: model.ClassB, Timestamp: time.Now()}
	if err := q.Enqueue("t1", "u2", env, time.Hour, 1); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	env2 := env
	env2.MessageID = "m2"
	if err := q.Enqueue("t1", "u2", env2, time.Hour, 1); err == nil {
		t.Error("Enqueue() over capacity error = nil, want error")
	}
}

func TestQueueIsolatesTenants(t *testing.T) {
	q := newTestQueue(t)
	env := Envelope{MessageID: "m1", TenantID: "t1", RecipientID: "u2", InteractionClass: model.ClassB, Timestamp: time.Now()}
	if err := q.Enqueue("t1", "u2", env, time.Hour, 10); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	drained, err := q.Drain("t2", "u2")
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if len(drained) != 0 {
		t.Errorf("Drain() for different tenant = %+v, want empty", drained)
	}
}
