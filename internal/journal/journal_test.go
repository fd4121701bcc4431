package journal

import (
	"sync"
	"testing"
)

func TestAppendAssignsGaplessSequence(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	const session = "sess-1"
	for i := 0; i < 5; i++ {
		e, err := j.Append(session, KindTurnAdded, map[string]any{"i": i})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if e.SeqNo != uint64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, e.SeqNo)
		}
	}
}

func TestListEventsOrdersAndPersists(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const session = "sess-2"
	for i := 0; i < 3; i++ {
		if _, err := j.Append(session, KindToolExecuted, map[string]any{"i": i}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen against the same directory: sequence numbers must continue
	// from where they left off (recovered by scanning the existing file).
	j2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()

	events, err := j2.ListEvents(session)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for idx, e := range events {
		if e.SeqNo != uint64(idx+1) {
			t.Fatalf("event %d: expected seq %d, got %d", idx, idx+1, e.SeqNo)
		}
	}

	e, err := j2.Append(session, KindTurnAdded, nil)
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if e.SeqNo != 4 {
		t.Fatalf("expected continued seq 4, got %d", e.SeqNo)
	}
}

func TestListEventsMissingSessionReturnsEmpty(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	events, err := j.ListEvents("never-seen")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestRebuildProjectsCheckpointsAndSubagents(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	const session = "sess-3"
	mustAppend := func(kind Kind, fields map[string]any) {
		t.Helper()
		if _, err := j.Append(session, kind, fields); err != nil {
			t.Fatalf("Append(%s): %v", kind, err)
		}
	}

	mustAppend(KindSessionStarted, nil)
	mustAppend(KindCheckpointCreated, map[string]any{"checkpoint_id": "ckpt-1"})
	mustAppend(KindSubagentSpawned, map[string]any{"run_id": "run-a"})
	mustAppend(KindSubagentSpawned, map[string]any{"run_id": "run-b"})
	mustAppend(KindSubagentCompleted, map[string]any{"run_id": "run-a"})

	proj, err := j.Rebuild(session)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if proj.LatestCheckpoint != "ckpt-1" {
		t.Fatalf("expected latest checkpoint ckpt-1, got %q", proj.LatestCheckpoint)
	}
	if proj.OpenSubagents["run-a"] {
		t.Fatalf("run-a should be closed")
	}
	if !proj.OpenSubagents["run-b"] {
		t.Fatalf("run-b should still be open")
	}
	if proj.LastSeq != 5 {
		t.Fatalf("expected last seq 5, got %d", proj.LastSeq)
	}
}

func TestMultiSinkFansOutAndSkipsNil(t *testing.T) {
	var a, b []Envelope
	sinkA := sinkFunc(func(e Envelope) { a = append(a, e) })
	sinkB := sinkFunc(func(e Envelope) { b = append(b, e) })
	ms := NewMultiSink(sinkA, nil, sinkB)

	ms.Emit(Envelope{Kind: KindSessionStarted})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both sinks to observe the event, got a=%d b=%d", len(a), len(b))
	}
}

func TestBackpressureSinkNeverDropsLifecycleEvents(t *testing.T) {
	var received []Envelope
	var mu sync.Mutex
	out := sinkFunc(func(e Envelope) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	bs := NewBackpressureSink(out, BackpressureConfig{HighPriBuffer: 2, LowPriBuffer: 2})
	for i := 0; i < 10; i++ {
		bs.Emit(Envelope{Kind: KindToolExecuted, SeqNo: uint64(i)})
	}
	bs.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 10 {
		t.Fatalf("expected all 10 lifecycle events delivered, got %d", len(received))
	}
}

type sinkFunc func(Envelope)

func (f sinkFunc) Emit(e Envelope) { f(e) }
