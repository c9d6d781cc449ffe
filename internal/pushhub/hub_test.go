// ABOUTME: Tests for the multicast push hub.
// ABOUTME: Covers subject matching, FIFO delivery, and the lagging flag on queue overflow.
package pushhub

import (
	"testing"
	"time"
)

func TestSubscribePublishDeliversMatchingSubject(t *testing.T) {
	h := New()
	sub := h.Subscribe(Subject{Kind: SubjectWorker, ID: "alpha"})
	defer h.Unsubscribe(sub)

	h.Publish(Subject{Kind: SubjectWorker, ID: "alpha"}, Event{Type: "worker:spawned"})
	h.Publish(Subject{Kind: SubjectWorker, ID: "beta"}, Event{Type: "worker:spawned"})

	select {
	case evt := <-sub.Events():
		if evt.Type != "worker:spawned" {
			t.Errorf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for matching event")
	}

	select {
	case evt := <-sub.Events():
		t.Fatalf("did not expect event for non-matching subject: %+v", evt)
	default:
	}
}

func TestSubscribeAllReceivesEveryEvent(t *testing.T) {
	h := New()
	sub := h.Subscribe(Subject{Kind: SubjectAll})
	defer h.Unsubscribe(sub)

	// SubjectAll is a subject of its own: publishers reach firehose
	// subscribers by also publishing each event on it, as
	// Supervisor.publish and swarmintel's Service.publish do.
	for _, p := range []struct {
		subj Subject
		evt  Event
	}{
		{Subject{Kind: SubjectWorker, ID: "alpha"}, Event{Type: "worker:spawned"}},
		{Subject{Kind: SubjectSwarm, ID: "s1"}, Event{Type: "swarm:created"}},
	} {
		h.Publish(p.subj, p.evt)
		h.Publish(Subject{Kind: SubjectAll}, p.evt)
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case evt := <-sub.Events():
			got[evt.Type] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	if !got["worker:spawned"] || !got["swarm:created"] {
		t.Errorf("expected both events, got %v", got)
	}

	select {
	case evt := <-sub.Events():
		t.Errorf("subject-specific publish reached the all subscriber a second time: %+v", evt)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := New()
	sub := h.Subscribe(Subject{Kind: SubjectAll})
	h.Unsubscribe(sub)

	// Publishing after unsubscribe must not panic or block.
	h.Publish(Subject{Kind: SubjectAll}, Event{Type: "x"})

	_, ok := <-sub.Events()
	if ok {
		t.Errorf("expected channel closed after unsubscribe")
	}

	// Double-unsubscribe is a no-op.
	h.Unsubscribe(sub)
}

// TestOverflowSetsLaggingAndDeliversMostRecent is scenario S7: a slow
// subscriber whose queue overflows receives a lagged event within one full
// queue cycle, and its subsequent messages are the most recent, not the
// oldest.
func TestOverflowSetsLaggingAndDeliversMostRecent(t *testing.T) {
	h := New()
	sub := h.Subscribe(Subject{Kind: SubjectAll})
	defer h.Unsubscribe(sub)

	// Fill the queue completely without draining.
	for i := 0; i < defaultQueueSize; i++ {
		h.Publish(Subject{Kind: SubjectAll}, Event{Type: "fill", Data: map[string]any{"i": i}})
	}
	if sub.Lagging() {
		t.Fatalf("should not be lagging yet: queue exactly full, not overflowed")
	}

	// One more publish overflows the queue.
	h.Publish(Subject{Kind: SubjectAll}, Event{Type: "overflow-trigger"})
	if !sub.Lagging() {
		t.Fatalf("expected lagging flag set after overflow")
	}

	// Drain the whole queue and confirm a lagged marker appears, and the
	// final entries are the most recent publishes, not "fill i=0".
	var drained []Event
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				t.Fatal("channel closed unexpectedly")
			}
			drained = append(drained, evt)
		default:
			goto done
		}
	}
done:
	if len(drained) == 0 {
		t.Fatal("expected at least one drained event")
	}

	foundLagged := false
	for _, e := range drained {
		if e.Type == laggedEventType {
			foundLagged = true
		}
	}
	if !foundLagged {
		t.Errorf("expected a lagged marker among drained events: %+v", drained)
	}

	last := drained[len(drained)-1]
	if last.Type != "overflow-trigger" {
		t.Errorf("expected the most recent publish to survive, got %+v", last)
	}
}

func TestPublishDoesNotBlockWhenSubscriberNeverDrains(t *testing.T) {
	h := New()
	sub := h.Subscribe(Subject{Kind: SubjectAll})
	defer h.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultQueueSize*3; i++ {
			h.Publish(Subject{Kind: SubjectAll}, Event{Type: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber queue")
	}
}
