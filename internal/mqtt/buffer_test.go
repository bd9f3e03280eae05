package mqtt

import (
	"testing"
)

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(10)
	if got := o.drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestOutboxPushAndDrain(t *testing.T) {
	o := newOutbox(10)
	for i := 0; i < 5; i++ {
		o.push(bufferedMsg{topic: TopicEvents, payload: []byte{byte(i)}})
	}
	if o.len() != 5 {
		t.Fatalf("len: got %d, want 5", o.len())
	}

	got := o.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := range got {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}

	if o.len() != 0 || o.drain() != nil {
		t.Error("outbox should be empty after drain")
	}
}

func TestOutboxDropsOldestWhenFull(t *testing.T) {
	o := newOutbox(3)
	for i := 0; i < 7; i++ {
		o.push(bufferedMsg{payload: []byte{byte(i)}})
	}

	if o.dropped != 4 {
		t.Errorf("dropped: got %d, want 4", o.dropped)
	}
	got := o.drain()
	want := []byte{4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].payload[0] != want[i] {
			t.Errorf("item %d: expected %d, got %d", i, want[i], got[i].payload[0])
		}
	}
	if o.dropped != 0 {
		t.Error("drain should reset the dropped counter")
	}
}

func TestOutboxDrainIsIndependentCopy(t *testing.T) {
	o := newOutbox(2)
	o.push(bufferedMsg{topic: "a"})
	got := o.drain()
	o.push(bufferedMsg{topic: "b"})

	if got[0].topic != "a" {
		t.Errorf("drained slice was overwritten: %q", got[0].topic)
	}
}

func TestOutboxPreservesMessageFields(t *testing.T) {
	o := newOutbox(1)
	o.push(bufferedMsg{topic: TopicSystem, payload: []byte("x"), qos: 1, retained: true})

	m := o.drain()[0]
	if m.topic != TopicSystem || string(m.payload) != "x" || m.qos != 1 || !m.retained {
		t.Errorf("unexpected message: %+v", m)
	}
}

func TestOutboxMinimumCapacity(t *testing.T) {
	o := newOutbox(0)
	o.push(bufferedMsg{topic: "a"})
	o.push(bufferedMsg{topic: "b"})

	got := o.drain()
	if len(got) != 1 || got[0].topic != "b" {
		t.Errorf("expected only the newest message, got %+v", got)
	}
}
