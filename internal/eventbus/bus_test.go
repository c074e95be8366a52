package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeReminderFired, Data: ReminderEvent{ID: "1", Title: "Workout"}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeReminderFired || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
			if d, ok := e.Data.(ReminderEvent); !ok || d.Title != "Workout" {
				t.Fatalf("unexpected payload %#v", e.Data)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"}) // must not block
	if e := <-ch; e.Type != "a" {
		t.Fatalf("got %q, want a", e.Type)
	}
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	b.Publish(Event{Type: "c"})
}
