package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeFiltersByPrefix(t *testing.T) {
	b := New()
	reg, unsubReg := b.Subscribe(4, "registry.")
	all, unsubAll := b.Subscribe(4)
	defer unsubReg()
	defer unsubAll()

	b.Publish(Event{Topic: TopicRegistrySet, Data: 1})
	b.Publish(Event{Topic: TopicRouted, Data: 2})

	select {
	case e := <-reg:
		if e.Topic != TopicRegistrySet || e.Time.IsZero() {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("registry event not delivered")
	}
	select {
	case e := <-reg:
		t.Fatalf("filtered subscriber got %+v", e)
	default:
	}
	if len(all) != 2 {
		t.Fatalf("catch-all subscriber has %d events, want 2", len(all))
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Topic: "a"})
	b.Publish(Event{Topic: "b"})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open")
	}
	b.Publish(Event{Topic: "after"})
}
