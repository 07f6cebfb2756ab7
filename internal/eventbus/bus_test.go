package eventbus

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(2)
	defer unsub()

	b.Publish(Event{Type: TypePlanRescheduled, PlanID: "P1", Data: "d"})

	select {
	case e := <-ch:
		if e.Type != TypePlanRescheduled || e.PlanID != "P1" {
			t.Fatalf("unexpected event: %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("Publish must stamp a zero Time")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Second publish must not block even though nobody is reading.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: TypePlanCreated, PlanID: "P1"})
		b.Publish(Event{Type: TypePlanCreated, PlanID: "P2"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	e := <-ch
	if e.PlanID != "P1" {
		t.Fatalf("kept event = %+v, want P1", e)
	}
	select {
	case e := <-ch:
		t.Fatalf("overflow event was delivered: %+v", e)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)

	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// Must not panic on the closed channel.
	b.Publish(Event{Type: TypeSweepFailed, PlanID: "P1"})
}

func TestSubscribersAreIndependent(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	defer unsubA()
	c, unsubC := b.Subscribe(1)
	unsubC()

	b.Publish(Event{Type: TypePlanCreated, PlanID: "P1"})

	select {
	case e := <-a:
		if e.PlanID != "P1" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("live subscriber missed the event")
	}
	if _, ok := <-c; ok {
		t.Fatal("unsubscribed channel received an event")
	}
}
