package store

import "testing"

func TestSubscribeDisposerStopsDelivery(t *testing.T) {
	var a, b int
	offA := Subscribe("x:change", func(Event) { a++ })
	offB := Subscribe("x:change", func(Event) { b++ })
	publish(Event{Name: "x:change"})
	offA()
	publish(Event{Name: "x:change"})
	offB()
	publish(Event{Name: "x:change"})
	if a != 1 {
		t.Fatalf("a: expected 1 delivery, got %d", a)
	}
	if b != 2 {
		t.Fatalf("b: expected 2 deliveries, got %d", b)
	}
}

func TestDisposerIsIdempotent(t *testing.T) {
	var n int
	off := Subscribe("y:change", func(Event) { n++ })
	off()
	off()
	publish(Event{Name: "y:change"})
	if n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}
}

func TestCallbackMaySubscribeDuringDelivery(t *testing.T) {
	var late int
	var offLate func()
	off := Subscribe("z:change", func(Event) {
		if offLate == nil {
			offLate = Subscribe("z:change", func(Event) { late++ })
		}
	})
	defer off()
	publish(Event{Name: "z:change"})
	publish(Event{Name: "z:change"})
	if offLate != nil {
		defer offLate()
	}
	if late != 1 {
		t.Fatalf("late subscriber: expected 1 delivery, got %d", late)
	}
}

func TestEventsAreScopedByName(t *testing.T) {
	var n int
	off := Subscribe(ChangeEvent("posts"), func(Event) { n++ })
	defer off()
	publish(Event{Name: ChangeEvent("comments")})
	if n != 0 {
		t.Fatalf("posts subscriber saw a comments event")
	}
}
