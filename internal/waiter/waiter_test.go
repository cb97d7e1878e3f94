package waiter

import (
	"testing"
	"time"
)

func TestKeyWaiterWakesAllSubscribers(t *testing.T) {
	w := New[string]()
	a := w.Subscribe("k")
	b := w.Subscribe("k")

	w.Publish("k")

	for _, ch := range []<-chan struct{}{a, b} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber was not woken by Publish")
		}
	}
}

func TestKeyWaiterPublishOnlyAffectsItsOwnKey(t *testing.T) {
	w := New[string]()
	other := w.Subscribe("other")
	w.Publish("k")

	select {
	case <-other:
		t.Fatal("subscriber on a different key was woken")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestKeyWaiterUnsubscribeDoesNotClose(t *testing.T) {
	w := New[string]()
	ch := w.Subscribe("k")
	w.Unsubscribe("k", ch)

	select {
	case <-ch:
		t.Fatal("Unsubscribe must not close the channel")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestKeyWaiterPublishWithNoSubscribersIsNoop(t *testing.T) {
	w := New[int]()
	w.Publish(42) // must not panic
}
