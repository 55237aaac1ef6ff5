package events

import "testing"

func TestPublishRoutesByUser(t *testing.T) {
	b := NewBus()
	alice := b.Subscribe("alice")
	bob := b.Subscribe("bob")
	all := b.Subscribe("")
	defer b.Unsubscribe(alice)
	defer b.Unsubscribe(bob)
	defer b.Unsubscribe(all)

	b.Publish(Event{Type: TypeDepositApproved, UserID: "alice", Data: "d1"})

	select {
	case evt := <-alice:
		if evt.Type != TypeDepositApproved || evt.TS == 0 {
			t.Fatalf("unexpected event %+v", evt)
		}
	default:
		t.Fatal("alice did not receive her event")
	}
	select {
	case evt := <-bob:
		t.Fatalf("bob received %+v", evt)
	default:
	}
	if len(all) != 1 {
		t.Fatalf("firehose subscriber got %d events", len(all))
	}
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe("u")
	for i := 0; i < cap(ch)+10; i++ {
		b.Publish(Event{Type: TypeBalance, UserID: "u"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("len = %d, cap = %d", len(ch), cap(ch))
	}
	b.Unsubscribe(ch)
	// second unsubscribe must not double-close
	b.Unsubscribe(ch)
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Publish(Event{Type: TypeBalance})
}
