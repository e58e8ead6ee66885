package event

import "testing"

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()

	var got []RelationChanged
	Subscribe(b, func(ev RelationChanged) {
		got = append(got, ev)
	})

	Publish(b, RelationChanged{TerritoryID: "T000001", OtherID: "T000002", Relation: 5})

	if len(got) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(got))
	}
	if got[0].TerritoryID != "T000001" || got[0].OtherID != "T000002" {
		t.Errorf("event = %+v", got[0])
	}
}

func TestBus_TypedDelivery(t *testing.T) {
	b := NewBus()

	relations := 0
	deletions := 0
	Subscribe(b, func(RelationChanged) { relations++ })
	Subscribe(b, func(TerritoryDeleted) { deletions++ })

	Publish(b, RelationChanged{})
	Publish(b, RelationChanged{})
	Publish(b, TerritoryDeleted{})

	if relations != 2 {
		t.Errorf("relation handler calls = %d, want 2", relations)
	}
	if deletions != 1 {
		t.Errorf("deletion handler calls = %d, want 1", deletions)
	}
}

func TestBus_SubscriptionOrder(t *testing.T) {
	b := NewBus()

	var order []int
	Subscribe(b, func(ChunksLost) { order = append(order, 1) })
	Subscribe(b, func(ChunksLost) { order = append(order, 2) })
	Subscribe(b, func(ChunksLost) { order = append(order, 3) })

	Publish(b, ChunksLost{})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order = %v, want [1 2 3]", order)
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	b := NewBus()
	// Publishing with no handlers must not panic.
	Publish(b, VassalAccepted{OverlordID: "R000001", VassalID: "T000001"})
}
