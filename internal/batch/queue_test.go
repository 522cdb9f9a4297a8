package batch

import (
	"testing"

	"captiond/pkg/types"
)

func TestQueueInsertionOrderAndDuplicates(t *testing.T) {
	q := NewQueue()
	a := q.Add("/data/a", "")
	b := q.Add("/data/b", "p")
	a2 := q.Add("/data/a", "") // duplicates are allowed, tracked independently

	items := q.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].ID != a.ID || items[1].ID != b.ID || items[2].ID != a2.ID {
		t.Fatalf("iteration order is not insertion order: %+v", items)
	}
	if a.ID == a2.ID {
		t.Fatalf("duplicate folders must get distinct ids")
	}
	if items[0].Status != types.ItemPending {
		t.Fatalf("new items must be pending, got %s", items[0].Status)
	}
}

func TestRemoveIsNoOpWhileProcessing(t *testing.T) {
	q := NewQueue()
	it := q.Add("/data/a", "")
	q.setStatus(it.ID, types.ItemProcessing)
	if q.Remove(it.ID) {
		t.Fatalf("remove must be a no-op for a processing item")
	}
	if _, ok := q.Get(it.ID); !ok {
		t.Fatalf("item vanished despite blocked remove")
	}

	q.setStatus(it.ID, types.ItemDone)
	if !q.Remove(it.ID) {
		t.Fatalf("remove of a finished item failed")
	}
	if q.Remove(it.ID) {
		t.Fatalf("remove of a missing item reported success")
	}
}

func TestSetPromptAnyTime(t *testing.T) {
	q := NewQueue()
	it := q.Add("/data/a", "first")
	q.setStatus(it.ID, types.ItemProcessing)
	if !q.SetPrompt(it.ID, "second") {
		t.Fatalf("prompt edit rejected")
	}
	got, _ := q.Get(it.ID)
	if got.Prompt != "second" {
		t.Fatalf("prompt = %q", got.Prompt)
	}
	if q.SetPrompt(999, "x") {
		t.Fatalf("prompt edit on missing item reported success")
	}
}
