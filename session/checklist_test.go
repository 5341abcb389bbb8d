package session

import "testing"

func TestChecklistForwardProgression(t *testing.T) {
	c := NewChecklist(3)
	if c.CurrentIndex() != 0 {
		t.Fatalf("fresh checklist must start at 0, got %d", c.CurrentIndex())
	}

	if err := c.Toggle(0); err != nil {
		t.Fatalf("toggle 0: %v", err)
	}
	if c.CurrentIndex() != 1 {
		t.Fatalf("expected current 1, got %d", c.CurrentIndex())
	}

	if err := c.Toggle(1); err != nil {
		t.Fatalf("toggle 1: %v", err)
	}
	if c.CurrentIndex() != 2 {
		t.Fatalf("expected current 2, got %d", c.CurrentIndex())
	}

	if err := c.Toggle(2); err != nil {
		t.Fatalf("toggle 2: %v", err)
	}
	if c.CurrentIndex() != 2 {
		t.Fatalf("all complete: current must stay 2, got %d", c.CurrentIndex())
	}
	if !c.Done() {
		t.Fatal("expected checklist done")
	}
}

func TestChecklistSkipsCompletedItems(t *testing.T) {
	c := NewChecklist(4)
	// Item 1 done out of order, then completing item 0 must jump to 2.
	if err := c.Toggle(1); err != nil {
		t.Fatalf("toggle 1: %v", err)
	}
	if c.CurrentIndex() != 0 {
		t.Fatalf("non-current toggle must not move the pointer, got %d", c.CurrentIndex())
	}
	if err := c.Toggle(0); err != nil {
		t.Fatalf("toggle 0: %v", err)
	}
	if c.CurrentIndex() != 2 {
		t.Fatalf("expected current 2, got %d", c.CurrentIndex())
	}
}

func TestChecklistUntoggleDoesNotMoveBack(t *testing.T) {
	c := NewChecklist(3)
	c.Toggle(0)
	c.Toggle(0) // un-complete item 0
	if c.Completed()[0] {
		t.Fatal("item 0 should be incomplete again")
	}
	if c.CurrentIndex() != 1 {
		t.Fatalf("pointer never moves backwards, got %d", c.CurrentIndex())
	}
}

func TestChecklistLengthInvariant(t *testing.T) {
	c := NewChecklist(5)
	for _, i := range []int{4, 2, 0, 2, 1, 3, 0} {
		if err := c.Toggle(i); err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if got := len(c.Completed()); got != 5 {
			t.Fatalf("completed length changed: %d", got)
		}
	}
}

func TestChecklistRejectsOutOfRange(t *testing.T) {
	c := NewChecklist(2)
	if err := c.Toggle(-1); err == nil {
		t.Fatal("expected error for negative index")
	}
	if err := c.Toggle(2); err == nil {
		t.Fatal("expected error for index past the end")
	}
}
