package status

import "testing"

func TestSinceReturnsOnlyNewerLines(t *testing.T) {
	r := NewReporter(0)
	r.Log("one")
	second := r.Log("two")
	r.Log("three")

	got := r.Since(second.Seq)
	if len(got) != 1 || got[0].Message != "three" {
		t.Fatalf("unexpected lines: %+v", got)
	}
	if all := r.Since(0); len(all) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(all))
	}
}

func TestClearKeepsSequenceMonotonic(t *testing.T) {
	r := NewReporter(0)
	last := r.Log("before")
	r.Clear()
	if got := r.Since(0); len(got) != 0 {
		t.Fatalf("clear left %d lines", len(got))
	}
	next := r.Log("after")
	if next.Seq <= last.Seq {
		t.Fatalf("sequence went backwards: %d <= %d", next.Seq, last.Seq)
	}
}

func TestBoundedRetention(t *testing.T) {
	r := NewReporter(3)
	for i := 0; i < 10; i++ {
		r.Logf("line %d", i)
	}
	got := r.Since(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 retained, got %d", len(got))
	}
	if got[0].Message != "line 7" || got[2].Message != "line 9" {
		t.Fatalf("wrong lines retained: %+v", got)
	}
}
