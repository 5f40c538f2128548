package intrusive

import "testing"

type item struct {
	id   int
	node Node[*item]
}

func TestPushBackOrder(t *testing.T) {
	var l List[*item]
	a := &item{id: 1}
	b := &item{id: 2}
	c := &item{id: 3}
	l.PushBack(&a.node, a)
	l.PushBack(&b.node, b)
	l.PushBack(&c.node, c)

	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}

	var got []int
	l.Each(func(it *item) { got = append(got, it.id) })
	want := []int{1, 2, 3}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("order[%d] = %d, want %d", i, got[i], v)
		}
	}
}

func TestRemoveMiddle(t *testing.T) {
	var l List[*item]
	a, b, c := &item{id: 1}, &item{id: 2}, &item{id: 3}
	l.PushBack(&a.node, a)
	l.PushBack(&b.node, b)
	l.PushBack(&c.node, c)

	l.Remove(&b.node)
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}

	var got []int
	l.Each(func(it *item) { got = append(got, it.id) })
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("unexpected order after remove: %v", got)
	}

	// Removing an already-unlinked node is a no-op.
	l.Remove(&b.node)
	if l.Len() != 2 {
		t.Fatalf("Len() after double remove = %d, want 2", l.Len())
	}
}

func TestMoveToIsZeroAlloc(t *testing.T) {
	var active, closing List[*item]
	a := &item{id: 1}
	active.PushBack(&a.node, a)

	n := testing.AllocsPerRun(100, func() {
		MoveTo(&closing, &a.node)
		MoveTo(&active, &a.node)
	})
	if n != 0 {
		t.Fatalf("MoveTo allocated %v per run, want 0", n)
	}
	if active.Len() != 1 || closing.Len() != 0 {
		t.Fatalf("active=%d closing=%d, want 1/0", active.Len(), closing.Len())
	}
}

func TestPopAll(t *testing.T) {
	var l List[*item]
	a, b := &item{id: 1}, &item{id: 2}
	l.PushBack(&a.node, a)
	l.PushBack(&b.node, b)

	popped := l.PopAll()
	if len(popped) != 2 {
		t.Fatalf("PopAll returned %d items, want 2", len(popped))
	}
	if l.Len() != 0 {
		t.Fatalf("Len() after PopAll = %d, want 0", l.Len())
	}
	if a.node.linked() || b.node.linked() {
		t.Fatalf("nodes still linked after PopAll")
	}
}
