// Package intrusive implements a doubly-linked list whose nodes are embedded
// in the elements they link, so membership changes never allocate and an
// element can be moved between two lists in O(1).
package intrusive

// Node is the embeddable link. An element that wants to live on a List
// embeds a Node by value and passes a pointer to itself when pushing.
type Node[T any] struct {
	prev *Node[T]
	next *Node[T]
	list *List[T]
	self T
}

// linked reports whether the node is currently a member of any list.
func (n *Node[T]) linked() bool {
	return n.list != nil
}

// List is an intrusive doubly-linked list. The zero value is an empty list
// ready to use.
type List[T any] struct {
	head *Node[T]
	tail *Node[T]
	n    int
}

// Len returns the number of elements currently linked into l.
func (l *List[T]) Len() int { return l.n }

// PushBack links node onto the back of l. It is a no-op if node is already
// linked into some list (callers must Remove first, or use MoveTo).
func (l *List[T]) PushBack(node *Node[T], self T) {
	if node.linked() {
		return
	}
	node.self = self
	node.list = l
	node.prev = l.tail
	node.next = nil
	if l.tail != nil {
		l.tail.next = node
	} else {
		l.head = node
	}
	l.tail = node
	l.n++
}

// Remove unlinks node from whatever list it belongs to. It is a no-op if
// node is not currently linked.
func (l *List[T]) Remove(node *Node[T]) {
	if node.list != l {
		return
	}
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	node.list = nil
	l.n--
}

// MoveTo unlinks node from its current list (if any) and links it onto the
// back of dst, without allocating.
func MoveTo[T any](dst *List[T], node *Node[T]) {
	if node.list != nil {
		node.list.Remove(node)
	}
	dst.PushBack(node, node.self)
}

// Each calls fn for every element currently linked into l, in list order.
// fn must not mutate l.
func (l *List[T]) Each(fn func(T)) {
	for n := l.head; n != nil; n = n.next {
		fn(n.self)
	}
}

// PopAll removes every element from l and returns them in list order. It is
// the allocation-bearing escape hatch used by reapers that need to hand the
// drained set to code outside the hot path.
func (l *List[T]) PopAll() []T {
	out := make([]T, 0, l.n)
	for n := l.head; n != nil; {
		next := n.next
		n.prev, n.next, n.list = nil, nil, nil
		out = append(out, n.self)
		n = next
	}
	l.head, l.tail, l.n = nil, nil, 0
	return out
}
