package types

import "container/list"

// Deque is a doubly-linked double-ended queue of strings, giving O(1)
// push/pop at both ends as required by the list operations (§4.3).
type Deque struct {
	l *list.List
}

// NewDeque returns an empty deque.
func NewDeque() *Deque {
	return &Deque{l: list.New()}
}

// NewDequeFrom builds a deque from an existing slice, front to back.
func NewDequeFrom(items []string) *Deque {
	d := NewDeque()
	for _, it := range items {
		d.PushBack(it)
	}
	return d
}

// PushFront inserts v at the head.
func (d *Deque) PushFront(v string) {
	d.l.PushFront(v)
}

// PushBack inserts v at the tail.
func (d *Deque) PushBack(v string) {
	d.l.PushBack(v)
}

// PopFront removes and returns the head element.
func (d *Deque) PopFront() (string, bool) {
	e := d.l.Front()
	if e == nil {
		return "", false
	}
	d.l.Remove(e)
	return e.Value.(string), true
}

// PopBack removes and returns the tail element.
func (d *Deque) PopBack() (string, bool) {
	e := d.l.Back()
	if e == nil {
		return "", false
	}
	d.l.Remove(e)
	return e.Value.(string), true
}

// Len returns the number of elements.
func (d *Deque) Len() int {
	if d.l == nil {
		return 0
	}
	return d.l.Len()
}

// Slice materialises the deque front-to-back as a slice.
func (d *Deque) Slice() []string {
	out := make([]string, 0, d.Len())
	for e := d.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}

// At returns the element at position i (0-indexed from the front).
func (d *Deque) At(i int) (string, bool) {
	if i < 0 || i >= d.Len() {
		return "", false
	}
	e := d.l.Front()
	for n := 0; n < i; n++ {
		e = e.Next()
	}
	return e.Value.(string), true
}

// SetAt assigns the element at position i, returning false if out of range.
func (d *Deque) SetAt(i int, v string) bool {
	if i < 0 || i >= d.Len() {
		return false
	}
	e := d.l.Front()
	for n := 0; n < i; n++ {
		e = e.Next()
	}
	e.Value = v
	return true
}

// Clone returns a deep copy independent of the receiver.
func (d *Deque) Clone() *Deque {
	return NewDequeFrom(d.Slice())
}
