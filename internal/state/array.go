package state

import (
	"fmt"
	"slices"
)

// PatchType says how an ArrayRead changes the array.
type PatchType int

const (
	// PatchNone replaces the whole array with ArrayRead.Array.
	PatchNone PatchType = iota
	// PatchAdded inserts Items at Index.
	PatchAdded
	// PatchRemoved deletes len(Items) elements at Index.
	PatchRemoved
	// PatchChanged overwrites len(Items) elements at Index.
	PatchChanged
)

func (p PatchType) String() string {
	switch p {
	case PatchNone:
		return "none"
	case PatchAdded:
		return "added"
	case PatchRemoved:
		return "removed"
	case PatchChanged:
		return "changed"
	default:
		return fmt.Sprintf("PatchType(%d)", int(p))
	}
}

// ArrayRead is what an array state delivers: the current array plus the
// patch that produced it. Items never aliases the array.
type ArrayRead[T any] struct {
	Array []T
	Type  PatchType
	Index int
	Items []T
}

// Array is a state holding a list that notifies with patches instead of
// whole-array replacements. Array is always owner-mutable; Write replaces
// the whole list and needs Writable or WithSetter.
type Array[T, E any] struct {
	container[ArrayRead[T], E]

	items    []T
	equal    func(a, b T) bool
	writable bool
	limit    func([]T) []T
	check    func([]T) string
}

// NewArray creates an array state holding a copy of initial.
func NewArray[T, E any](initial []T, opts ...Option) *Array[T, E] {
	a := &Array[T, E]{items: slices.Clone(initial)}
	a.init("array", opts)
	a.equal = equalFor[T](&a.opts)
	a.writable = a.opts.writable || a.opts.setter != nil
	if fn, ok := typedOption[func([]T) []T](&a.opts, "limit", a.opts.limit); ok {
		a.limit = fn
	}
	if fn, ok := typedOption[func([]T) string](&a.opts, "check", a.opts.check); ok {
		a.check = fn
	}
	a.value = a.snapshot()
	a.hasValue = true
	return a
}

func (a *Array[T, E]) snapshot() Result[ArrayRead[T], E] {
	return Ok[ArrayRead[T], E](ArrayRead[T]{Array: a.items, Type: PatchNone})
}

// emit caches the whole-array snapshot and notifies with the patch. After an
// error the first patch is widened to a full replacement.
func (a *Array[T, E]) emit(typ PatchType, index int, items []T) {
	wasErr := a.value.IsErr()
	a.value = a.snapshot()
	if wasErr {
		a.updateSubscribers(a.value)
		return
	}
	a.updateSubscribers(Ok[ArrayRead[T], E](ArrayRead[T]{
		Array: a.items,
		Type:  typ,
		Index: index,
		Items: items,
	}))
}

// Get returns the whole array.
func (a *Array[T, E]) Get() Result[ArrayRead[T], E] {
	return a.value
}

// Then calls fn with the whole array.
func (a *Array[T, E]) Then(fn func(Result[ArrayRead[T], E])) {
	fn(a.value)
}

// Items returns the backing slice. Callers must not modify it.
func (a *Array[T, E]) Items() []T {
	return a.items
}

// Len returns the number of elements.
func (a *Array[T, E]) Len() int {
	return len(a.items)
}

// Push appends items and returns the new length.
func (a *Array[T, E]) Push(items ...T) int {
	if len(items) == 0 {
		return len(a.items)
	}
	index := len(a.items)
	a.items = append(a.items, items...)
	a.emit(PatchAdded, index, slices.Clone(items))
	return len(a.items)
}

// Pop removes the last element.
func (a *Array[T, E]) Pop() (T, bool) {
	var zero T
	if len(a.items) == 0 {
		return zero, false
	}
	index := len(a.items) - 1
	v := a.items[index]
	a.items[index] = zero
	a.items = a.items[:index]
	a.emit(PatchRemoved, index, []T{v})
	return v, true
}

// Shift removes the first element.
func (a *Array[T, E]) Shift() (T, bool) {
	var zero T
	if len(a.items) == 0 {
		return zero, false
	}
	v := a.items[0]
	a.items = slices.Delete(a.items, 0, 1)
	a.emit(PatchRemoved, 0, []T{v})
	return v, true
}

// Unshift prepends items and returns the new length.
func (a *Array[T, E]) Unshift(items ...T) int {
	if len(items) == 0 {
		return len(a.items)
	}
	a.items = slices.Insert(a.items, 0, items...)
	a.emit(PatchAdded, 0, slices.Clone(items))
	return len(a.items)
}

// Splice removes deleteCount elements at start and inserts items there,
// returning the removed elements. A negative start counts from the end.
// Replacing as many elements as are inserted emits one changed patch;
// otherwise a removed patch precedes an added patch.
func (a *Array[T, E]) Splice(start, deleteCount int, items ...T) []T {
	n := len(a.items)
	switch {
	case start < 0:
		start = max(n+start, 0)
	case start > n:
		start = n
	}
	deleteCount = min(max(deleteCount, 0), n-start)

	removed := slices.Clone(a.items[start : start+deleteCount])
	if deleteCount > 0 && deleteCount == len(items) {
		copy(a.items[start:], items)
		a.emit(PatchChanged, start, slices.Clone(items))
		return removed
	}
	if deleteCount > 0 {
		a.items = slices.Delete(a.items, start, start+deleteCount)
		a.emit(PatchRemoved, start, removed)
	}
	if len(items) > 0 {
		a.items = slices.Insert(a.items, start, items...)
		a.emit(PatchAdded, start, slices.Clone(items))
	}
	return removed
}

// RemoveAllOf removes every element equal to v and returns how many were
// removed. Each run of adjacent matches is one removed patch.
func (a *Array[T, E]) RemoveAllOf(v T) int {
	count := 0
	for i := 0; i < len(a.items); {
		if !a.equal(a.items[i], v) {
			i++
			continue
		}
		end := i + 1
		for end < len(a.items) && a.equal(a.items[end], v) {
			end++
		}
		removed := slices.Clone(a.items[i:end])
		a.items = slices.Delete(a.items, i, end)
		count += len(removed)
		a.emit(PatchRemoved, i, removed)
	}
	return count
}

// SetIndex overwrites the element at index. Returns false when index is out
// of range.
func (a *Array[T, E]) SetIndex(index int, v T) bool {
	if index < 0 || index >= len(a.items) {
		return false
	}
	a.items[index] = v
	a.emit(PatchChanged, index, []T{v})
	return true
}

// Set replaces the whole array.
func (a *Array[T, E]) Set(items []T) {
	a.items = slices.Clone(items)
	a.value = a.snapshot()
	a.updateSubscribers(a.value)
}

// SetErr puts the state in error. The elements are kept.
func (a *Array[T, E]) SetErr(e E) {
	a.publish(Err[ArrayRead[T]](e))
}

// Limit clamps a whole-array write.
func (a *Array[T, E]) Limit(v ArrayRead[T]) ArrayRead[T] {
	if a.limit == nil {
		return v
	}
	v.Array = a.limit(v.Array)
	return v
}

// Check validates a whole-array write.
func (a *Array[T, E]) Check(v ArrayRead[T]) string {
	if a.check == nil {
		return ""
	}
	return a.check(v.Array)
}

// Write replaces the whole array with v.Array.
func (a *Array[T, E]) Write(v ArrayRead[T]) *Future[error] {
	return Resolved(a.WriteSync(v))
}

// WriteSync replaces the whole array with v.Array.
func (a *Array[T, E]) WriteSync(v ArrayRead[T]) error {
	if !a.writable {
		return errNotWritable()
	}
	v = a.Limit(v)
	if reason := a.Check(v); reason != "" {
		return &WriteError{Reason: reason, Code: CodeInvalid}
	}
	a.Set(v.Array)
	return nil
}

// ApplyReadToArray applies read to target and returns the updated slice,
// which may have been reallocated.
func ApplyReadToArray[T any](read ArrayRead[T], target []T) []T {
	return ApplyReadToArrayTransform(read, target, func(v T) T { return v })
}

// ApplyReadToArrayTransform applies read to target, mapping each incoming
// element with transform.
func ApplyReadToArrayTransform[T, U any](read ArrayRead[T], target []U, transform func(T) U) []U {
	mapped := func(items []T) []U {
		out := make([]U, len(items))
		for i, v := range items {
			out[i] = transform(v)
		}
		return out
	}

	switch read.Type {
	case PatchAdded:
		index := min(max(read.Index, 0), len(target))
		return slices.Insert(target, index, mapped(read.Items)...)
	case PatchRemoved:
		index := min(max(read.Index, 0), len(target))
		end := min(index+len(read.Items), len(target))
		return slices.Delete(target, index, end)
	case PatchChanged:
		for i, v := range read.Items {
			at := read.Index + i
			if at < 0 {
				continue
			}
			if at >= len(target) {
				target = append(target, transform(v))
				continue
			}
			target[at] = transform(v)
		}
		return target
	default:
		return append(target[:0], mapped(read.Array)...)
	}
}
