// Package avl provides a generic AVL tree ordered by a caller-supplied signed
// distance function. The tree is a multiset: values at distance zero from each
// other are kept in insertion order. Nodes carry parent links so that a node
// handle can walk to its in-order neighbors in amortized O(1) and be removed
// without a search.
package avl

import (
	"errors"
	"iter"

	"golang.org/x/exp/constraints"
)

// Sentinel errors.
var (
	// ErrDetachedNode is returned when operating on a node that was removed
	// or belongs to another tree.
	ErrDetachedNode = errors.New("avl: node is detached")
	// ErrEmptyTree is returned by searches on a tree with no nodes.
	ErrEmptyTree = errors.New("avl: tree is empty")
)

// DistanceFunc returns a negative value when a orders before b, zero when
// they are equivalent, and a positive value otherwise.
type DistanceFunc[T any, D constraints.Signed] func(a, b T) D

// Tree is an AVL tree. The zero value is not usable; call New.
type Tree[T any, D constraints.Signed] struct {
	root     *Node[T, D]
	distance DistanceFunc[T, D]
	size     int
}

// Node is a tree node. Links are owned by the tree; a node that has been
// removed keeps its value but loses its links and rejects further mutation.
type Node[T any, D constraints.Signed] struct {
	value  T
	left   *Node[T, D]
	right  *Node[T, D]
	parent *Node[T, D]
	owner  *Tree[T, D]
	height int
}

// New creates an empty tree ordered by distance.
func New[T any, D constraints.Signed](distance DistanceFunc[T, D]) *Tree[T, D] {
	return &Tree[T, D]{distance: distance}
}

// Len returns the number of nodes.
func (t *Tree[T, D]) Len() int {
	return t.size
}

// Height returns the height of the root, zero for an empty tree.
func (t *Tree[T, D]) Height() int {
	return height(t.root)
}

// Root returns the root node or nil.
func (t *Tree[T, D]) Root() *Node[T, D] {
	return t.root
}

// First returns the leftmost node or nil.
func (t *Tree[T, D]) First() *Node[T, D] {
	if t.root == nil {
		return nil
	}

	return minimum(t.root)
}

// Last returns the rightmost node or nil.
func (t *Tree[T, D]) Last() *Node[T, D] {
	if t.root == nil {
		return nil
	}

	return maximum(t.root)
}

// Clear detaches every node and empties the tree.
func (t *Tree[T, D]) Clear() {
	nodes := make([]*Node[T, D], 0, t.size)
	for n := range t.Nodes() {
		nodes = append(nodes, n)
	}

	for _, n := range nodes {
		n.detach()
	}

	t.root = nil
	t.size = 0
}

// Insert adds value and returns its node. A value equivalent to existing
// ones is placed after them in order.
func (t *Tree[T, D]) Insert(value T) *Node[T, D] {
	n := &Node[T, D]{value: value, owner: t, height: 1}
	t.size++

	if t.root == nil {
		t.root = n

		return n
	}

	cur := t.root

	for {
		if t.distance(value, cur.value) < 0 {
			if cur.left == nil {
				cur.left = n

				break
			}

			cur = cur.left

			continue
		}

		if cur.right == nil {
			cur.right = n

			break
		}

		cur = cur.right
	}

	n.parent = cur
	t.retrace(cur)

	return n
}

// Remove unlinks n from the tree and returns its value. The node is detached
// afterwards. A node with two children is replaced by its in-order successor,
// so every other node keeps its identity and value.
func (t *Tree[T, D]) Remove(n *Node[T, D]) (T, error) {
	if n == nil || n.owner != t {
		var zero T

		return zero, ErrDetachedNode
	}

	var retraceFrom *Node[T, D]

	if n.left == nil || n.right == nil {
		child := n.left
		if child == nil {
			child = n.right
		}

		retraceFrom = n.parent
		t.transplant(n, child)
	} else {
		succ := minimum(n.right)

		if succ.parent == n {
			retraceFrom = succ
		} else {
			retraceFrom = succ.parent
			t.transplant(succ, succ.right)
			succ.right = n.right
			succ.right.parent = succ
		}

		t.transplant(n, succ)
		succ.left = n.left
		succ.left.parent = succ
	}

	t.size--
	t.retrace(retraceFrom)

	value := n.value
	n.detach()

	return value, nil
}

// Nearest returns the node closest to value. See FindNearest for tie rules.
func (t *Tree[T, D]) Nearest(value T) (*Node[T, D], error) {
	return t.FindNearest(func(v T) D { return t.distance(value, v) })
}

// FindNearest returns the node minimizing |probe(v)|, where probe returns the
// distance from the target to v. Among equally near nodes the one ordered
// first wins.
func (t *Tree[T, D]) FindNearest(probe func(v T) D) (*Node[T, D], error) {
	if t.root == nil {
		return nil, ErrEmptyTree
	}

	return nearest(t.root, probe), nil
}

func nearest[T any, D constraints.Signed](n *Node[T, D], probe func(T) D) *Node[T, D] {
	d := probe(n.value)

	switch {
	case d == 0:
		return n
	case d < 0:
		if n.left == nil {
			return n
		}

		cand := nearest(n.left, probe)
		if abs(probe(cand.value)) <= abs(d) {
			return cand
		}

		return n
	default:
		if n.right == nil {
			return n
		}

		cand := nearest(n.right, probe)
		if abs(probe(cand.value)) < abs(d) {
			return cand
		}

		return n
	}
}

// All yields values in order. Mutating the tree while iterating is not
// supported; start a new iteration instead.
func (t *Tree[T, D]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for n := t.First(); n != nil; n = n.Next() {
			if !yield(n.value) {
				return
			}
		}
	}
}

// Nodes yields nodes in order.
func (t *Tree[T, D]) Nodes() iter.Seq[*Node[T, D]] {
	return func(yield func(*Node[T, D]) bool) {
		for n := t.First(); n != nil; n = n.Next() {
			if !yield(n) {
				return
			}
		}
	}
}

// retrace updates heights and rebalances from n up to the root.
func (t *Tree[T, D]) retrace(n *Node[T, D]) {
	for n != nil {
		n.updateHeight()
		n = t.rebalance(n)
		n = n.parent
	}
}

// rebalance restores the AVL property at n and returns the root of the
// resulting subtree.
func (t *Tree[T, D]) rebalance(n *Node[T, D]) *Node[T, D] {
	switch bf := n.balance(); {
	case bf > 1:
		if n.left.balance() < 0 {
			t.rotate(n.left, true)
		}

		return t.rotate(n, false)
	case bf < -1:
		if n.right.balance() > 0 {
			t.rotate(n.right, false)
		}

		return t.rotate(n, true)
	default:
		return n
	}
}

// rotate performs a rotation at n and returns the pivot that takes its place.
// When left is true, rotates left; otherwise rotates right.
func (t *Tree[T, D]) rotate(n *Node[T, D], left bool) *Node[T, D] {
	var pivot *Node[T, D]

	if left {
		pivot = n.right
		n.right = pivot.left

		if pivot.left != nil {
			pivot.left.parent = n
		}

		pivot.left = n
	} else {
		pivot = n.left
		n.left = pivot.right

		if pivot.right != nil {
			pivot.right.parent = n
		}

		pivot.right = n
	}

	pivot.parent = n.parent

	switch {
	case n.parent == nil:
		t.root = pivot
	case n == n.parent.left:
		n.parent.left = pivot
	default:
		n.parent.right = pivot
	}

	n.parent = pivot

	n.updateHeight()
	pivot.updateHeight()

	return pivot
}

// transplant replaces the subtree rooted at u with the one rooted at v.
func (t *Tree[T, D]) transplant(u, v *Node[T, D]) {
	switch {
	case u.parent == nil:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}

	if v != nil {
		v.parent = u.parent
	}
}

// Value returns the stored value. It remains readable after removal.
func (n *Node[T, D]) Value() T {
	return n.value
}

// Left returns the left child or nil.
func (n *Node[T, D]) Left() *Node[T, D] {
	return n.left
}

// Right returns the right child or nil.
func (n *Node[T, D]) Right() *Node[T, D] {
	return n.right
}

// Parent returns the parent or nil for the root and detached nodes.
func (n *Node[T, D]) Parent() *Node[T, D] {
	return n.parent
}

// Height returns the height of the subtree rooted at n.
func (n *Node[T, D]) Height() int {
	return height(n)
}

// Detached reports whether n was removed from its tree.
func (n *Node[T, D]) Detached() bool {
	return n.owner == nil
}

// Remove removes n from its tree.
func (n *Node[T, D]) Remove() (T, error) {
	if n.owner == nil {
		var zero T

		return zero, ErrDetachedNode
	}

	return n.owner.Remove(n)
}

// Next returns the in-order successor or nil.
func (n *Node[T, D]) Next() *Node[T, D] {
	if n.right != nil {
		return minimum(n.right)
	}

	cur := n
	for cur.parent != nil && cur == cur.parent.right {
		cur = cur.parent
	}

	return cur.parent
}

// Prev returns the in-order predecessor or nil.
func (n *Node[T, D]) Prev() *Node[T, D] {
	if n.left != nil {
		return maximum(n.left)
	}

	cur := n
	for cur.parent != nil && cur == cur.parent.left {
		cur = cur.parent
	}

	return cur.parent
}

func (n *Node[T, D]) detach() {
	n.left = nil
	n.right = nil
	n.parent = nil
	n.owner = nil
	n.height = 0
}

func (n *Node[T, D]) updateHeight() {
	n.height = 1 + max(height(n.left), height(n.right))
}

// balance returns left height minus right height.
func (n *Node[T, D]) balance() int {
	return height(n.left) - height(n.right)
}

func height[T any, D constraints.Signed](n *Node[T, D]) int {
	if n == nil {
		return 0
	}

	return n.height
}

func minimum[T any, D constraints.Signed](n *Node[T, D]) *Node[T, D] {
	for n.left != nil {
		n = n.left
	}

	return n
}

func maximum[T any, D constraints.Signed](n *Node[T, D]) *Node[T, D] {
	for n.right != nil {
		n = n.right
	}

	return n
}

// abs clamps |min D| to max D.
func abs[D constraints.Signed](d D) D {
	if d >= 0 {
		return d
	}

	if -d < 0 {
		return -(d + 1)
	}

	return -d
}
