package bone

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tiendc/go-deepcopy"
)

var (
	ErrMissingBone   = errors.New("bone: missing bone")
	ErrDuplicateBone = errors.New("bone: duplicate bone")
	ErrTopology      = errors.New("bone: parent must precede child")
	ErrStaleWorld    = errors.New("bone: world transform read before propagation")
)

// MissingBoneError reports a bone name absent from the hierarchy
type MissingBoneError struct {
	Name string
}

func (e *MissingBoneError) Error() string {
	return fmt.Sprintf("bone: missing bone %q", e.Name)
}

func (e *MissingBoneError) Unwrap() error {
	return ErrMissingBone
}

// Definition is one entry of a hierarchy asset: a bone, its parent name (empty for a root)
// and its default local transform.
type Definition struct {
	Name   string
	Parent string
	Local  Transform
}

// Node is a bone of the Tree. Nodes are owned by the tree and addressed by index.
type Node struct {
	Name     string
	Parent   int
	Children []int
	Local    Transform
	World    Transform
	Default  Transform
	Visible  bool
}

// Tree is a flattened bone hierarchy in topological order: Parent < index for every node,
// so a single forward pass computes every world transform.
type Tree struct {
	// Base is the world transform the root bones hang from
	Base Transform

	nodes []Node
	index map[string]int
	// dirty marks nodes whose world transform, and the worlds below them, are stale
	dirty     []bool
	mutations uint64
}

// NewTree builds a tree from definitions listed parents first
func NewTree(definitions []Definition) (*Tree, error) {
	t := &Tree{
		Base:  NewTransform(),
		nodes: make([]Node, 0, len(definitions)),
		index: make(map[string]int, len(definitions)),
		dirty: make([]bool, len(definitions)),
	}

	names := make(map[string]bool, len(definitions))
	for _, def := range definitions {
		names[def.Name] = true
	}

	for i, def := range definitions {
		if _, ok := t.index[def.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateBone, def.Name)
		}

		parent := -1
		if def.Parent != "" {
			p, ok := t.index[def.Parent]
			if !ok {
				if !names[def.Parent] {
					return nil, &MissingBoneError{Name: def.Parent}
				}
				return nil, fmt.Errorf("%w: %q listed before its parent %q", ErrTopology, def.Name, def.Parent)
			}
			parent = p
			t.nodes[p].Children = append(t.nodes[p].Children, i)
		}

		t.index[def.Name] = i
		t.nodes = append(t.nodes, Node{
			Name:    def.Name,
			Parent:  parent,
			Local:   def.Local,
			Default: def.Local,
			Visible: true,
		})
		t.dirty[i] = true
	}

	t.Propagate()

	return t, nil
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

// Index resolves a bone name once, the per-frame code works with indices only
func (t *Tree) Index(name string) (int, error) {
	i, ok := t.index[name]
	if !ok {
		return -1, &MissingBoneError{Name: name}
	}
	return i, nil
}

// Lookup resolves several names. Missing names are all reported, joined, and map to -1.
func (t *Tree) Lookup(names ...string) ([]int, error) {
	indices := make([]int, len(names))
	var errs []error
	for k, name := range names {
		i, err := t.Index(name)
		if err != nil {
			errs = append(errs, err)
		}
		indices[k] = i
	}

	return indices, errors.Join(errs...)
}

func (t *Tree) Name(i int) string {
	return t.nodes[i].Name
}

func (t *Tree) Parent(i int) int {
	return t.nodes[i].Parent
}

func (t *Tree) Children(i int) []int {
	return t.nodes[i].Children
}

func (t *Tree) Local(i int) Transform {
	return t.nodes[i].Local
}

func (t *Tree) World(i int) Transform {
	return t.nodes[i].World
}

func (t *Tree) Default(i int) Transform {
	return t.nodes[i].Default
}

// ParentWorld is the world transform of the parent of i, or Base for a root
func (t *Tree) ParentWorld(i int) Transform {
	if p := t.nodes[i].Parent; p >= 0 {
		return t.nodes[p].World
	}
	return t.Base
}

// SetLocal replaces the local transform of i. The worlds of i and its subtree become stale.
func (t *Tree) SetLocal(i int, local Transform) {
	t.nodes[i].Local = local
	t.dirty[i] = true
	t.mutations++
}

// SetWorld overrides the world transform of i without touching its local transform.
// The override holds until the next propagation through i; the subtree below becomes stale.
func (t *Tree) SetWorld(i int, world Transform) {
	t.nodes[i].World = world
	for _, c := range t.nodes[i].Children {
		t.dirty[c] = true
	}
	t.mutations++
}

// SetBase moves the whole tree
func (t *Tree) SetBase(base Transform) {
	t.Base = base
	for i, n := range t.nodes {
		if n.Parent < 0 {
			t.dirty[i] = true
		}
	}
	t.mutations++
}

func (t *Tree) Visible(i int) bool {
	return t.nodes[i].Visible
}

func (t *Tree) SetVisible(i int, visible bool) {
	t.nodes[i].Visible = visible
}

// RestoreDefaults resets every local transform to the hierarchy default
func (t *Tree) RestoreDefaults() {
	for i := range t.nodes {
		t.nodes[i].Local = t.nodes[i].Default
		t.dirty[i] = true
	}
	t.mutations++
}

// GetWorldTransform is the name based accessor for hosts; the frame pipeline uses World.
func (t *Tree) GetWorldTransform(name string) (Transform, error) {
	i, err := t.Index(name)
	if err != nil {
		return Transform{}, err
	}
	return t.nodes[i].World, nil
}

// SetLocalTransform is the name based counterpart of SetLocal
func (t *Tree) SetLocalTransform(name string, local Transform) error {
	i, err := t.Index(name)
	if err != nil {
		return err
	}
	t.SetLocal(i, local)
	return nil
}

// Propagate recomputes every world transform top-down:
// world[i] = world[parent[i]] ∘ local[i]
// Calling it again without a local mutation yields identical worlds.
func (t *Tree) Propagate() Propagation {
	for i := range t.nodes {
		t.nodes[i].World = t.ParentWorld(i).Mul(t.nodes[i].Local)
		t.dirty[i] = false
	}

	return Propagation{tree: t, mutations: t.mutations}
}

// PropagateSubtree updates the worlds below i. With self, the world of i is first recomputed
// from its parent; without, the current world of i (possibly an override) is kept.
func (t *Tree) PropagateSubtree(i int, self bool) {
	if self {
		t.nodes[i].World = t.ParentWorld(i).Mul(t.nodes[i].Local)
		t.dirty[i] = false
	}
	for _, c := range t.nodes[i].Children {
		t.PropagateSubtree(c, true)
	}
}

// WorldCurrent reports whether the world transform of i reflects every local transform above it
func (t *Tree) WorldCurrent(i int) bool {
	for j := i; j >= 0; j = t.nodes[j].Parent {
		if t.dirty[j] {
			return false
		}
	}
	return true
}

// Reparent moves child under parent, keeping its local transform. The new parent must precede
// the child (parent < child) so the topological order stays valid; -1 makes child a root.
// Both child lists are updated before returning.
func (t *Tree) Reparent(child, parent int) error {
	if child < 0 || child >= len(t.nodes) || parent >= len(t.nodes) {
		return fmt.Errorf("%w: index out of range", ErrTopology)
	}
	if parent >= child {
		return fmt.Errorf("%w: cannot attach %q under %q", ErrTopology, t.nodes[child].Name, t.nodes[parent].Name)
	}

	old := t.nodes[child].Parent
	if old == parent {
		return nil
	}
	if old >= 0 {
		siblings := t.nodes[old].Children
		if k := slices.Index(siblings, child); k >= 0 {
			t.nodes[old].Children = slices.Delete(siblings, k, k+1)
		}
	}
	if parent >= 0 {
		children := t.nodes[parent].Children
		k, _ := slices.BinarySearch(children, child)
		t.nodes[parent].Children = slices.Insert(children, k, child)
	}

	t.nodes[child].Parent = parent
	t.dirty[child] = true
	t.mutations++

	return nil
}

// Snapshot returns a deep copy of every node, safe to hand over to another goroutine
func (t *Tree) Snapshot() ([]Node, error) {
	var nodes []Node
	if err := deepcopy.Copy(&nodes, t.nodes); err != nil {
		return nil, fmt.Errorf("bone: snapshot: %w", err)
	}
	return nodes, nil
}

// Clone returns an independent copy of the tree
func (t *Tree) Clone() (*Tree, error) {
	nodes, err := t.Snapshot()
	if err != nil {
		return nil, err
	}

	c := &Tree{
		Base:      t.Base,
		nodes:     nodes,
		index:     make(map[string]int, len(nodes)),
		dirty:     slices.Clone(t.dirty),
		mutations: t.mutations,
	}
	for i, n := range nodes {
		c.index[n.Name] = i
	}

	return c, nil
}

// Propagation is the proof that a full world propagation ran. Frame stages take it as their
// first argument; Current tells whether any local transform changed since.
type Propagation struct {
	tree      *Tree
	mutations uint64
}

func (p Propagation) Tree() *Tree {
	return p.tree
}

func (p Propagation) Current() bool {
	return p.tree != nil && p.tree.mutations == p.mutations
}

// Require returns ErrStaleWorld unless the world transforms of every index are current
func (p Propagation) Require(indices ...int) error {
	if p.tree == nil {
		return ErrStaleWorld
	}
	for _, i := range indices {
		if !p.tree.WorldCurrent(i) {
			return fmt.Errorf("%w: %q", ErrStaleWorld, p.tree.nodes[i].Name)
		}
	}
	return nil
}
