// Package forest implements the URI forest / tree: an n-ary tree of nodes
// keyed by URI segments, with placeholder nodes for unloaded ancestors,
// duplicate-definition detection, and closest-ancestor /
// default-tree-prefix lookup.
//
// Forest is deliberately payload-agnostic: it stores tree shape only,
// leaving the root hab package to attach config nodes or distro families
// as a Node's Data. A single Forest type can back both the config forest
// and a distro-family forest.
package forest

import (
	"strings"

	"github.com/armon/go-radix"
	"github.com/pkg/errors"
)

// DefaultRootName is the reserved forest-root name used as inheritance and
// lookup fallback.
const DefaultRootName = "default"

// Node is one entry in a forest. Children are owned by the Node; Parent is
// a non-owning back-reference used only for inheritance walks, never for
// mutation.
type Node struct {
	Name        string
	Context     []string // ancestor segments, not including Name
	Parent      *Node
	Children    map[string]*Node
	Placeholder bool
	SourceRoot  string // the config_paths/distro_paths root that defined this node
	Data        interface{}

	radixCache *radix.Tree
}

// Path returns the full segment list (Context + Name) addressing this node.
func (n *Node) Path() []string {
	return append(append([]string{}, n.Context...), n.Name)
}

func newNode(name string, context []string, parent *Node, placeholder bool) *Node {
	return &Node{
		Name:        name,
		Context:     context,
		Parent:      parent,
		Children:    map[string]*Node{},
		Placeholder: placeholder,
	}
}

func (n *Node) invalidateRadix() {
	n.radixCache = nil
}

func (n *Node) radixIndex() *radix.Tree {
	if n.radixCache != nil {
		return n.radixCache
	}
	t := radix.New()
	for name, child := range n.Children {
		t.Insert(name, child)
	}
	n.radixCache = t
	return t
}

// Forest is a named collection of root nodes.
type Forest struct {
	Roots map[string]*Node
}

// New returns an empty forest.
func New() *Forest {
	return &Forest{Roots: map[string]*Node{}}
}

// ErrDuplicateDefinition is raised when the same (context, name) is
// redefined by the same source root.
type ErrDuplicateDefinition struct {
	Path       []string
	SourceRoot string
}

func (e *ErrDuplicateDefinition) Error() string {
	return errors.Errorf("duplicate definition of %q from the same source root %q",
		strings.Join(e.Path, "/"), e.SourceRoot).Error()
}

// Warning describes a non-fatal condition the caller should log.
type Warning struct {
	Message string
}

// Insert places data at the node addressed by path (full segment list,
// including the root segment), creating Placeholder ancestors as needed.
// On success it returns the real node and, if the slot was already occupied
// by a real node from a *different* source root, a non-nil Warning (the
// first definition wins and is kept). A redefinition from the *same*
// source root is a hard error.
func (f *Forest) Insert(path []string, sourceRoot string, data interface{}) (*Node, *Warning, error) {
	if len(path) == 0 {
		return nil, nil, errors.New("forest: cannot insert at empty path")
	}
	for _, seg := range path {
		if seg == "" {
			return nil, nil, errors.Errorf("forest: empty segment in path %v", path)
		}
	}

	rootName := path[0]
	root, ok := f.Roots[rootName]
	if !ok {
		root = newNode(rootName, nil, nil, true)
		f.Roots[rootName] = root
	}

	cur := root
	for i := 1; i < len(path)-1; i++ {
		seg := path[i]
		child, ok := cur.Children[seg]
		if !ok {
			child = newNode(seg, path[:i], cur, true)
			cur.Children[seg] = child
			cur.invalidateRadix()
		}
		cur = child
	}

	// Handle the root itself being the final node (len(path) == 1).
	if len(path) == 1 {
		return f.settle(root, path, sourceRoot, data)
	}

	finalName := path[len(path)-1]
	existing, ok := cur.Children[finalName]
	if !ok {
		node := newNode(finalName, path[:len(path)-1], cur, false)
		node.SourceRoot = sourceRoot
		node.Data = data
		cur.Children[finalName] = node
		cur.invalidateRadix()
		return node, nil, nil
	}
	return f.settle(existing, path, sourceRoot, data)
}

func (f *Forest) settle(node *Node, path []string, sourceRoot string, data interface{}) (*Node, *Warning, error) {
	if node.Placeholder {
		node.Placeholder = false
		node.SourceRoot = sourceRoot
		node.Data = data
		return node, nil, nil
	}
	if node.SourceRoot == sourceRoot {
		return nil, nil, &ErrDuplicateDefinition{Path: path, SourceRoot: sourceRoot}
	}
	// Different source root: first-wins, warn, no replay of later children.
	return node, &Warning{Message: "keeping first definition of " + strings.Join(path, "/") +
		" from " + node.SourceRoot + "; ignoring redefinition from " + sourceRoot}, nil
}

func sanitize(uri string) []string {
	uri = strings.Trim(uri, "/")
	if uri == "" {
		return nil
	}
	return strings.Split(uri, "/")
}

// Closest finds the deepest node matching uri by exact segment descent. If
// the root segment names no known tree, the lookup falls back to prefix
// matching within the "default" tree.
func (f *Forest) Closest(uri string) *Node {
	segs := sanitize(uri)
	if len(segs) == 0 {
		return nil
	}
	if segs[0] == DefaultRootName {
		return f.ClosestDefault(segs[1:])
	}
	if root, ok := f.Roots[segs[0]]; ok {
		return descend(root, segs[1:])
	}
	return f.ClosestDefault(segs[1:])
}

func descend(node *Node, segs []string) *Node {
	cur := node
	for _, seg := range segs {
		child, ok := cur.Children[seg]
		if !ok {
			break
		}
		cur = child
	}
	return cur
}

// ClosestDefault performs prefix-of-segment matching within the "default"
// tree: at each level the child whose name is the longest prefix of the
// wanted segment is chosen, so a more-specific default like Sc01 beats
// Sc0. segs is the remaining path beneath the (unknown or explicitly
// skipped) root.
func (f *Forest) ClosestDefault(segs []string) *Node {
	root, ok := f.Roots[DefaultRootName]
	if !ok {
		return nil
	}
	cur := root
	for _, seg := range segs {
		idx := cur.radixIndex()
		key, val, ok := idx.LongestPrefix(seg)
		if !ok || key == "" {
			break
		}
		cur = val.(*Node)
	}
	return cur
}

// Ancestors returns node's ancestors from immediate parent up to (and
// including) the root, in that order.
func Ancestors(node *Node) []*Node {
	var out []*Node
	for p := node.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out
}
