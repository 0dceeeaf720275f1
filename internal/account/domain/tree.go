package domain

import (
	"sort"

	"github.com/bwmarrin/snowflake"
)

// AccountNode is an account with its subtree. Level is derived from the root.
type AccountNode struct {
	Account
	Children []*AccountNode `json:"children"`
}

// Tree is an arena of accounts indexed by id with a separate children index.
type Tree struct {
	nodes      map[snowflake.ID]*AccountNode
	childrenOf map[snowflake.ID][]snowflake.ID
	roots      []*AccountNode
}

// BuildTree assembles a flat account list in O(n). Accounts whose parent is
// missing or which sit on a parent cycle are returned as unreachable.
func BuildTree(accounts []Account) (*Tree, []Account) {
	t := &Tree{
		nodes:      make(map[snowflake.ID]*AccountNode, len(accounts)),
		childrenOf: make(map[snowflake.ID][]snowflake.ID, len(accounts)),
	}

	sorted := make([]Account, len(accounts))
	copy(sorted, accounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	var rootIDs []snowflake.ID
	for i := range sorted {
		acc := sorted[i]
		t.nodes[acc.ID] = &AccountNode{Account: acc, Children: []*AccountNode{}}
		if acc.ParentID == nil {
			rootIDs = append(rootIDs, acc.ID)
			continue
		}
		t.childrenOf[*acc.ParentID] = append(t.childrenOf[*acc.ParentID], acc.ID)
	}

	reached := make(map[snowflake.ID]bool, len(sorted))
	type frame struct {
		id    snowflake.ID
		level int
	}
	for _, rootID := range rootIDs {
		root := t.nodes[rootID]
		t.roots = append(t.roots, root)

		stack := []frame{{id: rootID, level: 1}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if reached[f.id] {
				continue
			}
			reached[f.id] = true

			node := t.nodes[f.id]
			node.Level = f.level
			for _, childID := range t.childrenOf[f.id] {
				child := t.nodes[childID]
				node.Children = append(node.Children, child)
				stack = append(stack, frame{id: childID, level: f.level + 1})
			}
		}
	}

	var unreachable []Account
	for _, acc := range sorted {
		if !reached[acc.ID] {
			unreachable = append(unreachable, acc)
		}
	}
	return t, unreachable
}

func (t *Tree) Roots() []*AccountNode {
	return t.roots
}

func (t *Tree) Node(id snowflake.ID) (*AccountNode, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// LeafDescendants returns the leaf accounts below id, or the account itself when it is a leaf.
func (t *Tree) LeafDescendants(id snowflake.ID) []Account {
	node, ok := t.nodes[id]
	if !ok {
		return nil
	}
	var out []Account
	stack := []*AccountNode{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IsLeaf() {
			out = append(out, n.Account)
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return out
}

// PostOrder visits every reachable node after its children.
func (t *Tree) PostOrder(visit func(*AccountNode)) {
	var walk func(*AccountNode)
	walk = func(n *AccountNode) {
		for _, c := range n.Children {
			walk(c)
		}
		visit(n)
	}
	for _, r := range t.roots {
		walk(r)
	}
}
