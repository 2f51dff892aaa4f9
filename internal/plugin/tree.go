package plugin

import (
	"sort"
	"strings"
)

// cmdNode is one token of the command routing tree. A node with a nil cmd is
// a container ("vax" when only "vax add"/"vax list" are registered); routing
// to it shows the subcommand help instead of running anything.
type cmdNode struct {
	cmd      *Command
	children map[string]*cmdNode
}

func newRoot() *cmdNode {
	return &cmdNode{children: map[string]*cmdNode{}}
}

// splitRoute tokenizes a registered route ("vax add" -> ["vax","add"]).
func splitRoute(route string) []string {
	route = strings.TrimSpace(route)
	if route == "" {
		return nil
	}
	return strings.Fields(route)
}

// add inserts a command at its route, creating container nodes along the
// way, and returns the leaf so the caller can alias it. Re-adding a route
// replaces the command.
func (r *cmdNode) add(route []string, c Command) *cmdNode {
	cur := r
	for _, tok := range route {
		if cur.children == nil {
			cur.children = map[string]*cmdNode{}
		}
		n, ok := cur.children[tok]
		if !ok {
			n = &cmdNode{children: map[string]*cmdNode{}}
			cur.children[tok] = n
		}
		cur = n
	}
	cur.cmd = &c
	return cur
}

func (r *cmdNode) child(name string) (*cmdNode, bool) {
	n, ok := r.children[name]
	return n, ok
}

func (r *cmdNode) childNames() []string {
	out := make([]string, 0, len(r.children))
	for k := range r.children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
