package plugin

import (
	"reflect"
	"testing"
)

func TestCommandTree(t *testing.T) {
	t.Parallel()
	root := newRoot()

	add := root.add(splitRoute("vax add"), Command{Route: "vax add"})
	root.add(splitRoute("vax list"), Command{Route: "vax list"})
	pets := root.add(splitRoute("pets"), Command{Route: "pets"})

	if add.cmd == nil || add.cmd.Route != "vax add" {
		t.Fatalf("add did not return the leaf: %+v", add.cmd)
	}
	if pets.cmd == nil || pets.cmd.Route != "pets" {
		t.Fatalf("single-token leaf: %+v", pets.cmd)
	}

	vax, ok := root.child("vax")
	if !ok {
		t.Fatal("missing container node")
	}
	if vax.cmd != nil {
		t.Fatalf("container node should carry no command, got %q", vax.cmd.Route)
	}
	if got := vax.childNames(); !reflect.DeepEqual(got, []string{"add", "list"}) {
		t.Fatalf("childNames = %v", got)
	}

	// Re-adding a route replaces the command in place.
	again := root.add(splitRoute("vax add"), Command{Route: "vax add", Description: "v2"})
	if again != add {
		t.Fatal("re-add created a second node for the same route")
	}
	if add.cmd.Description != "v2" {
		t.Fatalf("re-add did not replace the command: %+v", add.cmd)
	}
}
