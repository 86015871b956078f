package main

import (
	"testing"

	"github.com/janelia-flyem/omerokv/query"
)

func TestCommandArgs(t *testing.T) {
	cmd := Command{"Query", "Disease=Big", "extra", "Lighting=Medium=high"}
	if cmd.Name() != "query" {
		t.Fatalf("bad name %q\n", cmd.Name())
	}
	if cmd.Argument(1) != "extra" || cmd.Argument(2) != "" || cmd.Argument(0) != "" {
		t.Fatalf("bad positional arguments %v\n", cmd.Args())
	}
	oc, err := query.ParseConstraintArgs(cmd.KeyValueArgs())
	if err != nil {
		t.Fatalf("key values: %v\n", err)
	}
	kvs := oc.Constraints()
	if len(kvs) != 2 || kvs[1].Key != "Lighting" || kvs[1].Value != "Medium=high" {
		t.Fatalf("bad key values %v\n", kvs)
	}
	if _, err := query.ParseConstraintArgs(Command{"query", "=oops"}.KeyValueArgs()); err == nil {
		t.Fatalf("expected error on empty key\n")
	}
	if (Command{}).Name() != "" {
		t.Fatalf("empty command should have empty name\n")
	}
}
