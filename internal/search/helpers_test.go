package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// assertTreeEqual compares two condition trees structurally.
func assertTreeEqual(t *testing.T, got, want Node) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

// assertCompiled compiles n and checks the SQL text and arguments.
func assertCompiled(t *testing.T, n Node, wantSQL string, wantArgs ...interface{}) {
	t.Helper()
	q, err := Compile(n)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if q.SQL != wantSQL {
		t.Errorf("SQL:\n got: %s\nwant: %s", q.SQL, wantSQL)
	}
	if diff := cmp.Diff(wantArgs, q.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func cond(f Field, a Attribute, v string) Condition { return NewCondition(f, a, v) }

var (
	subjectTest   = cond(FieldSubject, Contains, "test")
	senderExample = cond(FieldSender, Contains, "example.com")
	flaggedOne    = cond(FieldFlagged, Equals, "1")
)
