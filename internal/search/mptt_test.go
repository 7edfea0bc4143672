package search

import (
	"errors"
	"math/rand"
	"testing"
)

func TestFlatten_Labels(t *testing.T) {
	n := NewBuilder(subjectTest).And(senderExample).Not().Build()
	rows := Flatten(n)

	want := []Row{
		{Operator: "NOT", Left: 1, Right: 8},
		{Operator: "AND", Left: 2, Right: 7},
		{Operator: "CONDITION", Field: FieldSubject, Attribute: Contains, Value: "test", Left: 3, Right: 4},
		{Operator: "CONDITION", Field: FieldSender, Attribute: Contains, Value: "example.com", Left: 5, Right: 6},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("rows[%d] = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestRebuild_RoundTripAnyOrder(t *testing.T) {
	trees := []Node{
		NewLeaf(subjectTest),
		NewBuilder(subjectTest).Not().And(senderExample).And(flaggedOne).Build(),
		NewBuilder(subjectTest).OrTree(NewBuilder(senderExample).And(flaggedOne).Not().Build()).Build(),
		UnreadSearch(AccountScope{Mode: FolderModeFirstAndSecondClass, Inbox: 1, Trash: 2, Sent: 3}),
	}

	rng := rand.New(rand.NewSource(1))
	for i, tree := range trees {
		rows := Flatten(tree)
		rng.Shuffle(len(rows), func(a, b int) { rows[a], rows[b] = rows[b], rows[a] })

		got, err := Rebuild(rows)
		if err != nil {
			t.Fatalf("tree %d: Rebuild: %v", i, err)
		}
		assertTreeEqual(t, got, tree)
	}
}

func TestRebuild_Malformed(t *testing.T) {
	leafRow := func(l, r int) Row {
		return Row{Operator: "CONDITION", Field: FieldSubject, Attribute: Contains, Value: "x", Left: l, Right: r}
	}
	tests := []struct {
		name string
		rows []Row
	}{
		{"empty", nil},
		{"two roots", []Row{leafRow(1, 2), leafRow(3, 4)}},
		{"and with one child", []Row{{Operator: "AND", Left: 1, Right: 4}, leafRow(2, 3)}},
		{"not with two children", []Row{{Operator: "NOT", Left: 1, Right: 6}, leafRow(2, 3), leafRow(4, 5)}},
		{"leaf with child", []Row{{Operator: "CONDITION", Left: 1, Right: 4}, leafRow(2, 3)}},
		{"unknown operator", []Row{{Operator: "XOR", Left: 1, Right: 2}}},
		{"inverted markers", []Row{leafRow(2, 1)}},
		{"overlap", []Row{{Operator: "NOT", Left: 1, Right: 4}, leafRow(2, 5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Rebuild(tt.rows); !errors.Is(err, ErrMalformedTree) {
				t.Errorf("err = %v, want ErrMalformedTree", err)
			}
		})
	}
}
