package cmd

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/search"
	"github.com/wesm/msgsearch/internal/store"
	"github.com/wesm/msgsearch/internal/testutil"
	"github.com/wesm/msgsearch/internal/testutil/storetest"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"héllo wörld", 8, "héllo..."},
		{"abcdef", 3, "abc"},
		{"日本語のテキスト", 9, "日本語..."},
		{"line\nbreak", 20, "line break"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestFlagMarks(t *testing.T) {
	tests := []struct {
		read, flagged bool
		want          string
	}{
		{true, false, "  "},
		{false, false, "N "},
		{true, true, " *"},
		{false, true, "N*"},
	}
	for _, tt := range tests {
		got := flagMarks(query.MessageSummary{Read: tt.read, Flagged: tt.flagged})
		if got != tt.want {
			t.Errorf("read=%v flagged=%v: got %q, want %q", tt.read, tt.flagged, got, tt.want)
		}
	}
}

func TestSpecialRoles(t *testing.T) {
	a := &store.Account{InboxFolderID: 1, SentFolderID: 2, OutboxFolderID: 2}
	want := map[int64]string{1: "inbox", 2: "outbox,sent"}
	if diff := cmp.Diff(want, specialRoles(a)); diff != "" {
		t.Errorf("specialRoles mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupSavedSearch(t *testing.T) {
	f := storetest.New(t)
	ss := &store.SavedSearch{Name: "invoices", Tree: search.Parse("subject:invoice")}
	testutil.MustNoErr(t, f.Store.CreateSavedSearch(ss), "CreateSavedSearch")

	byID, err := lookupSavedSearch(f.Store, strconv.FormatInt(ss.ID, 10))
	testutil.MustNoErr(t, err, "lookup by id")
	if byID.Name != "invoices" {
		t.Errorf("by id: name = %q", byID.Name)
	}

	byName, err := lookupSavedSearch(f.Store, "invoices")
	testutil.MustNoErr(t, err, "lookup by name")
	if byName.ID != ss.ID {
		t.Errorf("by name: id = %d, want %d", byName.ID, ss.ID)
	}

	if _, err := lookupSavedSearch(f.Store, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}
}
