package store_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/msgsearch/internal/search"
	"github.com/wesm/msgsearch/internal/store"
	"github.com/wesm/msgsearch/internal/testutil"
)

func sampleTree() search.Node {
	return search.NewBuilder(search.NewCondition(search.FieldSubject, search.Contains, "report")).
		Or(search.NewCondition(search.FieldSender, search.Contains, "boss@example.com")).
		Not().
		And(search.NewCondition(search.FieldFlagged, search.Equals, "1")).
		Build()
}

func TestSavedSearches_CreateAndGet(t *testing.T) {
	st := testutil.NewTestStore(t)
	ss := &store.SavedSearch{
		Name:         "not reports, flagged",
		Query:        "-(subject:report OR from:boss@example.com) is:flagged",
		AccountUUIDs: []string{"acct-1", "acct-2"},
		Tree:         sampleTree(),
	}
	testutil.MustNoErr(t, st.CreateSavedSearch(ss), "CreateSavedSearch")
	if ss.ID == 0 {
		t.Fatal("expected ID to be set")
	}

	got, err := st.GetSavedSearch(ss.ID)
	testutil.MustNoErr(t, err, "GetSavedSearch")
	if diff := cmp.Diff(sampleTree(), got.Tree); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	testutil.AssertStrings(t, got.AccountUUIDs, "acct-1", "acct-2")
	if got.AllAccounts() {
		t.Error("search with account UUIDs reported AllAccounts")
	}
	if got.Query != ss.Query || got.Name != ss.Name {
		t.Errorf("got %q/%q", got.Name, got.Query)
	}

	byName, err := st.GetSavedSearchByName(ss.Name)
	testutil.MustNoErr(t, err, "GetSavedSearchByName")
	if byName.ID != ss.ID {
		t.Errorf("by name id = %d, want %d", byName.ID, ss.ID)
	}
}

func TestSavedSearches_SingleLeafAndAllAccounts(t *testing.T) {
	st := testutil.NewTestStore(t)
	ss := &store.SavedSearch{
		Name: "unread",
		Tree: search.NewLeaf(search.NewCondition(search.FieldRead, search.NotEquals, "1")),
	}
	testutil.MustNoErr(t, st.CreateSavedSearch(ss), "CreateSavedSearch")

	got, err := st.GetSavedSearch(ss.ID)
	testutil.MustNoErr(t, err, "GetSavedSearch")
	if !got.AllAccounts() {
		t.Errorf("AccountUUIDs = %v, want all", got.AccountUUIDs)
	}
	if diff := cmp.Diff(ss.Tree, got.Tree); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestSavedSearches_DuplicateName(t *testing.T) {
	st := testutil.NewTestStore(t)
	mk := func() *store.SavedSearch {
		return &store.SavedSearch{Name: "dup", Tree: sampleTree()}
	}
	testutil.MustNoErr(t, st.CreateSavedSearch(mk()), "first")
	if err := st.CreateSavedSearch(mk()); !errors.Is(err, store.ErrDuplicateSearch) {
		t.Errorf("err = %v, want ErrDuplicateSearch", err)
	}
}

func TestSavedSearches_EmptyTree(t *testing.T) {
	st := testutil.NewTestStore(t)
	if err := st.CreateSavedSearch(&store.SavedSearch{Name: "empty"}); err == nil {
		t.Error("expected error for empty tree")
	}
}

func TestSavedSearches_Update(t *testing.T) {
	st := testutil.NewTestStore(t)
	ss := &store.SavedSearch{Name: "s", Tree: sampleTree()}
	testutil.MustNoErr(t, st.CreateSavedSearch(ss), "create")

	ss.Name = "renamed"
	ss.Tree = search.NewLeaf(search.NewCondition(search.FieldMessageContents, search.Contains, "invoice"))
	testutil.MustNoErr(t, st.UpdateSavedSearch(ss), "update")

	got, err := st.GetSavedSearch(ss.ID)
	testutil.MustNoErr(t, err, "get")
	if got.Name != "renamed" {
		t.Errorf("name = %q", got.Name)
	}
	if diff := cmp.Diff(ss.Tree, got.Tree); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}

	ss.ID = 999
	if err := st.UpdateSavedSearch(ss); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSavedSearches_ListAndDelete(t *testing.T) {
	st := testutil.NewTestStore(t)
	for _, name := range []string{"b", "a"} {
		testutil.MustNoErr(t, st.CreateSavedSearch(&store.SavedSearch{Name: name, Tree: sampleTree()}), "create "+name)
	}

	list, err := st.ListSavedSearches()
	testutil.MustNoErr(t, err, "list")
	var names []string
	for _, ss := range list {
		names = append(names, ss.Name)
		if ss.Tree == nil {
			t.Errorf("%s: tree not loaded", ss.Name)
		}
	}
	testutil.AssertStrings(t, names, "a", "b")

	testutil.MustNoErr(t, st.DeleteSavedSearch(list[0].ID), "delete")
	if _, err := st.GetSavedSearch(list[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("get after delete err = %v, want ErrNotFound", err)
	}
	if err := st.DeleteSavedSearch(list[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}

	var rows int
	err = st.DB().QueryRow(`SELECT COUNT(*) FROM search_conditions WHERE search_id = ?`, list[0].ID).Scan(&rows)
	testutil.MustNoErr(t, err, "count conditions")
	if rows != 0 {
		t.Errorf("conditions left after delete: %d", rows)
	}
}

func TestSavedSearches_CorruptRowsFailToLoad(t *testing.T) {
	st := testutil.NewTestStore(t)
	ss := &store.SavedSearch{Name: "s", Tree: sampleTree()}
	testutil.MustNoErr(t, st.CreateSavedSearch(ss), "create")

	// Dropping a leaf leaves the root AND with a single child.
	_, err := st.DB().Exec(`DELETE FROM search_conditions WHERE search_id = ? AND field = 'FLAGGED'`, ss.ID)
	testutil.MustNoErr(t, err, "corrupt")

	if _, err := st.GetSavedSearch(ss.ID); !errors.Is(err, search.ErrMalformedTree) {
		t.Errorf("err = %v, want ErrMalformedTree", err)
	}
}
