package search

import "testing"

func TestLimitToDisplayableFolders(t *testing.T) {
	base := NewLeaf(subjectTest)
	tests := []struct {
		mode     FolderMode
		wantSQL  string
		wantArgs []interface{}
	}{
		{FolderModeAll, "subject LIKE ?", []interface{}{"%test%"}},
		{FolderModeNone, "subject LIKE ?", []interface{}{"%test%"}},
		{FolderModeFirstClass, "(subject LIKE ?) AND (display_class = ?)", []interface{}{"%test%", ClassFirst}},
		{
			FolderModeFirstAndSecondClass,
			"(subject LIKE ?) AND ((display_class = ?) OR (display_class = ?))",
			[]interface{}{"%test%", ClassFirst, ClassSecond},
		},
		{FolderModeNotSecondClass, "(subject LIKE ?) AND (display_class != ?)", []interface{}{"%test%", ClassSecond}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			n := LimitToDisplayableFolders(base, AccountScope{Mode: tt.mode})
			assertCompiled(t, n, tt.wantSQL, tt.wantArgs...)
		})
	}
}

func TestExcludeSpecialFolders(t *testing.T) {
	scope := AccountScope{Inbox: 1, Trash: 2, Drafts: 3, Spam: 0, Outbox: 5, Sent: 6}
	n := ExcludeSpecialFolders(nil, scope)
	assertCompiled(t, n,
		"((((messages.folder_id != ?) AND (messages.folder_id != ?)) AND (messages.folder_id != ?)) AND (messages.folder_id != ?)) OR (messages.folder_id = ?)",
		"2", "3", "5", "6", "1")
}

func TestExcludeUnwantedFolders(t *testing.T) {
	scope := AccountScope{Inbox: 1, Trash: 2, Drafts: 3, Spam: 4, Outbox: 5, Sent: 6}
	n := ExcludeUnwantedFolders(NewLeaf(flaggedOne), scope)
	assertCompiled(t, n,
		"((((flagged = ?) AND (messages.folder_id != ?)) AND (messages.folder_id != ?)) AND (messages.folder_id != ?)) OR (messages.folder_id = ?)",
		"1", "2", "4", "5", "1")
}

func TestExcludeSpecialFolders_NoFolders(t *testing.T) {
	if n := ExcludeSpecialFolders(nil, AccountScope{Inbox: 1}); n != nil {
		t.Errorf("expected nil tree, got %#v", n)
	}
}

func TestUnreadSearch(t *testing.T) {
	n := UnreadSearch(AccountScope{Mode: FolderModeFirstClass, Inbox: 1, Trash: 2})
	assertCompiled(t, n,
		"((read != ?) AND (visible = ?)) AND (((messages.folder_id != ?) OR (messages.folder_id = ?)) AND (display_class = ?))",
		"1", "1", "2", "1", ClassFirst)
}

func TestFlaggedSearch_NoScope(t *testing.T) {
	assertCompiled(t, FlaggedSearch(AccountScope{}), "(flagged = ?) AND (visible = ?)", "1", "1")
}

func TestUnifiedInboxAndThread(t *testing.T) {
	assertCompiled(t, UnifiedInboxSearch(), "(integrate = ?) AND (visible = ?)", "1", "1")
	assertCompiled(t, ThreadSearch(42), "threads.root = ?", "42")
}

func TestParseFolderMode(t *testing.T) {
	if m, err := ParseFolderMode(""); err != nil || m != FolderModeAll {
		t.Errorf("empty = %v, %v", m, err)
	}
	if m, err := ParseFolderMode("first_class"); err != nil || m != FolderModeFirstClass {
		t.Errorf("first_class = %v, %v", m, err)
	}
	if _, err := ParseFolderMode("bogus"); err == nil {
		t.Error("expected error")
	}
}
