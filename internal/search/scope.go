package search

import (
	"fmt"
	"strconv"
	"strings"
)

// FolderMode selects which folder display classes an account shows.
type FolderMode string

const (
	FolderModeAll                 FolderMode = "ALL"
	FolderModeFirstClass          FolderMode = "FIRST_CLASS"
	FolderModeFirstAndSecondClass FolderMode = "FIRST_AND_SECOND_CLASS"
	FolderModeNotSecondClass      FolderMode = "NOT_SECOND_CLASS"
	FolderModeNone                FolderMode = "NONE"
)

// Folder display classes stored in folders.display_class.
const (
	ClassNone   = "NO_CLASS"
	ClassFirst  = "FIRST_CLASS"
	ClassSecond = "SECOND_CLASS"
)

// ParseFolderMode accepts the canonical names case-insensitively. An empty
// string means ALL.
func ParseFolderMode(s string) (FolderMode, error) {
	if s == "" {
		return FolderModeAll, nil
	}
	m := FolderMode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case FolderModeAll, FolderModeFirstClass, FolderModeFirstAndSecondClass,
		FolderModeNotSecondClass, FolderModeNone:
		return m, nil
	}
	return "", fmt.Errorf("unknown folder mode %q", s)
}

// AccountScope carries the per-account settings that shape built-in
// searches. Folder fields hold folder IDs; zero means the account has no
// such folder.
type AccountScope struct {
	Mode   FolderMode
	Inbox  int64
	Trash  int64
	Drafts int64
	Spam   int64
	Outbox int64
	Sent   int64
}

// FolderID formats a folder ID as a FOLDER condition value.
func FolderID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func folderIs(id int64) Condition {
	return NewCondition(FieldFolder, Equals, FolderID(id))
}

func folderIsNot(id int64) Condition {
	return NewCondition(FieldFolder, NotEquals, FolderID(id))
}

// LimitToDisplayableFolders restricts n to folders shown under the account's
// folder mode. A nil n starts a new tree.
func LimitToDisplayableFolders(n Node, scope AccountScope) Node {
	first := NewLeaf(NewCondition(FieldDisplayClass, Equals, ClassFirst))
	switch scope.Mode {
	case FolderModeFirstClass:
		return And(n, first)
	case FolderModeFirstAndSecondClass:
		second := NewLeaf(NewCondition(FieldDisplayClass, Equals, ClassSecond))
		return And(n, Or(first, second))
	case FolderModeNotSecondClass:
		return And(n, NewLeaf(NewCondition(FieldDisplayClass, NotEquals, ClassSecond)))
	}
	return n
}

// ExcludeSpecialFolders removes trash, drafts, spam, outbox and sent from n.
// The inbox is always included, even when a special folder points at it.
func ExcludeSpecialFolders(n Node, scope AccountScope) Node {
	for _, id := range []int64{scope.Trash, scope.Drafts, scope.Spam, scope.Outbox, scope.Sent} {
		n = excludeFolder(n, id)
	}
	return includeInbox(n, scope)
}

// ExcludeUnwantedFolders removes trash, spam and outbox from n, keeping the
// inbox.
func ExcludeUnwantedFolders(n Node, scope AccountScope) Node {
	for _, id := range []int64{scope.Trash, scope.Spam, scope.Outbox} {
		n = excludeFolder(n, id)
	}
	return includeInbox(n, scope)
}

func excludeFolder(n Node, id int64) Node {
	if id == 0 {
		return n
	}
	return And(n, NewLeaf(folderIsNot(id)))
}

func includeInbox(n Node, scope AccountScope) Node {
	if scope.Inbox == 0 || n == nil {
		return n
	}
	return Or(n, NewLeaf(folderIs(scope.Inbox)))
}

// FolderScope restricts a search to the account's displayable folders with
// special folders excluded. It returns nil when nothing needs restricting.
func FolderScope(scope AccountScope) Node {
	return LimitToDisplayableFolders(ExcludeSpecialFolders(nil, scope), scope)
}

// UnreadSearch matches unread messages in displayable, non-special folders.
func UnreadSearch(scope AccountScope) Node {
	n := NewBuilder(NewCondition(FieldRead, NotEquals, "1")).
		And(NewCondition(FieldVisible, Equals, "1")).
		Build()
	return And(n, FolderScope(scope))
}

// FlaggedSearch matches flagged messages in displayable, non-special folders.
func FlaggedSearch(scope AccountScope) Node {
	n := NewBuilder(NewCondition(FieldFlagged, Equals, "1")).
		And(NewCondition(FieldVisible, Equals, "1")).
		Build()
	return And(n, FolderScope(scope))
}

// UnifiedInboxSearch matches messages in folders integrated into the
// unified inbox.
func UnifiedInboxSearch() Node {
	return NewBuilder(NewCondition(FieldIntegrate, Equals, "1")).
		And(NewCondition(FieldVisible, Equals, "1")).
		Build()
}

// ThreadSearch matches every message of the thread rooted at rootID.
func ThreadSearch(rootID int64) Node {
	return NewLeaf(NewCondition(FieldThreadID, Equals, strconv.FormatInt(rootID, 10)))
}
