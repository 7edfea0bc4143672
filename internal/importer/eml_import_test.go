package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/wesm/msgsearch/internal/testutil"
	"github.com/wesm/msgsearch/internal/testutil/email"
)

func TestImportEml_Directory(t *testing.T) {
	st := testutil.NewTestStore(t)
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.eml", email.NewMessage().Subject("first").Bytes())
	testutil.WriteFile(t, dir, "sub/b.EML", email.NewMessage().Subject("second").Bytes())
	testutil.WriteFile(t, dir, "notes.txt", []byte("not mail"))
	testutil.WriteFile(t, dir, ".hidden/c.eml", email.NewMessage().Subject("hidden").Bytes())

	sum, err := ImportEml(context.Background(), st, dir, EmlImportOptions{
		AccountUUID:  "acct-1",
		AccountEmail: "me@example.com",
	})
	testutil.MustNoErr(t, err, "ImportEml")
	if sum.FilesSeen != 2 || sum.MessagesAdded != 2 || sum.Errors != 0 {
		t.Errorf("summary = %+v", sum)
	}

	var subjects []string
	for _, id := range sum.MessageIDs {
		m, err := st.GetMessage(id)
		testutil.MustNoErr(t, err, "GetMessage")
		subjects = append(subjects, m.Subject)
	}
	testutil.AssertStrings(t, subjects, "first", "second")

	acct, err := st.GetAccount("acct-1")
	testutil.MustNoErr(t, err, "GetAccount")
	if acct.InboxFolderID == 0 {
		t.Error("Inbox not registered as the inbox folder")
	}
}

func TestImportEml_ReimportUpdates(t *testing.T) {
	st := testutil.NewTestStore(t)
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "m.eml", email.NewMessage().Bytes())
	opts := EmlImportOptions{AccountUUID: "acct-1", Folder: "Archive"}

	first, err := ImportEml(context.Background(), st, path, opts)
	testutil.MustNoErr(t, err, "first import")
	second, err := ImportEml(context.Background(), st, path, opts)
	testutil.MustNoErr(t, err, "second import")

	if first.MessagesAdded != 1 || second.MessagesUpdated != 1 || second.MessagesAdded != 0 {
		t.Errorf("first = %+v, second = %+v", first, second)
	}
	testutil.AssertIDs(t, second.MessageIDs, first.MessageIDs...)

	acct, _ := st.GetAccount("acct-1")
	if acct.InboxFolderID != 0 {
		t.Error("non-inbox folder registered as inbox")
	}
}

func TestImportEml_SkipsOversized(t *testing.T) {
	st := testutil.NewTestStore(t)
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "big.eml", email.NewMessage().Body(strings.Repeat("x", 4096)).Bytes())
	testutil.WriteFile(t, dir, "small.eml", email.NewMessage().Body("ok").Bytes())

	sum, err := ImportEml(context.Background(), st, dir, EmlImportOptions{
		AccountUUID:     "acct-1",
		MaxMessageBytes: 1024,
	})
	testutil.MustNoErr(t, err, "ImportEml")
	if sum.MessagesSkipped != 1 || sum.MessagesAdded != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestImportEml_Errors(t *testing.T) {
	st := testutil.NewTestStore(t)
	if _, err := ImportEml(context.Background(), st, t.TempDir(), EmlImportOptions{}); err == nil {
		t.Error("expected error without account UUID")
	}
	if _, err := ImportEml(context.Background(), st, "/does/not/exist", EmlImportOptions{AccountUUID: "a"}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestImportEml_Canceled(t *testing.T) {
	st := testutil.NewTestStore(t)
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.eml", email.NewMessage().Bytes())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := ImportEml(ctx, st, dir, EmlImportOptions{AccountUUID: "acct-1"})
	if err == nil {
		t.Fatal("expected context error")
	}
	if sum == nil || sum.MessagesAdded != 0 {
		t.Errorf("summary = %+v", sum)
	}
}
