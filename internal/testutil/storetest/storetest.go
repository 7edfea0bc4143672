// Package storetest provides a Fixture and helpers for tests that exercise
// the Store layer through its public API.
package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesm/msgsearch/internal/store"
	"github.com/wesm/msgsearch/internal/testutil"
)

// Fixture holds common test state for store-level tests.
type Fixture struct {
	T       *testing.T
	Store   *store.Store
	Account *store.Account
	Inbox   *store.Folder
	uid     atomic.Int64
}

// New creates a Fixture with a fresh test database, one account
// ("acct-1", me@example.com) and its Inbox, registered as the inbox folder.
func New(t *testing.T) *Fixture {
	t.Helper()
	st := testutil.NewTestStore(t)
	f := &Fixture{T: t, Store: st}
	f.Account = f.AddAccount("acct-1", "me@example.com")
	f.Inbox = f.AddFolder("Inbox")
	f.SetSpecial(store.SpecialInbox, f.Inbox.ID)
	return f
}

// AddAccount creates an account.
func (f *Fixture) AddAccount(uuid, email string) *store.Account {
	f.T.Helper()
	a, err := f.Store.GetOrCreateAccount(uuid, email)
	testutil.MustNoErr(f.T, err, "GetOrCreateAccount "+uuid)
	return a
}

// AddFolder creates a folder in the fixture's account.
func (f *Fixture) AddFolder(name string) *store.Folder {
	f.T.Helper()
	return f.AddFolderTo(f.Account.ID, name)
}

// AddFolderTo creates a folder in the given account.
func (f *Fixture) AddFolderTo(accountID int64, name string) *store.Folder {
	f.T.Helper()
	folder, err := f.Store.EnsureFolder(accountID, name)
	testutil.MustNoErr(f.T, err, "EnsureFolder "+name)
	return folder
}

// ConfigureFolder updates a folder's display settings.
func (f *Fixture) ConfigureFolder(folder *store.Folder, class string, integrate, visible bool) {
	f.T.Helper()
	err := f.Store.UpdateFolder(folder.ID, store.FolderSettings{
		DisplayClass: class,
		Integrate:    integrate,
		Visible:      visible,
	})
	testutil.MustNoErr(f.T, err, "UpdateFolder "+folder.Name)
}

// SetSpecial assigns a special folder role in the fixture's account and
// refreshes f.Account.
func (f *Fixture) SetSpecial(role store.SpecialFolder, folderID int64) {
	f.T.Helper()
	testutil.MustNoErr(f.T, f.Store.SetSpecialFolder(f.Account.ID, role, folderID), "SetSpecialFolder")
	a, err := f.Store.GetAccountByID(f.Account.ID)
	testutil.MustNoErr(f.T, err, "GetAccountByID")
	f.Account = a
}

// MessageBuilder provides a fluent API for constructing and storing
// messages.
type MessageBuilder struct {
	f        *Fixture
	msg      store.Message
	body     string
	hasBody  bool
	inReply  string
	noThread bool
}

// NewMessage starts a message in the fixture's inbox with a unique UID.
func (f *Fixture) NewMessage() *MessageBuilder {
	n := f.uid.Add(1)
	return &MessageBuilder{
		f: f,
		msg: store.Message{
			AccountID:  f.Account.ID,
			FolderID:   f.Inbox.ID,
			UID:        fmt.Sprintf("uid-%d", n),
			MessageID:  fmt.Sprintf("msg-%d@example.com", n),
			Subject:    fmt.Sprintf("Message %d", n),
			Date:       time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Hour),
			SenderList: "Sender <sender@example.com>",
			ToList:     "Me <me@example.com>",
		},
	}
}

func (b *MessageBuilder) InFolder(folder *store.Folder) *MessageBuilder {
	b.msg.FolderID = folder.ID
	b.msg.AccountID = folder.AccountID
	return b
}

func (b *MessageBuilder) WithSubject(s string) *MessageBuilder {
	b.msg.Subject = s
	return b
}

func (b *MessageBuilder) From(list string) *MessageBuilder {
	b.msg.SenderList = list
	return b
}

func (b *MessageBuilder) To(list string) *MessageBuilder {
	b.msg.ToList = list
	return b
}

func (b *MessageBuilder) Cc(list string) *MessageBuilder {
	b.msg.CcList = list
	return b
}

func (b *MessageBuilder) WithMessageID(id string) *MessageBuilder {
	b.msg.MessageID = id
	return b
}

func (b *MessageBuilder) WithFlags(flags ...string) *MessageBuilder {
	b.msg.Flags = flags
	return b
}

func (b *MessageBuilder) WithAttachments(n int) *MessageBuilder {
	b.msg.AttachmentCount = n
	return b
}

func (b *MessageBuilder) Read() *MessageBuilder {
	b.msg.Read = true
	return b
}

func (b *MessageBuilder) Flagged() *MessageBuilder {
	b.msg.Flagged = true
	return b
}

// WithBody indexes text as the message's full-text document on Create.
func (b *MessageBuilder) WithBody(text string) *MessageBuilder {
	b.body = text
	b.hasBody = true
	return b
}

// ReplyTo threads the message under the message with the given Message-ID.
func (b *MessageBuilder) ReplyTo(messageID string) *MessageBuilder {
	b.inReply = messageID
	return b
}

// NoThread skips thread assignment on Create.
func (b *MessageBuilder) NoThread() *MessageBuilder {
	b.noThread = true
	return b
}

// Build returns the constructed message without storing it.
func (b *MessageBuilder) Build() *store.Message {
	m := b.msg
	return &m
}

// Create stores the message, assigns its thread and indexes its body.
// It returns the message ID.
func (b *MessageBuilder) Create() int64 {
	t := b.f.T
	t.Helper()
	m := b.msg
	id, err := b.f.Store.UpsertMessage(&m)
	testutil.MustNoErr(t, err, "UpsertMessage")
	if !b.noThread {
		_, err = b.f.Store.AssignThread(id, b.inReply, nil)
		testutil.MustNoErr(t, err, "AssignThread")
	}
	if b.hasBody {
		testutil.MustNoErr(t, b.f.Store.UpsertFullText(id, b.body), "UpsertFullText")
	}
	return id
}
