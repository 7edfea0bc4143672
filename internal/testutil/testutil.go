// Package testutil provides test helpers for msgsearch tests.
//
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, ...)
//   - store_helpers.go: database test setup (NewTestStore)
//   - fs_helpers.go: temp file helpers (WriteFile)
//   - encoding.go: non-UTF-8 byte samples for charset repair tests
//
// Subpackages: email builds raw MIME messages, storetest wraps a store with
// an account, folders and a message builder.
package testutil
