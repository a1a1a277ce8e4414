// Package store archives docs assistant transcripts in SQLite.
//
// The archive is optional: the live conversation always lives in memory in
// the session package. When a database path is configured, every appended
// message and every thread close (with the remote reset acknowledgement) is
// written here so transcripts survive a reset.
//
//	s, err := store.NewSQLiteStore("/var/lib/docs-copilot/archive.db")
//	defer s.Close()
//
// Threads are created implicitly by the first write that references them.
package store
