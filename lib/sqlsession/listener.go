// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlsession

// Listener observes one transaction level. Callbacks run synchronously
// on the caller's goroutine while the session holds its connection.
type Listener interface {
	// OnBegin runs after BEGIN or SAVEPOINT. An error rolls the level
	// back and is returned from BeginTransaction.
	OnBegin() error

	// OnCommit runs before a successful level is committed. An error
	// rolls the level back instead and is returned from EndTransaction.
	OnCommit() error

	// OnRollback runs before an unsuccessful level is rolled back.
	OnRollback()
}

// ListenerFuncs adapts optional closures to Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	Begin    func() error
	Commit   func() error
	Rollback func()
}

var _ Listener = ListenerFuncs{}

func (l ListenerFuncs) OnBegin() error {
	if l.Begin == nil {
		return nil
	}
	return l.Begin()
}

func (l ListenerFuncs) OnCommit() error {
	if l.Commit == nil {
		return nil
	}
	return l.Commit()
}

func (l ListenerFuncs) OnRollback() {
	if l.Rollback != nil {
		l.Rollback()
	}
}
