// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
)

// Connection is one physical SQLite connection owned by a Pool. It is
// not safe for concurrent use: it belongs to the caller that acquired
// it until it is released.
type Connection struct {
	pool       *Pool
	conn       *sqlite.Conn
	id         int64
	label      string
	primary    bool
	readOnly   bool
	generation uint64

	// settings were last applied to conn. Guarded by the pool mutex
	// while the connection is idle.
	settings connectionSettings
}

// ID returns the pool-unique connection number. The primary opened by
// Open is 0.
func (c *Connection) ID() int64 { return c.id }

// Label returns the label of the pool that opened the connection.
func (c *Connection) Label() string { return c.label }

// IsPrimaryConnection reports whether this is the pool's writer.
func (c *Connection) IsPrimaryConnection() bool { return c.primary }

// IsReadOnly reports whether the connection was opened read-only.
func (c *Connection) IsReadOnly() bool { return c.readOnly }

// Conn returns the underlying engine connection for use by OnConnect
// hooks (schema creation, function registration). Statements run on it
// directly bypass cancellation and error classification.
func (c *Connection) Conn() *sqlite.Conn { return c.conn }

// InTransaction reports whether the engine has an open transaction on
// this connection.
func (c *Connection) InTransaction() bool { return !c.conn.AutocommitEnabled() }

func (c *Connection) String() string {
	role := "secondary"
	if c.primary {
		role = "primary"
	}
	return fmt.Sprintf("%s#%d (%s)", c.label, c.id, role)
}

// openConnection opens and configures one engine connection.
func openConnection(cfg Config, primary bool, readOnly bool) (*sqlite.Conn, error) {
	path := cfg.Path
	if IsTemporary(path) {
		path = MemoryPath
	}

	var flags sqlite.OpenFlags
	if readOnly {
		flags = sqlite.OpenReadOnly
	} else {
		flags = sqlite.OpenReadWrite
		if cfg.Flags&CreateIfNecessary != 0 || IsTemporary(cfg.Path) {
			flags |= sqlite.OpenCreate
		}
	}

	conn, err := sqlite.OpenConn(path, flags)
	if err != nil {
		return nil, &sqlerr.OpenError{Path: cfg.Path, ReadOnly: readOnly, Err: err}
	}
	if err := configureConnection(conn, cfg, readOnly); err != nil {
		conn.Close()
		return nil, &sqlerr.OpenError{Path: cfg.Path, ReadOnly: readOnly, Err: err}
	}
	return conn, nil
}

func configureConnection(conn *sqlite.Conn, cfg Config, readOnly bool) error {
	pragmas := append(cfg.settings().pragmas(), "PRAGMA temp_store=MEMORY")
	if !readOnly {
		if cfg.Flags.WAL() {
			pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
		} else {
			pragmas = append(pragmas, "PRAGMA journal_mode=DELETE", "PRAGMA synchronous=FULL")
		}
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// applySettings brings the connection's per-connection pragmas up to
// date with cfg. foreign_keys has no effect inside a transaction, so
// the connection must be idle.
func (c *Connection) applySettings(cfg Config) error {
	next := cfg.settings()
	if c.settings == next {
		return nil
	}
	for _, pragma := range next.pragmas() {
		if err := sqlitex.ExecuteTransient(c.conn, pragma, nil); err != nil {
			return sqlerr.FromEngine(err, pragma)
		}
	}
	c.settings = next
	return nil
}

func onOff(enabled bool) string {
	if enabled {
		return "ON"
	}
	return "OFF"
}

// Prepare compiles query without executing it and describes the
// result.
func (c *Connection) Prepare(query string) (StatementInfo, error) {
	if err := checkNotEmpty(query); err != nil {
		return StatementInfo{}, err
	}
	stmt, _, err := c.conn.PrepareTransient(query)
	if err != nil {
		return StatementInfo{}, sqlerr.FromEngine(err, query)
	}
	defer stmt.Finalize()

	statementType := ClassifyStatement(query)
	info := StatementInfo{
		NumParameters: stmt.BindParamCount(),
		ReadOnly:      statementReadOnly(statementType, query),
		Type:          statementType,
	}
	for column := range stmt.ColumnCount() {
		info.ColumnNames = append(info.ColumnNames, stmt.ColumnName(column))
	}
	return info, nil
}

// Execute runs query and discards any result rows.
func (c *Connection) Execute(ctx context.Context, query string, args []any) error {
	return c.run(ctx, query, args, stepToCompletion)
}

// ExecuteForLong returns the first column of the first result row as
// an integer. A query with no rows fails with a SQLError whose code is
// SQLITE_DONE.
func (c *Connection) ExecuteForLong(ctx context.Context, query string, args []any) (int64, error) {
	var value int64
	err := c.run(ctx, query, args, func(stmt *sqlite.Stmt) error {
		if err := stepToFirstRow(stmt, query); err != nil {
			return err
		}
		value = stmt.ColumnInt64(0)
		return nil
	})
	return value, err
}

// ExecuteForString returns the first column of the first result row as
// text, with the same no-row behavior as ExecuteForLong.
func (c *Connection) ExecuteForString(ctx context.Context, query string, args []any) (string, error) {
	var value string
	err := c.run(ctx, query, args, func(stmt *sqlite.Stmt) error {
		if err := stepToFirstRow(stmt, query); err != nil {
			return err
		}
		value = stmt.ColumnText(0)
		return nil
	})
	return value, err
}

// ExecuteForBlob copies the first column of the first result row into
// a Blob. NULL yields an empty Blob; numbers and text are returned in
// their text encoding.
func (c *Connection) ExecuteForBlob(ctx context.Context, query string, args []any) (*Blob, error) {
	var data []byte
	err := c.run(ctx, query, args, func(stmt *sqlite.Stmt) error {
		if err := stepToFirstRow(stmt, query); err != nil {
			return err
		}
		if stmt.ColumnType(0) == sqlite.TypeNull {
			return nil
		}
		data = make([]byte, stmt.ColumnLen(0))
		stmt.ColumnBytes(0, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newBlob(data), nil
}

// ExecuteForChangedRowCount runs query to completion and returns the
// number of rows it inserted, updated, or deleted.
func (c *Connection) ExecuteForChangedRowCount(ctx context.Context, query string, args []any) (int, error) {
	var changes int
	err := c.run(ctx, query, args, func(stmt *sqlite.Stmt) error {
		if err := stepToCompletion(stmt); err != nil {
			return err
		}
		changes = c.conn.Changes()
		return nil
	})
	return changes, err
}

// ExecuteForLastInsertedRowID runs query to completion and returns the
// rowid of the last inserted row, or -1 if the statement changed
// nothing.
func (c *Connection) ExecuteForLastInsertedRowID(ctx context.Context, query string, args []any) (int64, error) {
	rowID := int64(-1)
	err := c.run(ctx, query, args, func(stmt *sqlite.Stmt) error {
		if err := stepToCompletion(stmt); err != nil {
			return err
		}
		if c.conn.Changes() > 0 {
			rowID = c.conn.LastInsertRowID()
		}
		return nil
	})
	return rowID, err
}

// run prepares (or fetches from the statement cache) query, binds args,
// and calls body with the interrupt hook tied to ctx. The statement is
// reset and its bindings cleared afterwards.
func (c *Connection) run(ctx context.Context, query string, args []any, body func(*sqlite.Stmt) error) (err error) {
	if err := checkNotEmpty(query); err != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return sqlerr.Cancelled(ctxErr)
	}
	previous := c.conn.SetInterrupt(ctx.Done())
	defer c.conn.SetInterrupt(previous)

	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return c.classify(ctx, err, query)
	}
	defer func() {
		resetErr := stmt.Reset()
		stmt.ClearBindings()
		if err == nil && resetErr != nil {
			err = c.classify(ctx, resetErr, query)
		}
	}()

	if err := bindArguments(stmt, args, query); err != nil {
		return err
	}
	if err := body(stmt); err != nil {
		return c.classify(ctx, err, query)
	}
	return nil
}

// classify maps an engine failure to the sqlerr taxonomy. Any failure
// after ctx ended is reported as a cancellation, since the interrupt
// may surface as an arbitrary engine error.
func (c *Connection) classify(ctx context.Context, err error, query string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return sqlerr.Cancelled(ctxErr)
	}
	if sqlite.ErrCode(err).ToPrimary() == sqlite.ResultInterrupt {
		return sqlerr.Cancelled(err)
	}
	return sqlerr.FromEngine(err, query)
}

func checkNotEmpty(query string) error {
	if strings.TrimSpace(skipLeadingComments(query)) == "" {
		return &sqlerr.SQLError{Code: sqlite.ResultMisuse, Message: "empty statement", SQL: query}
	}
	return nil
}

func stepToCompletion(stmt *sqlite.Stmt) error {
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return err
		}
		if !hasRow {
			return nil
		}
	}
}

func stepToFirstRow(stmt *sqlite.Stmt, query string) error {
	hasRow, err := stmt.Step()
	if err != nil {
		return err
	}
	if !hasRow {
		return sqlerr.NoRows(query)
	}
	return nil
}

// bindArguments binds args positionally. Values of types the engine
// has no storage class for are bound as their fmt text.
func bindArguments(stmt *sqlite.Stmt, args []any, query string) error {
	expected := stmt.BindParamCount()
	if len(args) != expected {
		return &sqlerr.SQLError{
			Code:    sqlite.ResultRange,
			Message: fmt.Sprintf("expected %d bind arguments but %d were provided", expected, len(args)),
			SQL:     query,
		}
	}
	for i, arg := range args {
		bindArgument(stmt, i+1, arg)
	}
	return nil
}

func bindArgument(stmt *sqlite.Stmt, param int, arg any) {
	switch value := arg.(type) {
	case nil:
		stmt.BindNull(param)
	case int:
		stmt.BindInt64(param, int64(value))
	case int8:
		stmt.BindInt64(param, int64(value))
	case int16:
		stmt.BindInt64(param, int64(value))
	case int32:
		stmt.BindInt64(param, int64(value))
	case int64:
		stmt.BindInt64(param, value)
	case uint:
		bindUnsigned(stmt, param, uint64(value))
	case uint8:
		stmt.BindInt64(param, int64(value))
	case uint16:
		stmt.BindInt64(param, int64(value))
	case uint32:
		stmt.BindInt64(param, int64(value))
	case uint64:
		bindUnsigned(stmt, param, value)
	case float32:
		stmt.BindFloat(param, float64(value))
	case float64:
		stmt.BindFloat(param, value)
	case bool:
		stmt.BindBool(param, value)
	case string:
		stmt.BindText(param, value)
	case []byte:
		if value == nil {
			stmt.BindNull(param)
		} else {
			stmt.BindBytes(param, value)
		}
	default:
		stmt.BindText(param, fmt.Sprint(value))
	}
}

// bindUnsigned binds values above the int64 range as text so they are
// not silently wrapped negative.
func bindUnsigned(stmt *sqlite.Stmt, param int, value uint64) {
	if value > math.MaxInt64 {
		stmt.BindText(param, strconv.FormatUint(value, 10))
		return
	}
	stmt.BindInt64(param, int64(value))
}
