// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import "strings"

// StatementType is the coarse kind of a SQL statement, derived from
// its leading keyword.
type StatementType int

const (
	StatementOther StatementType = iota
	StatementSelect
	StatementUpdate
	StatementAttach
	StatementBegin
	StatementCommit
	StatementAbort
	StatementPragma
	StatementDDL
	StatementUnprepared
)

func (t StatementType) String() string {
	switch t {
	case StatementSelect:
		return "SELECT"
	case StatementUpdate:
		return "UPDATE"
	case StatementAttach:
		return "ATTACH"
	case StatementBegin:
		return "BEGIN"
	case StatementCommit:
		return "COMMIT"
	case StatementAbort:
		return "ABORT"
	case StatementPragma:
		return "PRAGMA"
	case StatementDDL:
		return "DDL"
	case StatementUnprepared:
		return "UNPREPARED"
	default:
		return "OTHER"
	}
}

// IsTransactionControl reports whether the statement begins or ends a
// transaction.
func (t StatementType) IsTransactionControl() bool {
	return t == StatementBegin || t == StatementCommit || t == StatementAbort
}

// statementPrefixes maps the first three letters of a statement to its
// type. WITH is absent: a common table expression may precede INSERT,
// UPDATE or DELETE, so it classifies as StatementOther and is treated
// as a write.
var statementPrefixes = map[string]StatementType{
	"SEL": StatementSelect,
	"INS": StatementUpdate,
	"UPD": StatementUpdate,
	"REP": StatementUpdate,
	"DEL": StatementUpdate,
	"ATT": StatementAttach,
	"COM": StatementCommit,
	"END": StatementCommit,
	"ROL": StatementAbort,
	"BEG": StatementBegin,
	"PRA": StatementPragma,
	"CRE": StatementDDL,
	"DRO": StatementDDL,
	"ALT": StatementDDL,
	"ANA": StatementUnprepared,
	"DET": StatementUnprepared,
}

// ClassifyStatement returns the type of query from its first keyword,
// skipping leading whitespace and comments.
func ClassifyStatement(query string) StatementType {
	query = skipLeadingComments(query)
	if len(query) < 3 {
		return StatementOther
	}
	if statementType, ok := statementPrefixes[strings.ToUpper(query[:3])]; ok {
		return statementType
	}
	return StatementOther
}

func skipLeadingComments(query string) string {
	for {
		query = strings.TrimLeft(query, " \t\r\n\f\v")
		switch {
		case strings.HasPrefix(query, "--"):
			end := strings.IndexByte(query, '\n')
			if end < 0 {
				return ""
			}
			query = query[end+1:]
		case strings.HasPrefix(query, "/*"):
			end := strings.Index(query[2:], "*/")
			if end < 0 {
				return ""
			}
			query = query[end+4:]
		default:
			return query
		}
	}
}

// StatementInfo describes a compiled statement.
type StatementInfo struct {
	// NumParameters is the number of bind parameters.
	NumParameters int

	// ColumnNames lists the result columns, empty for statements that
	// return no rows.
	ColumnNames []string

	// ReadOnly reports whether the statement leaves the database
	// unchanged.
	ReadOnly bool

	Type StatementType
}

// statementReadOnly approximates sqlite3_stmt_readonly from the
// statement type: queries, and pragmas that read rather than assign.
func statementReadOnly(statementType StatementType, query string) bool {
	switch statementType {
	case StatementSelect:
		return true
	case StatementPragma:
		return !strings.ContainsAny(query, "=(")
	default:
		return false
	}
}
