// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bureau-foundation/sqlsession/lib/codec"
	"github.com/bureau-foundation/sqlsession/lib/cursorwindow"
	"github.com/bureau-foundation/sqlsession/lib/resultexport"
	"github.com/bureau-foundation/sqlsession/lib/sqlitedb"
)

// statementArgs splits "SQL [ARG...]" and converts the arguments for
// binding. Arguments bind as text and SQLite applies column affinity.
func statementArgs(command string, args []string) (string, []any, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%s: missing SQL argument", command)
	}
	bound := make([]any, len(args)-1)
	for i, arg := range args[1:] {
		bound[i] = arg
	}
	return args[0], bound, nil
}

func runExec(ctx context.Context, db *sqlitedb.Database, args []string) error {
	query, bound, err := statementArgs("exec", args)
	if err != nil {
		return err
	}
	return db.ExecSQL(ctx, query, bound...)
}

func runQuery(ctx context.Context, db *sqlitedb.Database, args []string, stdout io.Writer) error {
	query, bound, err := statementArgs("query", args)
	if err != nil {
		return err
	}
	cursor, err := db.RawQuery(ctx, query, bound...)
	if err != nil {
		return err
	}
	defer cursor.Close()

	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, strings.Join(cursor.ColumnNames(), "\t"))
	fields := make([]string, cursor.ColumnCount())
	for cursor.Next() {
		for column := range fields {
			field, err := formatField(cursor, column)
			if err != nil {
				return fmt.Errorf("row %d: %w", cursor.Position(), err)
			}
			fields[column] = field
		}
		fmt.Fprintln(writer, strings.Join(fields, "\t"))
	}
	if err := cursor.Err(); err != nil {
		return err
	}
	return writer.Flush()
}

func formatField(cursor *sqlitedb.Cursor, column int) (string, error) {
	kind, err := cursor.Type(column)
	if err != nil {
		return "", err
	}
	switch kind {
	case cursorwindow.FieldTypeNull:
		return "NULL", nil
	case cursorwindow.FieldTypeBlob:
		blob, err := cursor.Blob(column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("x'%x'", blob), nil
	default:
		return cursor.Text(column)
	}
}

func runValidate(ctx context.Context, db *sqlitedb.Database, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("validate: want exactly one SQL argument")
	}
	info, err := db.ValidateSQL(ctx, args[0])
	if err != nil {
		return err
	}
	access := "read-write"
	if info.ReadOnly {
		access = "read-only"
	}
	fmt.Fprintf(stdout, "ok: %s, %d parameters", access, info.NumParameters)
	if len(info.ColumnNames) > 0 {
		fmt.Fprintf(stdout, ", columns: %s", strings.Join(info.ColumnNames, ", "))
	}
	fmt.Fprintln(stdout)
	return nil
}

func runExport(ctx context.Context, db *sqlitedb.Database, args []string, compressionName, output string,
	stdout io.Writer, logger *slog.Logger) error {
	query, bound, err := statementArgs("export", args)
	if err != nil {
		return err
	}
	if output == "" {
		return errors.New("export: --output is required (use - for stdout)")
	}
	compression, err := resultexport.ParseCompression(compressionName)
	if err != nil {
		return err
	}

	cursor, err := db.RawQuery(ctx, query, bound...)
	if err != nil {
		return err
	}
	defer cursor.Close()
	export, err := resultexport.FromCursor(cursor, compression)
	if err != nil {
		return err
	}

	if output == "-" {
		_, err = export.WriteTo(stdout)
		return err
	}
	file, err := os.Create(output)
	if err != nil {
		return err
	}
	buffered := bufio.NewWriter(file)
	if _, err := export.WriteTo(buffered); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", output, err)
	}
	if err := buffered.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", output, err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	logger.Info("export written",
		"path", output,
		"rows", export.RowCount,
		"compression", export.Compression,
		"payload_bytes", len(export.Payload),
		"uncompressed_bytes", export.UncompressedSize,
	)
	return nil
}

func runInspect(args []string, diagnose bool, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("inspect: want exactly one export file")
	}
	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	export, err := resultexport.Read(bufio.NewReader(file))
	if err != nil {
		return err
	}
	// Rows decompresses the payload and verifies its checksum.
	if _, err := export.Rows(); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	fmt.Fprintf(stdout, "version:       %d\n", export.Version)
	fmt.Fprintf(stdout, "compression:   %s\n", export.Compression)
	fmt.Fprintf(stdout, "columns:       %s\n", strings.Join(export.Columns, ", "))
	fmt.Fprintf(stdout, "rows:          %d\n", export.RowCount)
	fmt.Fprintf(stdout, "payload:       %d bytes (%d uncompressed)\n", len(export.Payload), export.UncompressedSize)
	fmt.Fprintf(stdout, "checksum:      %s (verified)\n", export.Checksum)
	if !diagnose {
		return nil
	}

	header := *export
	header.Payload = nil
	data, err := codec.Marshal(&header)
	if err != nil {
		return err
	}
	notation, err := codec.Diagnose(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "header:        %s\n", notation)
	return nil
}
