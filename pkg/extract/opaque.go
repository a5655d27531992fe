package extract

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/3leaps/gotrawl/pkg/detect"
	"github.com/3leaps/gotrawl/pkg/execx"
	"github.com/3leaps/gotrawl/pkg/scratch"
)

// SQLiteDumpAdapter dumps every user table of an SQLite database in-process
// through a read-only connection.
type SQLiteDumpAdapter struct{}

func (SQLiteDumpAdapter) Extract(ctx context.Context, path string, _ *scratch.Manager) (Result, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return Result{}, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	tables, err := listTables(ctx, db)
	if err != nil {
		return Result{}, fmt.Errorf("sqlite dump: %w", err)
	}

	var b strings.Builder
	for _, table := range tables {
		if b.Len() >= maxTextBytes {
			break
		}
		b.WriteString(table)
		b.WriteByte(' ')
		dumpTable(ctx, db, table, &b)
	}
	return Result{Text: flatten(b.String())}, nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func dumpTable(ctx context.Context, db *sql.DB, table string, b *strings.Builder) {
	quoted := `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
	rows, err := db.QueryContext(ctx, `SELECT * FROM `+quoted)
	if err != nil {
		return
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return
	}
	b.WriteString(strings.Join(cols, " "))
	b.WriteByte(' ')

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() && b.Len() < maxTextBytes {
		if err := rows.Scan(ptrs...); err != nil {
			return
		}
		for _, v := range values {
			switch x := v.(type) {
			case nil:
			case []byte:
				b.Write(x)
				b.WriteByte(' ')
			default:
				fmt.Fprintf(b, "%v ", x)
			}
		}
	}
}

// PCAPAdapter renders packet captures as text via tcpdump.
type PCAPAdapter struct{}

func (PCAPAdapter) Extract(ctx context.Context, path string, _ *scratch.Manager) (Result, error) {
	out, err := execx.Output(ctx, "tcpdump", []string{"-nn", "-r", path})
	if err != nil {
		return Result{}, fmt.Errorf("pcap extract: %w", err)
	}
	return Result{Text: flatten(string(out))}, nil
}

// BytecodeAdapter disassembles Python bytecode via the interpreter's dis
// module, falling back to a printable-string dump when python is absent or
// the file predates the interpreter's magic.
type BytecodeAdapter struct{}

func (BytecodeAdapter) Extract(ctx context.Context, path string, _ *scratch.Manager) (Result, error) {
	out, err := execx.Output(ctx, "python3", []string{"-m", "dis", path})
	if err == nil {
		return Result{Text: flatten(string(out))}, nil
	}

	raw, readErr := readBounded(path, maxTextBytes)
	if readErr != nil {
		return Result{}, fmt.Errorf("bytecode extract: %w", readErr)
	}
	return Result{Text: flatten(strings.Join(printableRuns(raw, minStringRun), " "))}, nil
}

// RawAdapter handles declared octet-stream content: the record carries the
// file's identity but no text.
type RawAdapter struct{}

func (RawAdapter) Extract(context.Context, string, *scratch.Manager) (Result, error) {
	return Result{}, nil
}

// UnknownAdapter is the fallback for unclassified MIME types: files that
// probe as textual are read as plain text, everything else yields an empty
// record.
type UnknownAdapter struct {
	det *detect.Detector
}

func (a *UnknownAdapter) Extract(ctx context.Context, path string, _ *scratch.Manager) (Result, error) {
	if a.det != nil && a.det.IsText(ctx, path) {
		text, err := readTextFile(path)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text}, nil
	}
	return Result{}, nil
}
