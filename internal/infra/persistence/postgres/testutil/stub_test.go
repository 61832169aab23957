package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
)

const upsert = `INSERT INTO subject_state(subject,payload) VALUES($1,$2) ON CONFLICT(subject) DO UPDATE SET payload=EXCLUDED.payload`

func TestStubConnUpsertsByPrimaryKeyAndDeletes(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	for _, payload := range []string{`[1]`, `[2]`} {
		if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "bill"}, {Value: []byte(payload)}}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "sue"}, {Value: []byte(`[3]`)}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(conn.Rows) != 2 || string(conn.Rows["bill"]) != `[2]` {
		t.Fatalf("expected one row per subject, got %v", conn.Rows)
	}

	_, err := conn.ExecContext(ctx, `INSERT INTO subject_state(subject,payload) VALUES($1,$2)`, []driver.NamedValue{{Value: "bill"}, {Value: []byte(`[]`)}})
	if err == nil {
		t.Fatalf("plain insert of an existing subject must fail")
	}

	res, err := conn.ExecContext(ctx, `DELETE FROM subject_state WHERE subject = $1`, []driver.NamedValue{{Value: "bill"}})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("expected one deleted row, got %d", n)
	}
	if _, ok := conn.Rows["bill"]; ok {
		t.Fatalf("bill should be gone: %v", conn.Rows)
	}
}

func TestStubConnSelectsSortedRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.Rows["sue"] = []byte(`[]`)
	conn.Rows["bill"] = []byte(`[1]`)

	rows, err := conn.QueryContext(ctx, "SELECT subject, payload FROM subject_state", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 2)
	var got []string
	for rows.Next(dest) == nil {
		got = append(got, dest[0].(string))
	}
	if len(got) != 2 || got[0] != "bill" || got[1] != "sue" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestStubConnRejectsUnknownStatementsAndInjectsFailures(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if _, err := conn.ExecContext(ctx, "TRUNCATE TABLE subject_state", nil); !errors.Is(err, errUnsupported) {
		t.Fatalf("expected unsupported statement, got %v", err)
	}
	if _, err := conn.QueryContext(ctx, "SELECT * FROM other", nil); !errors.Is(err, errUnsupported) {
		t.Fatalf("expected unsupported query, got %v", err)
	}

	conn.FailPing, conn.FailBegin, conn.FailWrite, conn.FailSelect = true, true, true, true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	if _, err := conn.BeginTx(ctx, driver.TxOptions{}); err == nil {
		t.Fatalf("expected begin failure")
	}
	if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "bill"}, {Value: []byte(`[]`)}}); err == nil {
		t.Fatalf("expected write failure")
	}
	if _, err := conn.QueryContext(ctx, "SELECT subject, payload FROM subject_state", nil); err == nil {
		t.Fatalf("expected select failure")
	}
}
