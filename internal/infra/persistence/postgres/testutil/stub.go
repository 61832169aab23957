// Package testutil provides a database/sql driver that emulates the
// subject_state table of the postgres entry store.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
)

var stubSeq atomic.Uint64

// StubConn holds subject_state rows in memory and records every statement it
// executes. The Fail* switches inject errors at each step the store takes.
type StubConn struct {
	Execs []string
	// Rows maps subject to payload.
	Rows map[string][]byte

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailWrite  bool
	FailSelect bool
}

// NewStubDB registers a fresh stub driver and returns a pool bound to it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Rows: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

var errUnsupported = errors.New("stub: unsupported statement")

// Prepare is required by driver.Conn; the store only issues direct statements.
func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("%w: prepare %q", errUnsupported, query)
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin is required by driver.Conn; database/sql calls BeginTx.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext understands the DDL, the upsert keyed on subject and the
// delete by subject.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	stmt := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	switch {
	case strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS SUBJECT_STATE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(stmt, "INSERT INTO SUBJECT_STATE"):
		if c.FailWrite {
			return nil, errors.New("write fail")
		}
		subject, payload, err := subjectPayload(args)
		if err != nil {
			return nil, err
		}
		if _, exists := c.Rows[subject]; exists && !strings.Contains(stmt, "ON CONFLICT(SUBJECT)") {
			return nil, fmt.Errorf("duplicate key subject=%s", subject)
		}
		c.Rows[subject] = payload
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(stmt, "DELETE FROM SUBJECT_STATE WHERE SUBJECT"):
		if c.FailWrite {
			return nil, errors.New("write fail")
		}
		if len(args) != 1 {
			return nil, fmt.Errorf("delete expects one argument, got %d", len(args))
		}
		subject, _ := args[0].Value.(string)
		if _, ok := c.Rows[subject]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.Rows, subject)
		return driver.RowsAffected(1), nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupported, query)
	}
}

func subjectPayload(args []driver.NamedValue) (string, []byte, error) {
	if len(args) != 2 {
		return "", nil, fmt.Errorf("insert expects subject and payload, got %d arguments", len(args))
	}
	subject, ok := args[0].Value.(string)
	if !ok {
		return "", nil, fmt.Errorf("subject must be text, got %T", args[0].Value)
	}
	switch p := args[1].Value.(type) {
	case []byte:
		return subject, slices.Clone(p), nil
	case string:
		return subject, []byte(p), nil
	default:
		return "", nil, fmt.Errorf("payload must be bytes, got %T", p)
	}
}

// QueryContext answers the hydration select, ordered by subject.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	stmt := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	if stmt != "SELECT SUBJECT, PAYLOAD FROM SUBJECT_STATE" {
		return nil, fmt.Errorf("%w: %s", errUnsupported, query)
	}
	if c.FailSelect {
		return nil, errors.New("select fail")
	}
	rows := &stubRows{}
	for _, subject := range slices.Sorted(maps.Keys(c.Rows)) {
		rows.values = append(rows.values, []driver.Value{subject, slices.Clone(c.Rows[subject])})
	}
	return rows, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	values [][]driver.Value
	idx    int
}

func (r *stubRows) Columns() []string { return []string{"subject", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}
