package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/badbeats/pickgen/internal/models"
)

// MockPool implements PgPool for testing
type MockPool struct {
	QueryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	ExecFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *MockPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sql, args...)
	}
	return &MockRows{}, nil
}

func (m *MockPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.QueryRowFunc != nil {
		return m.QueryRowFunc(ctx, sql, args...)
	}
	return &MockRow{Err: pgx.ErrNoRows}
}

func (m *MockPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

// MockRow scans Values into the destinations in order.
type MockRow struct {
	Values []any
	Err    error
}

func (m *MockRow) Scan(dest ...any) error {
	if m.Err != nil {
		return m.Err
	}
	return assign(m.Values, dest)
}

// MockRows iterates over Data.
type MockRows struct {
	Data [][]any
	pos  int
}

func (m *MockRows) Close()                                       {}
func (m *MockRows) Err() error                                   { return nil }
func (m *MockRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (m *MockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *MockRows) Values() ([]any, error)                       { return m.Data[m.pos-1], nil }
func (m *MockRows) RawValues() [][]byte                          { return nil }
func (m *MockRows) Conn() *pgx.Conn                              { return nil }

func (m *MockRows) Next() bool {
	if m.pos >= len(m.Data) {
		return false
	}
	m.pos++
	return true
}

func (m *MockRows) Scan(dest ...any) error {
	return assign(m.Data[m.pos-1], dest)
}

func assign(values, dest []any) error {
	if len(values) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *float64:
			*d = v.(float64)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return errors.New("unsupported scan destination")
		}
	}
	return nil
}

func gameRow(g models.Game) []any {
	return []any{
		g.ID, g.StartTime, g.HomeTeamID, g.HomeTeamName, g.AwayTeamID, g.AwayTeamName,
		string(g.Status), g.Season, g.IngestedAt, g.UpdatedAt,
	}
}
