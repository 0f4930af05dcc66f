package livestatus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore persists records in the live_status table (see db.Migrate).
type PostgresStore struct {
	db       *sql.DB
	platform string
}

// NewPostgresStore returns a store scoped to platform.
func NewPostgresStore(db *sql.DB, platform string) *PostgresStore {
	return &PostgresStore{db: db, platform: platform}
}

func (s *PostgresStore) Get(ctx context.Context, uid int64) (Record, bool, error) {
	var live sql.NullBool
	var start, end sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT is_live, start_time, end_time FROM live_status WHERE platform=$1 AND uid=$2`,
		s.platform, uid).Scan(&live, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	if !live.Valid {
		return Record{}, false, nil
	}
	return toRecord(uid, live.Bool, start, end), true, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, uid int64, live bool) error {
	return s.upsert(ctx, s.db, "is_live", uid, live)
}

func (s *PostgresStore) SetStartTime(ctx context.Context, uid int64, t int64) error {
	return s.upsert(ctx, s.db, "start_time", uid, t)
}

func (s *PostgresStore) SetEndTime(ctx context.Context, uid int64, t int64) error {
	return s.upsert(ctx, s.db, "end_time", uid, t)
}

func (s *PostgresStore) DeleteEndTime(ctx context.Context, uid int64) error {
	return s.deleteEndTime(ctx, s.db, uid)
}

func (s *PostgresStore) Reset(ctx context.Context, uid int64) error {
	return s.reset(ctx, s.db, uid)
}

// Apply runs ops inside one transaction.
func (s *PostgresStore) Apply(ctx context.Context, uid int64, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, op := range ops {
		switch op.Kind {
		case OpSetStatus:
			err = s.upsert(ctx, tx, "is_live", uid, op.Live)
		case OpSetStartTime:
			err = s.upsert(ctx, tx, "start_time", uid, op.Time)
		case OpDeleteEndTime:
			err = s.deleteEndTime(ctx, tx, uid)
		case OpReset:
			err = s.reset(ctx, tx, uid)
		default:
			err = unknownOp(uid, op.Kind)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op.Kind, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) deleteEndTime(ctx context.Context, ex execer, uid int64) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE live_status SET end_time=NULL, updated_at=NOW() WHERE platform=$1 AND uid=$2`,
		s.platform, uid)
	return err
}

func (s *PostgresStore) reset(ctx context.Context, ex execer, uid int64) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE live_status SET start_time=NULL, end_time=NULL, updated_at=NOW() WHERE platform=$1 AND uid=$2`,
		s.platform, uid)
	return err
}

func (s *PostgresStore) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, is_live, start_time, end_time FROM live_status WHERE platform=$1 AND is_live IS NOT NULL ORDER BY uid`,
		s.platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var uid int64
		var live bool
		var start, end sql.NullInt64
		if err := rows.Scan(&uid, &live, &start, &end); err != nil {
			return nil, err
		}
		out = append(out, toRecord(uid, live, start, end))
	}
	return out, rows.Err()
}

// upsert writes a single column. column is always one of the fixed names above.
func (s *PostgresStore) upsert(ctx context.Context, ex execer, column string, uid int64, value any) error {
	//nolint:gosec // G201: column is a package constant, not user input
	q := fmt.Sprintf(`INSERT INTO live_status (platform, uid, %[1]s, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (platform, uid) DO UPDATE SET %[1]s=EXCLUDED.%[1]s, updated_at=NOW()`, column)
	_, err := ex.ExecContext(ctx, q, s.platform, uid, value)
	return err
}

func toRecord(uid int64, live bool, start, end sql.NullInt64) Record {
	r := Record{UID: uid, Live: live}
	if start.Valid {
		r.StartTime = int64p(start.Int64)
	}
	if end.Valid {
		r.EndTime = int64p(end.Int64)
	}
	return r
}
