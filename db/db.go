// Package db provides database connection helpers, schema migration, and small data access helpers.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/starwatch/subject"
)

// Platform scopes every row this service writes.
const Platform = "bilibili"

// Connect opens a Postgres connection pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	dbx.SetMaxOpenConns(10)
	dbx.SetMaxIdleConns(5)
	dbx.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pingCtx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return dbx, nil
}

// Migrate brings the schema to the latest embedded version.
func Migrate(ctx context.Context, dbx *sql.DB) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return RunMigrations(dbx)
}

// ListSubjects returns every persisted subject ordered by uid.
func ListSubjects(ctx context.Context, dbx *sql.DB) ([]subject.Subject, error) {
	rows, err := dbx.QueryContext(ctx,
		`SELECT uid, name, room_id, events FROM subjects WHERE platform=$1 ORDER BY uid`, Platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []subject.Subject
	for rows.Next() {
		var (
			s      subject.Subject
			room   sql.NullInt64
			events string
		)
		if err := rows.Scan(&s.UID, &s.Name, &room, &events); err != nil {
			return nil, err
		}
		if room.Valid {
			v := room.Int64
			s.RoomID = &v
		}
		if s.Events, err = subject.ParseEventKinds(events); err != nil {
			return nil, fmt.Errorf("subject %d: %w", s.UID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertSubject inserts s or replaces the stored row with the same uid.
func UpsertSubject(ctx context.Context, dbx *sql.DB, s subject.Subject) error {
	var room sql.NullInt64
	if s.RoomID != nil {
		room = sql.NullInt64{Int64: *s.RoomID, Valid: true}
	}
	_, err := dbx.ExecContext(ctx, `INSERT INTO subjects (platform, uid, name, room_id, events, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
		ON CONFLICT (platform, uid) DO UPDATE SET name=EXCLUDED.name, room_id=EXCLUDED.room_id, events=EXCLUDED.events, updated_at=NOW()`,
		Platform, s.UID, s.Name, room, s.Events.String())
	return err
}

// DeleteSubject removes uid. It reports whether a row existed.
func DeleteSubject(ctx context.Context, dbx *sql.DB, uid int64) (bool, error) {
	res, err := dbx.ExecContext(ctx, `DELETE FROM subjects WHERE platform=$1 AND uid=$2`, Platform, uid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SubjectRepo adapts the subject helpers to a value bound to one pool.
type SubjectRepo struct {
	DB *sql.DB
}

func (r SubjectRepo) List(ctx context.Context) ([]subject.Subject, error) {
	return ListSubjects(ctx, r.DB)
}

func (r SubjectRepo) Upsert(ctx context.Context, s subject.Subject) error {
	return UpsertSubject(ctx, r.DB, s)
}

func (r SubjectRepo) Delete(ctx context.Context, uid int64) (bool, error) {
	return DeleteSubject(ctx, r.DB, uid)
}
