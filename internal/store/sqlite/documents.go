package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/store"
)

var _ store.Journal = (*Store)(nil)

const documentColumns = `path, document_id, fp_exists, fp_hashed, fp_hash, fp_size, fp_mod_time,
	state, outcome, opened_at, updated_at`

// RecordOpen stores the open-time fingerprint for path. An existing entry
// keeps its last outcome.
func (s *Store) RecordOpen(ctx context.Context, path, documentID string, fp fingerprint.Fingerprint) error {
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			document_id = excluded.document_id,
			fp_exists = excluded.fp_exists,
			fp_hashed = excluded.fp_hashed,
			fp_hash = excluded.fp_hash,
			fp_size = excluded.fp_size,
			fp_mod_time = excluded.fp_mod_time,
			opened_at = excluded.opened_at,
			updated_at = excluded.updated_at`,
		path,
		documentID,
		boolInt(fp.Exists),
		boolInt(fp.Hashed),
		int64(fp.Hash), //#nosec G115 -- stored bit-for-bit, read back as uint64
		fp.Size,
		nullTimeString(fp.ModTime),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	return nil
}

// RecordOutcome stores the result of a reconciliation for path.
func (s *Store) RecordOutcome(ctx context.Context, path string, fp fingerprint.Fingerprint, state, outcome string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET
			fp_exists = ?, fp_hashed = ?, fp_hash = ?, fp_size = ?, fp_mod_time = ?,
			state = ?, outcome = ?, updated_at = ?
		WHERE path = ?`,
		boolInt(fp.Exists),
		boolInt(fp.Hashed),
		int64(fp.Hash), //#nosec G115 -- stored bit-for-bit, read back as uint64
		fp.Size,
		nullTimeString(fp.ModTime),
		state,
		outcome,
		formatTime(s.now()),
		path,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.NotJournaled(path)
	}
	return nil
}

// Last returns the entry for path.
func (s *Store) Last(ctx context.Context, path string) (*store.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE path = ?`, path)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotJournaled(path)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Forget removes the entry for path. Forgetting an unknown path is not an
// error.
func (s *Store) Forget(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path)
	return err
}

// Recent lists entries by most recent open, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*store.Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY opened_at DESC, path LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*store.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*store.Entry, error) {
	var (
		e                  store.Entry
		exists, hashed     int
		hash               int64
		modTime            sql.NullString
		openedAt, updateAt string
	)
	err := sc.Scan(
		&e.Path,
		&e.DocumentID,
		&exists,
		&hashed,
		&hash,
		&e.Fingerprint.Size,
		&modTime,
		&e.State,
		&e.Outcome,
		&openedAt,
		&updateAt,
	)
	if err != nil {
		return nil, err
	}

	e.Fingerprint.Exists = exists != 0
	e.Fingerprint.Hashed = hashed != 0
	e.Fingerprint.Hash = uint64(hash) //#nosec G115 -- stored bit-for-bit
	if modTime.Valid {
		if e.Fingerprint.ModTime, err = parseTime(modTime.String); err != nil {
			return nil, err
		}
	}
	if e.OpenedAt, err = parseTime(openedAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updateAt); err != nil {
		return nil, err
	}
	return &e, nil
}
