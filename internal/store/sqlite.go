package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/interview-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS interview_sessions (
	token        TEXT PRIMARY KEY,
	participant  TEXT NOT NULL,
	catalog      TEXT NOT NULL,
	state        TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'active',
	version      INTEGER NOT NULL DEFAULT 1,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_status ON interview_sessions(status);
CREATE INDEX IF NOT EXISTS idx_interview_sessions_created_at ON interview_sessions(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sessionColumns = `token, participant, catalog, state, status, version, created_at, updated_at, completed_at`

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	prepareNew(sess)

	participant, catalog, state, err := encodeSession(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interview_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.Token, string(participant), string(catalog), string(state), string(sess.Status),
		sess.Version, sess.CreatedAt, sess.UpdatedAt, sess.CompletedAt,
	)
	return eris.Wrapf(err, "sqlite: insert session %s", sess.Token)
}

func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM interview_sessions WHERE token = ?`, token)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get session %s", token)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", token)
	}
	return sess, nil
}

func (s *SQLiteStore) SaveState(ctx context.Context, token string, expectedVersion int64, state model.ConversationState, status model.SessionStatus) (int64, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal state")
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions
		 SET state = ?, status = ?, version = version + 1, updated_at = ?,
		     completed_at = CASE WHEN ? = 'complete' AND completed_at IS NULL THEN ? ELSE completed_at END
		 WHERE token = ? AND version = ?`,
		string(stateJSON), string(status), now, string(status), now, token, expectedVersion,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: save state %s", token)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return 0, s.missOrStale(ctx, token)
	}
	return expectedVersion + 1, nil
}

func (s *SQLiteStore) missOrStale(ctx context.Context, token string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM interview_sessions WHERE token = ?`, token).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: save state %s", token)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: save state %s", token)
	}
	return eris.Wrapf(ErrStaleState, "sqlite: save state %s", token)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	var (
		sess                        model.Session
		participant, catalog, state string
		completedAt                 sql.NullTime
	)
	err := row.Scan(&sess.Token, &participant, &catalog, &state, &sess.Status,
		&sess.Version, &sess.CreatedAt, &sess.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	if err := decodeSession(&sess, []byte(participant), []byte(catalog), []byte(state)); err != nil {
		return nil, err
	}
	return &sess, nil
}

func encodeSession(s *model.Session) (participant, catalog, state []byte, err error) {
	if participant, err = json.Marshal(s.Participant); err != nil {
		return nil, nil, nil, err
	}
	if catalog, err = json.Marshal(s.Catalog); err != nil {
		return nil, nil, nil, err
	}
	if state, err = json.Marshal(s.State); err != nil {
		return nil, nil, nil, err
	}
	return participant, catalog, state, nil
}

func decodeSession(s *model.Session, participant, catalog, state []byte) error {
	if err := json.Unmarshal(participant, &s.Participant); err != nil {
		return eris.Wrap(err, "unmarshal participant")
	}
	s.Catalog = &model.Catalog{}
	if err := json.Unmarshal(catalog, s.Catalog); err != nil {
		return eris.Wrap(err, "unmarshal catalog")
	}
	if err := json.Unmarshal(state, &s.State); err != nil {
		return eris.Wrap(err, "unmarshal state")
	}
	if s.State.GatheredInfo == nil {
		s.State.GatheredInfo = map[string]model.ExtractedAnswer{}
	}
	if s.State.CannotAnswer == nil {
		s.State.CannotAnswer = []string{}
	}
	if s.State.Transcript == nil {
		s.State.Transcript = []model.Message{}
	}
	return nil
}
