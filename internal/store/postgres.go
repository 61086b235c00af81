package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/interview-cli/internal/db"
	"github.com/sells-group/interview-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_session": `INSERT INTO interview_sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"get_session":    `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE token = $1`,
	"save_state":     saveStateSQL,
}

const saveStateSQL = `UPDATE interview_sessions
SET state = $1, status = $2, version = version + 1, updated_at = $3,
    completed_at = CASE WHEN $2 = 'complete' AND completed_at IS NULL THEN $3 ELSE completed_at END
WHERE token = $4 AND version = $5`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS interview_sessions (
	token        TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	participant  JSONB NOT NULL,
	catalog      JSONB NOT NULL,
	state        JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'active',
	version      BIGINT NOT NULL DEFAULT 1,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_status ON interview_sessions(status);
CREATE INDEX IF NOT EXISTS idx_interview_sessions_created_at ON interview_sessions(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.Session) error {
	prepareNew(sess)

	participant, catalog, state, err := encodeSession(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO interview_sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.Token, participant, catalog, state, string(sess.Status),
		sess.Version, sess.CreatedAt, sess.UpdatedAt, sess.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: insert session %s", sess.Token)
}

func (s *PostgresStore) GetSession(ctx context.Context, token string) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM interview_sessions WHERE token = $1`, token)
	sess, err := scanPgSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get session %s", token)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", token)
	}
	return sess, nil
}

func (s *PostgresStore) SaveState(ctx context.Context, token string, expectedVersion int64, state model.ConversationState, status model.SessionStatus) (int64, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal state")
	}

	tag, err := s.pool.Exec(ctx, saveStateSQL,
		stateJSON, string(status), time.Now().UTC(), token, expectedVersion,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save state %s", token)
	}
	if tag.RowsAffected() == 0 {
		var one int
		err := s.pool.QueryRow(ctx, `SELECT 1 FROM interview_sessions WHERE token = $1`, token).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, eris.Wrapf(ErrNotFound, "postgres: save state %s", token)
		}
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: save state %s", token)
		}
		return 0, eris.Wrapf(ErrStaleState, "postgres: save state %s", token)
	}
	return expectedVersion + 1, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func scanPgSession(row pgx.Row) (*model.Session, error) {
	var (
		sess                        model.Session
		participant, catalog, state []byte
		status                      string
	)
	err := row.Scan(&sess.Token, &participant, &catalog, &state, &status,
		&sess.Version, &sess.CreatedAt, &sess.UpdatedAt, &sess.CompletedAt)
	if err != nil {
		return nil, err
	}
	sess.Status = model.SessionStatus(status)
	if err := decodeSession(&sess, participant, catalog, state); err != nil {
		return nil, err
	}
	return &sess, nil
}
