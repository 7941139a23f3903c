package bus

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool. Correctness under
// concurrency rests entirely on the atomicity of a single-row conditional
// UPDATE; no multi-row transactions or advisory locks are involved.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a message store backed by pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the messages table and its indexes
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id         UUID PRIMARY KEY,
			from_agent TEXT NOT NULL
			           CHECK (from_agent IN ('router', 'research', 'content', 'assessment', 'sequencing')),
			to_agent   TEXT NOT NULL
			           CHECK (to_agent IN ('router', 'research', 'content', 'assessment', 'sequencing')),
			type       TEXT NOT NULL
			           CHECK (type IN ('task_request', 'result_ready', 'gap_signal', 'progress_update')),
			payload    JSONB NOT NULL DEFAULT '{}'::jsonb,
			status     TEXT NOT NULL DEFAULT 'pending'
			           CHECK (status IN ('pending', 'processing', 'done', 'failed')),
			error      TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_mailbox
			ON messages (to_agent, status, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return StoreError("ensure schema", err)
		}
	}
	return nil
}

const messageColumns = `id, from_agent, to_agent, type, payload, status, error, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, msg *Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, from_agent, to_agent, type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, string(msg.From), string(msg.To), string(msg.Type), msg.Payload,
		string(msg.Status), msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return StoreError("insert message", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Message, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM messages WHERE id = $1
	`, messageColumns), id)

	msg, err := scanMessage(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, NotFoundError("message %q not found", id)
		}
		return nil, StoreError("get message", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, agent Agent, limit int) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE to_agent = $1 AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT $2
	`, messageColumns), string(agent), limit)
	if err != nil {
		return nil, StoreError("list pending", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, StoreError("scan message", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Claim performs the compare-and-swap out of pending. The WHERE clause and
// the SET are a single statement, so exactly one concurrent claimant ever
// observes a row.
func (s *PostgresStore) Claim(ctx context.Context, id string) (*Message, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE messages
		SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING %s
	`, messageColumns), id)

	msg, err := scanMessage(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Another claimant already transitioned it, or the id is unknown.
			return nil, nil
		}
		return nil, StoreError("claim message", err)
	}
	return msg, nil
}

func (s *PostgresStore) MarkDone(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET status = 'done', updated_at = now()
		WHERE id = $1 AND status IN ('processing', 'done')
	`, id)
	if err != nil {
		return StoreError("mark done", err)
	}
	if tag.RowsAffected() == 0 {
		return s.checkExists(ctx, id)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET status = 'failed', error = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id, reason)
	if err != nil {
		return StoreError("mark failed", err)
	}
	if tag.RowsAffected() == 0 {
		// Already terminal is a harmless no-op; missing is not.
		return s.checkExists(ctx, id)
	}
	return nil
}

func (s *PostgresStore) checkExists(ctx context.Context, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return StoreError("check message", err)
	}
	if !exists {
		return NotFoundError("message %q not found", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMessage(row scannable) (*Message, error) {
	var msg Message
	var from, to, typ, status string
	err := row.Scan(&msg.ID, &from, &to, &typ, &msg.Payload, &status,
		&msg.Error, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	msg.From = Agent(from)
	msg.To = Agent(to)
	msg.Type = MessageType(typ)
	msg.Status = Status(status)
	if msg.Payload == nil {
		msg.Payload = map[string]interface{}{}
	}
	return &msg, nil
}
