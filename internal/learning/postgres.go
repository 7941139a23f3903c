package learning

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
)

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates an entity store backed by pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the entity tables
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS topics (
			id         UUID PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS skills (
			id         UUID PRIMARY KEY,
			topic_id   UUID NOT NULL REFERENCES topics(id),
			name       TEXT NOT NULL,
			position   INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS research_notes (
			id          UUID PRIMARY KEY,
			topic       TEXT NOT NULL,
			summary     TEXT NOT NULL,
			sources     JSONB NOT NULL DEFAULT '[]'::jsonb,
			fresh_until TIMESTAMPTZ NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_research_notes_topic
			ON research_notes (topic, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS content_items (
			id         UUID PRIMARY KEY,
			topic_id   UUID NOT NULL REFERENCES topics(id),
			skill_id   UUID REFERENCES skills(id),
			depth      TEXT NOT NULL
			           CHECK (depth IN ('beginner', 'intermediate', 'advanced')),
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id              UUID PRIMARY KEY,
			content_item_id UUID NOT NULL REFERENCES content_items(id),
			prompt          TEXT NOT NULL,
			choices         JSONB NOT NULL DEFAULT '[]'::jsonb,
			correct_answer  TEXT NOT NULL,
			position        INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS assessment_results (
			id              UUID PRIMARY KEY,
			user_id         TEXT NOT NULL,
			topic_id        UUID,
			content_item_id UUID,
			score           DOUBLE PRECISION NOT NULL,
			outcome         TEXT NOT NULL
			                CHECK (outcome IN ('PASS', 'PARTIAL', 'FAIL')),
			recommendation  TEXT NOT NULL,
			gaps            JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS progress (
			id            UUID PRIMARY KEY,
			user_id       TEXT NOT NULL,
			topic_id      UUID NOT NULL,
			skill_id      UUID NOT NULL,
			status        TEXT NOT NULL DEFAULT 'not_started'
			              CHECK (status IN ('not_started', 'in_progress', 'needs_remediation', 'completed')),
			current_depth TEXT NOT NULL DEFAULT 'beginner'
			              CHECK (current_depth IN ('beginner', 'intermediate', 'advanced')),
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, skill_id)
		)`,
		`CREATE TABLE IF NOT EXISTS route_decisions (
			id            UUID PRIMARY KEY,
			user_id       TEXT NOT NULL,
			raw_input     TEXT NOT NULL,
			intent        TEXT NOT NULL,
			topic         TEXT,
			confidence    DOUBLE PRECISION NOT NULL,
			dispatched_to TEXT,
			message_id    UUID,
			elapsed_ms    BIGINT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return bus.StoreError("ensure learning schema", err)
		}
	}
	return nil
}

func (s *PostgresStore) TopicByName(ctx context.Context, name string) (*Topic, error) {
	var topic Topic
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at FROM topics WHERE lower(name) = lower($1)
	`, name).Scan(&topic.ID, &topic.Name, &topic.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Soft lookup: an unresolved topic name is not fatal to routing.
			return nil, nil
		}
		return nil, bus.StoreError("topic by name", err)
	}
	return &topic, nil
}

func (s *PostgresStore) TopicByID(ctx context.Context, id string) (*Topic, error) {
	var topic Topic
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at FROM topics WHERE id = $1
	`, id).Scan(&topic.ID, &topic.Name, &topic.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, bus.NotFoundError("topic %q not found", id)
		}
		return nil, bus.StoreError("topic by id", err)
	}
	return &topic, nil
}

func (s *PostgresStore) InsertTopic(ctx context.Context, topic *Topic) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO topics (id, name, created_at) VALUES ($1, $2, $3)
	`, topic.ID, topic.Name, topic.CreatedAt)
	if err != nil {
		return bus.StoreError("insert topic", err)
	}
	return nil
}

func (s *PostgresStore) SkillsByTopic(ctx context.Context, topicID string) ([]*Skill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, topic_id, name, position, created_at
		FROM skills WHERE topic_id = $1
		ORDER BY position ASC, created_at ASC
	`, topicID)
	if err != nil {
		return nil, bus.StoreError("skills by topic", err)
	}
	defer rows.Close()

	var skills []*Skill
	for rows.Next() {
		var skill Skill
		if err := rows.Scan(&skill.ID, &skill.TopicID, &skill.Name, &skill.Position, &skill.CreatedAt); err != nil {
			return nil, bus.StoreError("scan skill", err)
		}
		skills = append(skills, &skill)
	}
	return skills, rows.Err()
}

func (s *PostgresStore) InsertSkill(ctx context.Context, skill *Skill) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO skills (id, topic_id, name, position, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, skill.ID, skill.TopicID, skill.Name, skill.Position, skill.CreatedAt)
	if err != nil {
		return bus.StoreError("insert skill", err)
	}
	return nil
}

func (s *PostgresStore) LatestResearchNote(ctx context.Context, topic string) (*ResearchNote, error) {
	var note ResearchNote
	err := s.pool.QueryRow(ctx, `
		SELECT id, topic, summary, sources, fresh_until, created_at
		FROM research_notes
		WHERE lower(topic) = lower($1)
		ORDER BY created_at DESC
		LIMIT 1
	`, topic).Scan(&note.ID, &note.Topic, &note.Summary, &note.Sources, &note.FreshUntil, &note.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, bus.StoreError("latest research note", err)
	}
	return &note, nil
}

func (s *PostgresStore) InsertResearchNote(ctx context.Context, note *ResearchNote) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO research_notes (id, topic, summary, sources, fresh_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, note.ID, note.Topic, note.Summary, note.Sources, note.FreshUntil, note.CreatedAt)
	if err != nil {
		return bus.StoreError("insert research note", err)
	}
	return nil
}

const contentItemColumns = `id, topic_id, skill_id, depth, title, body, created_at`

func (s *PostgresStore) ContentItemByID(ctx context.Context, id string) (*ContentItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+contentItemColumns+` FROM content_items WHERE id = $1
	`, id)
	item, err := scanContentItem(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, bus.NotFoundError("content item %q not found", id)
		}
		return nil, bus.StoreError("content item by id", err)
	}
	return item, nil
}

func (s *PostgresStore) ContentForSkillAtDepth(ctx context.Context, skillID string, depth Depth) (*ContentItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+contentItemColumns+` FROM content_items
		WHERE skill_id = $1 AND depth = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, skillID, string(depth))
	item, err := scanContentItem(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, bus.StoreError("content for skill at depth", err)
	}
	return item, nil
}

func (s *PostgresStore) EarliestBeginnerContent(ctx context.Context, topicID string) (*ContentItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+contentItemColumns+` FROM content_items
		WHERE topic_id = $1 AND depth = 'beginner'
		ORDER BY created_at ASC
		LIMIT 1
	`, topicID)
	item, err := scanContentItem(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, bus.StoreError("earliest beginner content", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertContentItem(ctx context.Context, item *ContentItem, questions []*Question) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return bus.StoreError("begin insert content", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO content_items (id, topic_id, skill_id, depth, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.TopicID, nullable(item.SkillID), string(item.Depth), item.Title, item.Body, item.CreatedAt)
	if err != nil {
		return bus.StoreError("insert content item", err)
	}

	for _, q := range questions {
		_, err = tx.Exec(ctx, `
			INSERT INTO questions (id, content_item_id, prompt, choices, correct_answer, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, q.ID, q.ContentItemID, q.Prompt, q.Choices, q.CorrectAnswer, q.Position)
		if err != nil {
			return bus.StoreError("insert question", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return bus.StoreError("commit insert content", err)
	}
	return nil
}

func (s *PostgresStore) QuestionsByContentItem(ctx context.Context, contentItemID string) ([]*Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, content_item_id, prompt, choices, correct_answer, position
		FROM questions
		WHERE content_item_id = $1
		ORDER BY position ASC
	`, contentItemID)
	if err != nil {
		return nil, bus.StoreError("questions by content item", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.ContentItemID, &q.Prompt, &q.Choices, &q.CorrectAnswer, &q.Position); err != nil {
			return nil, bus.StoreError("scan question", err)
		}
		questions = append(questions, &q)
	}
	return questions, rows.Err()
}

func (s *PostgresStore) InsertAssessmentResult(ctx context.Context, result *AssessmentResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assessment_results (id, user_id, topic_id, content_item_id, score, outcome, recommendation, gaps, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, result.ID, result.UserID, nullable(result.TopicID), nullable(result.ContentItemID),
		result.Score, result.Outcome, result.Recommendation, result.Gaps, result.CreatedAt)
	if err != nil {
		return bus.StoreError("insert assessment result", err)
	}
	return nil
}

func (s *PostgresStore) AssessmentResultByID(ctx context.Context, id string) (*AssessmentResult, error) {
	var result AssessmentResult
	var topicID, contentItemID *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, topic_id, content_item_id, score, outcome, recommendation, gaps, created_at
		FROM assessment_results WHERE id = $1
	`, id).Scan(&result.ID, &result.UserID, &topicID, &contentItemID,
		&result.Score, &result.Outcome, &result.Recommendation, &result.Gaps, &result.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, bus.NotFoundError("assessment result %q not found", id)
		}
		return nil, bus.StoreError("assessment result by id", err)
	}
	if topicID != nil {
		result.TopicID = *topicID
	}
	if contentItemID != nil {
		result.ContentItemID = *contentItemID
	}
	return &result, nil
}

func (s *PostgresStore) ProgressForUserTopic(ctx context.Context, userID, topicID string) ([]*Progress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, topic_id, skill_id, status, current_depth, created_at, updated_at
		FROM progress
		WHERE user_id = $1 AND topic_id = $2
		ORDER BY created_at ASC
	`, userID, topicID)
	if err != nil {
		return nil, bus.StoreError("progress for user topic", err)
	}
	defer rows.Close()

	var progress []*Progress
	for rows.Next() {
		var p Progress
		var depth string
		if err := rows.Scan(&p.ID, &p.UserID, &p.TopicID, &p.SkillID, &p.Status, &depth, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, bus.StoreError("scan progress", err)
		}
		p.CurrentDepth = Depth(depth)
		progress = append(progress, &p)
	}
	return progress, rows.Err()
}

func (s *PostgresStore) UpsertProgress(ctx context.Context, progress *Progress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO progress (id, user_id, topic_id, skill_id, status, current_depth, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, skill_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_depth = EXCLUDED.current_depth,
			updated_at = EXCLUDED.updated_at
	`, progress.ID, progress.UserID, progress.TopicID, progress.SkillID,
		progress.Status, string(progress.CurrentDepth), progress.CreatedAt, progress.UpdatedAt)
	if err != nil {
		return bus.StoreError("upsert progress", err)
	}
	return nil
}

func (s *PostgresStore) InsertRouteDecision(ctx context.Context, decision *RouteDecision) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO route_decisions (id, user_id, raw_input, intent, topic, confidence, dispatched_to, message_id, elapsed_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, decision.ID, decision.UserID, decision.RawInput, decision.Intent,
		nullable(decision.Topic), decision.Confidence, nullable(decision.DispatchedTo),
		nullable(decision.MessageID), decision.ElapsedMS, decision.CreatedAt)
	if err != nil {
		return bus.StoreError("insert route decision", err)
	}
	return nil
}

func (s *PostgresStore) RouteDecisionsByUser(ctx context.Context, userID string, limit int) ([]*RouteDecision, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, raw_input, intent, topic, confidence, dispatched_to, message_id, elapsed_ms, created_at
		FROM route_decisions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, bus.StoreError("route decisions by user", err)
	}
	defer rows.Close()

	var decisions []*RouteDecision
	for rows.Next() {
		var d RouteDecision
		var topic, dispatchedTo, messageID *string
		if err := rows.Scan(&d.ID, &d.UserID, &d.RawInput, &d.Intent, &topic,
			&d.Confidence, &dispatchedTo, &messageID, &d.ElapsedMS, &d.CreatedAt); err != nil {
			return nil, bus.StoreError("scan route decision", err)
		}
		if topic != nil {
			d.Topic = *topic
		}
		if dispatchedTo != nil {
			d.DispatchedTo = *dispatchedTo
		}
		if messageID != nil {
			d.MessageID = *messageID
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}

func scanContentItem(row pgx.Row) (*ContentItem, error) {
	var item ContentItem
	var skillID *string
	var depth string
	err := row.Scan(&item.ID, &item.TopicID, &skillID, &depth, &item.Title, &item.Body, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	if skillID != nil {
		item.SkillID = *skillID
	}
	item.Depth = Depth(depth)
	return &item, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
