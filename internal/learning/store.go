package learning

import (
	"context"
)

// Store is the entity persistence boundary used by the router and workers.
// Implementations: PostgresStore for production, MemoryStore for tests.
type Store interface {
	// Topics
	TopicByName(ctx context.Context, name string) (*Topic, error)
	TopicByID(ctx context.Context, id string) (*Topic, error)
	InsertTopic(ctx context.Context, topic *Topic) error

	// Skills
	SkillsByTopic(ctx context.Context, topicID string) ([]*Skill, error)
	InsertSkill(ctx context.Context, skill *Skill) error

	// Research notes (written only by the research worker)
	LatestResearchNote(ctx context.Context, topic string) (*ResearchNote, error)
	InsertResearchNote(ctx context.Context, note *ResearchNote) error

	// Content (written only by the content worker)
	ContentItemByID(ctx context.Context, id string) (*ContentItem, error)
	ContentForSkillAtDepth(ctx context.Context, skillID string, depth Depth) (*ContentItem, error)
	EarliestBeginnerContent(ctx context.Context, topicID string) (*ContentItem, error)
	InsertContentItem(ctx context.Context, item *ContentItem, questions []*Question) error
	QuestionsByContentItem(ctx context.Context, contentItemID string) ([]*Question, error)

	// Assessment results (written only by the assessment worker)
	InsertAssessmentResult(ctx context.Context, result *AssessmentResult) error
	AssessmentResultByID(ctx context.Context, id string) (*AssessmentResult, error)

	// Progress (written only by the sequencing worker)
	ProgressForUserTopic(ctx context.Context, userID, topicID string) ([]*Progress, error)
	UpsertProgress(ctx context.Context, progress *Progress) error

	// Route decisions (written only by the router, best effort)
	InsertRouteDecision(ctx context.Context, decision *RouteDecision) error
	RouteDecisionsByUser(ctx context.Context, userID string, limit int) ([]*RouteDecision, error)
}
