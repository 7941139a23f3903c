// Package learning holds the business entities workers produce as side
// effects of handling bus messages, and the stores that persist them.
// Entities are referenced from messages by identifier only; this store,
// not the bus payload, is the source of truth.
package learning

import (
	"time"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
)

// Depth is a learner's mastery tier for a skill
type Depth string

const (
	DepthBeginner     Depth = "beginner"
	DepthIntermediate Depth = "intermediate"
	DepthAdvanced     Depth = "advanced"
)

// Advance returns the next depth tier. Advancement is monotonic and capped:
// advanced never decreases and repeated calls at the ceiling are idempotent.
func (d Depth) Advance() Depth {
	switch d {
	case DepthBeginner:
		return DepthIntermediate
	case DepthIntermediate:
		return DepthAdvanced
	default:
		return DepthAdvanced
	}
}

// Valid reports whether d is a known tier
func (d Depth) Valid() bool {
	return d == DepthBeginner || d == DepthIntermediate || d == DepthAdvanced
}

// Progress status values
const (
	ProgressNotStarted       = "not_started"
	ProgressInProgress       = "in_progress"
	ProgressNeedsRemediation = "needs_remediation"
	ProgressCompleted        = "completed"
)

// Assessment outcome and recommendation values
const (
	OutcomePass    = "PASS"
	OutcomePartial = "PARTIAL"
	OutcomeFail    = "FAIL"

	RecommendAdvance     = "advance"
	RecommendReview      = "needs_review"
	RecommendRemediation = "needs_remediation"
)

// Topic is a canonical subject learners work on
type Topic struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Skill is one teachable unit inside a topic
type Skill struct {
	ID        string    `json:"id" db:"id"`
	TopicID   string    `json:"topic_id" db:"topic_id"`
	Name      string    `json:"name" db:"name"`
	Position  int       `json:"position" db:"position"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ResearchNote is the persisted output of one research run. FreshUntil
// bounds the window in which later requests on the same topic reuse it
// instead of invoking the external sources again.
type ResearchNote struct {
	ID         string    `json:"id" db:"id"`
	Topic      string    `json:"topic" db:"topic"`
	Summary    string    `json:"summary" db:"summary"`
	Sources    []string  `json:"sources" db:"sources"`
	FreshUntil time.Time `json:"fresh_until" db:"fresh_until"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Fresh reports whether the note is still inside its reuse window at now
func (n *ResearchNote) Fresh(now time.Time) bool {
	return now.Before(n.FreshUntil)
}

// ContentItem is a generated lesson at one depth tier
type ContentItem struct {
	ID        string    `json:"id" db:"id"`
	TopicID   string    `json:"topic_id" db:"topic_id"`
	SkillID   string    `json:"skill_id" db:"skill_id"`
	Depth     Depth     `json:"depth" db:"depth"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Question is a multiple-choice question attached to a content item
type Question struct {
	ID            string   `json:"id" db:"id"`
	ContentItemID string   `json:"content_item_id" db:"content_item_id"`
	Prompt        string   `json:"prompt" db:"prompt"`
	Choices       []string `json:"choices" db:"choices"`
	CorrectAnswer string   `json:"correct_answer" db:"correct_answer"`
	Position      int      `json:"position" db:"position"`
}

// AssessmentResult records one graded assessment run
type AssessmentResult struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	TopicID        string    `json:"topic_id" db:"topic_id"`
	ContentItemID  string    `json:"content_item_id" db:"content_item_id"`
	Score          float64   `json:"score" db:"score"`
	Outcome        string    `json:"outcome" db:"outcome"`
	Recommendation string    `json:"recommendation" db:"recommendation"`
	Gaps           []string  `json:"gaps" db:"gaps"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Progress tracks one learner's state on one skill
type Progress struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	TopicID      string    `json:"topic_id" db:"topic_id"`
	SkillID      string    `json:"skill_id" db:"skill_id"`
	Status       string    `json:"status" db:"status"`
	CurrentDepth Depth     `json:"current_depth" db:"current_depth"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// RouteDecision is the audit trail of one routing pass. Recording it is
// best effort; a failed insert never fails the request that triggered it.
type RouteDecision struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	RawInput     string    `json:"raw_input" db:"raw_input"`
	Intent       string    `json:"intent" db:"intent"`
	Topic        string    `json:"topic" db:"topic"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	DispatchedTo string    `json:"dispatched_to" db:"dispatched_to"`
	MessageID    string    `json:"message_id" db:"message_id"`
	ElapsedMS    int64     `json:"elapsed_ms" db:"elapsed_ms"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// EntityOwners names the single worker type authorized to write each entity
// kind. The bus already serializes the triggering messages, so ownership is
// a contract enforced by review and tests rather than runtime locks.
var EntityOwners = map[string]bus.Agent{
	"research_note":     bus.AgentResearch,
	"content_item":      bus.AgentContent,
	"question":          bus.AgentContent,
	"assessment_result": bus.AgentAssessment,
	"progress":          bus.AgentSequencing,
	"route_decision":    bus.AgentRouter,
}
