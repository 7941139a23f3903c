package agents

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/capability"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/learning"
)

// Scoring thresholds. Score is the fraction of exactly matched answers.
const (
	passThreshold    = 0.8
	partialThreshold = 0.5
)

// AssessmentWorker grades submitted answers against a content item's
// questions, persists the result, and signals identified gaps to the
// sequencing worker. It is the only writer of assessment results.
type AssessmentWorker struct {
	store    learning.Store
	analyzer capability.Analyzer
}

// NewAssessmentWorker creates an assessment worker
func NewAssessmentWorker(store learning.Store, analyzer capability.Analyzer) *AssessmentWorker {
	return &AssessmentWorker{store: store, analyzer: analyzer}
}

func (w *AssessmentWorker) Agent() bus.Agent {
	return bus.AgentAssessment
}

func (w *AssessmentWorker) Handle(ctx context.Context, msg *bus.Message) ([]bus.MessageInput, error) {
	var task bus.TaskRequest
	if err := bus.DecodePayload(msg, &task); err != nil {
		return nil, err
	}
	if task.ContentItemID == "" {
		return nil, bus.ValidationError("assessment task has no content_item_id")
	}

	item, err := w.store.ContentItemByID(ctx, task.ContentItemID)
	if err != nil {
		return nil, err
	}
	questions, err := w.store.QuestionsByContentItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	score, missed := grade(questions, task.Answers)
	outcome, recommendation := classify(score)

	// Gap analysis runs only on imperfect outcomes; a pass has no gaps to
	// name.
	var gaps []string
	if outcome != learning.OutcomePass && len(missed) > 0 {
		gaps, err = w.analyzer.AnalyzeGaps(ctx, task.Topic, missed)
		if err != nil {
			return nil, err
		}
	}

	result := &learning.AssessmentResult{
		ID:             uuid.New().String(),
		UserID:         task.UserID,
		TopicID:        derefOrEmpty(task.TopicID),
		ContentItemID:  item.ID,
		Score:          score,
		Outcome:        outcome,
		Recommendation: recommendation,
		Gaps:           gaps,
		CreatedAt:      time.Now().UTC(),
	}
	if err := w.store.InsertAssessmentResult(ctx, result); err != nil {
		return nil, err
	}

	resultPayload, err := bus.EncodePayload(bus.ResultReady{
		Intent:     task.Intent,
		UserID:     task.UserID,
		Topic:      task.Topic,
		EntityKind: "assessment_result",
		EntityID:   result.ID,
		Summary:    outcome,
	})
	if err != nil {
		return nil, err
	}
	followups := []bus.MessageInput{{
		From:    bus.AgentAssessment,
		To:      bus.AgentRouter,
		Type:    bus.TypeResultReady,
		Payload: resultPayload,
	}}

	// A gap signal only carries meaning when gaps were identified; an
	// imperfect run with nothing to name (no questions, or an analyzer
	// finding none) stays a result-only outcome.
	if len(gaps) > 0 {
		gapPayload, err := bus.EncodePayload(bus.GapSignal{
			Topic:              task.Topic,
			Score:              score,
			Outcome:            outcome,
			Gaps:               gaps,
			Recommendation:     recommendation,
			UserID:             task.UserID,
			AssessmentResultID: result.ID,
		})
		if err != nil {
			return nil, err
		}
		followups = append(followups, bus.MessageInput{
			From:    bus.AgentAssessment,
			To:      bus.AgentSequencing,
			Type:    bus.TypeGapSignal,
			Payload: gapPayload,
		})
	}

	return followups, nil
}

// grade compares answers to questions positionally with exact matching
// after whitespace trimming. Missing answers count as wrong. Zero
// questions grades to zero, never a division by zero.
func grade(questions []*learning.Question, answers []string) (float64, []string) {
	if len(questions) == 0 {
		return 0, nil
	}
	correct := 0
	var missed []string
	for i, q := range questions {
		var answer string
		if i < len(answers) {
			answer = strings.TrimSpace(answers[i])
		}
		if answer == q.CorrectAnswer {
			correct++
		} else {
			missed = append(missed, q.Prompt)
		}
	}
	return float64(correct) / float64(len(questions)), missed
}

func classify(score float64) (outcome, recommendation string) {
	switch {
	case score >= passThreshold:
		return learning.OutcomePass, learning.RecommendAdvance
	case score >= partialThreshold:
		return learning.OutcomePartial, learning.RecommendReview
	default:
		return learning.OutcomeFail, learning.RecommendRemediation
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
