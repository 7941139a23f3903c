package agents

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/learning"
)

// SequencingWorker decides what a learner should study next and keeps
// progress records current. It is the only writer of progress rows; the
// assessment worker influences them solely through gap_signal messages.
type SequencingWorker struct {
	store learning.Store
}

// NewSequencingWorker creates a sequencing worker
func NewSequencingWorker(store learning.Store) *SequencingWorker {
	return &SequencingWorker{store: store}
}

func (w *SequencingWorker) Agent() bus.Agent {
	return bus.AgentSequencing
}

func (w *SequencingWorker) Handle(ctx context.Context, msg *bus.Message) ([]bus.MessageInput, error) {
	switch msg.Type {
	case bus.TypeTaskRequest:
		return w.handleNext(ctx, msg)
	case bus.TypeGapSignal:
		return w.handleGapSignal(ctx, msg)
	case bus.TypeProgressUpdate:
		return w.handleProgressUpdate(ctx, msg)
	default:
		return nil, bus.ValidationError("sequencing cannot handle %s messages", msg.Type)
	}
}

// handleNext picks the next content item for a learner. Skill priority is
// needs_remediation, then in_progress, then not_started; within the chosen
// skill, content at the learner's current depth. No progress at all falls
// back to the earliest beginner content for the topic. No content at all is
// a legitimate empty state, not an error.
func (w *SequencingWorker) handleNext(ctx context.Context, msg *bus.Message) ([]bus.MessageInput, error) {
	var task bus.TaskRequest
	if err := bus.DecodePayload(msg, &task); err != nil {
		return nil, err
	}
	if strings.TrimSpace(task.Topic) == "" {
		return nil, bus.ValidationError("sequencing task has no topic")
	}

	topic, err := w.store.TopicByName(ctx, task.Topic)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return w.nothingAvailable(task)
	}

	progress, err := w.store.ProgressForUserTopic(ctx, task.UserID, topic.ID)
	if err != nil {
		return nil, err
	}

	if chosen := pickSkill(progress); chosen != nil {
		item, err := w.store.ContentForSkillAtDepth(ctx, chosen.SkillID, chosen.CurrentDepth)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return w.resultFor(task, item)
		}
	}

	item, err := w.store.EarliestBeginnerContent(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return w.nothingAvailable(task)
	}
	return w.resultFor(task, item)
}

// handleGapSignal applies an assessment recommendation to the learner's
// progress on the assessed skill.
func (w *SequencingWorker) handleGapSignal(ctx context.Context, msg *bus.Message) ([]bus.MessageInput, error) {
	var signal bus.GapSignal
	if err := bus.DecodePayload(msg, &signal); err != nil {
		return nil, err
	}

	result, err := w.store.AssessmentResultByID(ctx, signal.AssessmentResultID)
	if err != nil {
		return nil, err
	}
	item, err := w.store.ContentItemByID(ctx, result.ContentItemID)
	if err != nil {
		return nil, err
	}
	if item.SkillID == "" {
		// Content not attached to a skill has no progress row to adjust.
		return nil, nil
	}

	return nil, w.applyRecommendation(ctx, signal.UserID, item.TopicID, item.SkillID, signal.Recommendation)
}

func (w *SequencingWorker) handleProgressUpdate(ctx context.Context, msg *bus.Message) ([]bus.MessageInput, error) {
	var update bus.ProgressUpdate
	if err := bus.DecodePayload(msg, &update); err != nil {
		return nil, err
	}
	if update.SkillID == "" {
		return nil, bus.ValidationError("progress update has no skill_id")
	}

	topic, err := w.store.TopicByName(ctx, update.Topic)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, bus.NotFoundError("topic %q not found", update.Topic)
	}

	now := time.Now().UTC()
	progress := &learning.Progress{
		ID:           uuid.New().String(),
		UserID:       update.UserID,
		TopicID:      topic.ID,
		SkillID:      update.SkillID,
		Status:       update.Status,
		CurrentDepth: learning.Depth(update.Depth),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if progress.Status == "" {
		progress.Status = learning.ProgressInProgress
	}
	if progress.CurrentDepth == "" {
		progress.CurrentDepth = learning.DepthBeginner
	}
	if !progress.CurrentDepth.Valid() {
		return nil, bus.ValidationError("unknown depth %q", update.Depth)
	}
	return nil, w.store.UpsertProgress(ctx, progress)
}

func (w *SequencingWorker) applyRecommendation(ctx context.Context, userID, topicID, skillID, recommendation string) error {
	existing, err := w.store.ProgressForUserTopic(ctx, userID, topicID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	progress := &learning.Progress{
		ID:           uuid.New().String(),
		UserID:       userID,
		TopicID:      topicID,
		SkillID:      skillID,
		Status:       learning.ProgressInProgress,
		CurrentDepth: learning.DepthBeginner,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, p := range existing {
		if p.SkillID == skillID {
			progress.ID = p.ID
			progress.Status = p.Status
			progress.CurrentDepth = p.CurrentDepth
			progress.CreatedAt = p.CreatedAt
			break
		}
	}

	switch recommendation {
	case learning.RecommendAdvance:
		advanced := progress.CurrentDepth.Advance()
		if advanced == progress.CurrentDepth {
			progress.Status = learning.ProgressCompleted
		} else {
			progress.CurrentDepth = advanced
			progress.Status = learning.ProgressInProgress
		}
	case learning.RecommendReview:
		progress.Status = learning.ProgressInProgress
	case learning.RecommendRemediation:
		progress.Status = learning.ProgressNeedsRemediation
	default:
		return bus.ValidationError("unknown recommendation %q", recommendation)
	}

	return w.store.UpsertProgress(ctx, progress)
}

// pickSkill applies the fixed priority order over a learner's progress rows
func pickSkill(progress []*learning.Progress) *learning.Progress {
	for _, status := range []string{
		learning.ProgressNeedsRemediation,
		learning.ProgressInProgress,
		learning.ProgressNotStarted,
	} {
		for _, p := range progress {
			if p.Status == status {
				return p
			}
		}
	}
	return nil
}

func (w *SequencingWorker) resultFor(task bus.TaskRequest, item *learning.ContentItem) ([]bus.MessageInput, error) {
	payload, err := bus.EncodePayload(bus.ResultReady{
		Intent:     task.Intent,
		UserID:     task.UserID,
		Topic:      task.Topic,
		EntityKind: "content_item",
		EntityID:   item.ID,
		Summary:    item.Title,
	})
	if err != nil {
		return nil, err
	}
	return []bus.MessageInput{{
		From:    bus.AgentSequencing,
		To:      bus.AgentRouter,
		Type:    bus.TypeResultReady,
		Payload: payload,
	}}, nil
}

func (w *SequencingWorker) nothingAvailable(task bus.TaskRequest) ([]bus.MessageInput, error) {
	payload, err := bus.EncodePayload(bus.ResultReady{
		Intent:     task.Intent,
		UserID:     task.UserID,
		Topic:      task.Topic,
		EntityKind: "none",
		EntityID:   "",
		Summary:    "nothing available",
	})
	if err != nil {
		return nil, err
	}
	return []bus.MessageInput{{
		From:    bus.AgentSequencing,
		To:      bus.AgentRouter,
		Type:    bus.TypeResultReady,
		Payload: payload,
	}}, nil
}
