package agents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/learning"
)

func seedContent(t *testing.T, store learning.Store, topicName string, correctAnswers []string) (*learning.Topic, *learning.ContentItem) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	topic := &learning.Topic{ID: uuid.New().String(), Name: topicName, CreatedAt: now}
	require.NoError(t, store.InsertTopic(ctx, topic))

	skill := &learning.Skill{ID: uuid.New().String(), TopicID: topic.ID, Name: topicName + " basics", CreatedAt: now}
	require.NoError(t, store.InsertSkill(ctx, skill))

	item := &learning.ContentItem{
		ID:        uuid.New().String(),
		TopicID:   topic.ID,
		SkillID:   skill.ID,
		Depth:     learning.DepthBeginner,
		Title:     "Intro to " + topicName,
		Body:      "lesson body",
		CreatedAt: now,
	}
	questions := make([]*learning.Question, len(correctAnswers))
	for i, answer := range correctAnswers {
		questions[i] = &learning.Question{
			ID:            uuid.New().String(),
			ContentItemID: item.ID,
			Prompt:        "question " + answer,
			Choices:       []string{"A", "B", "C", "D"},
			CorrectAnswer: answer,
			Position:      i,
		}
	}
	require.NoError(t, store.InsertContentItem(ctx, item, questions))
	return topic, item
}

func TestGrade_Boundaries(t *testing.T) {
	questions := func(answers ...string) []*learning.Question {
		qs := make([]*learning.Question, len(answers))
		for i, a := range answers {
			qs[i] = &learning.Question{Prompt: "q" + a, CorrectAnswer: a}
		}
		return qs
	}

	tests := []struct {
		name               string
		questions          []*learning.Question
		answers            []string
		wantScore          float64
		wantOutcome        string
		wantRecommendation string
	}{
		{"zero of zero questions scores zero", nil, nil, 0, learning.OutcomeFail, learning.RecommendRemediation},
		{"all correct passes", questions("A", "C"), []string{"A", "C"}, 1.0, learning.OutcomePass, learning.RecommendAdvance},
		{"half correct is partial", questions("A", "C"), []string{"A", "D"}, 0.5, learning.OutcomePartial, learning.RecommendReview},
		{"none correct fails", questions("A", "B", "C"), []string{"D", "D", "D"}, 0, learning.OutcomeFail, learning.RecommendRemediation},
		{"missing answers count as wrong", questions("A", "B"), []string{"A"}, 0.5, learning.OutcomePartial, learning.RecommendReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _ := grade(tt.questions, tt.answers)
			assert.InDelta(t, tt.wantScore, score, 1e-9)

			outcome, recommendation := classify(score)
			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, tt.wantRecommendation, recommendation)
		})
	}
}

// A partial quiz result must produce exactly two dispatches: the result to
// the router and a gap signal to the sequencing worker, with the original
// message ending done.
func TestAssessmentWorker_PartialOutcomeScenario(t *testing.T) {
	store := learning.NewMemoryStore()
	busClient := bus.NewClient(bus.NewMemoryStore())
	topic, item := seedContent(t, store, "Topic X", []string{"A", "C"})

	analyzer := &stubAnalyzer{gaps: []string{"base cases", "termination"}}
	worker := NewAssessmentWorker(store, analyzer)
	runner := NewRunner(busClient, worker, nil)

	msg := dispatchTask(t, busClient, bus.AgentAssessment, bus.TaskRequest{
		Intent:        "assess",
		Topic:         "Topic X",
		TopicID:       &topic.ID,
		UserID:        "user-1",
		ContentItemID: item.ID,
		Answers:       []string{"A", "D"},
	})

	claimed, err := runner.Process(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	done, err := busClient.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, bus.StatusDone, done.Status)

	// Result back to the router.
	routed, err := busClient.Poll(context.Background(), bus.AgentRouter, 10)
	require.NoError(t, err)
	require.Len(t, routed, 1)

	var result bus.ResultReady
	require.NoError(t, bus.DecodePayload(routed[0], &result))
	assert.Equal(t, "assessment_result", result.EntityKind)
	assert.Equal(t, learning.OutcomePartial, result.Summary)

	stored, err := store.AssessmentResultByID(context.Background(), result.EntityID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, stored.Score, 1e-9)
	assert.Equal(t, learning.OutcomePartial, stored.Outcome)
	assert.Equal(t, learning.RecommendReview, stored.Recommendation)
	assert.Equal(t, []string{"base cases", "termination"}, stored.Gaps)

	// Gap signal to sequencing.
	signals, err := busClient.Poll(context.Background(), bus.AgentSequencing, 10)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	var signal bus.GapSignal
	require.NoError(t, bus.DecodePayload(signals[0], &signal))
	assert.Equal(t, "Topic X", signal.Topic)
	assert.InDelta(t, 0.5, signal.Score, 1e-9)
	assert.Equal(t, learning.OutcomePartial, signal.Outcome)
	assert.Equal(t, learning.RecommendReview, signal.Recommendation)
	assert.Equal(t, stored.ID, signal.AssessmentResultID)
	assert.NotEmpty(t, signal.Gaps)
}

func TestAssessmentWorker_PassSkipsGapAnalysis(t *testing.T) {
	store := learning.NewMemoryStore()
	busClient := bus.NewClient(bus.NewMemoryStore())
	topic, item := seedContent(t, store, "Topic Y", []string{"B", "C"})

	analyzer := &stubAnalyzer{gaps: []string{"should not be called"}}
	worker := NewAssessmentWorker(store, analyzer)
	runner := NewRunner(busClient, worker, nil)

	msg := dispatchTask(t, busClient, bus.AgentAssessment, bus.TaskRequest{
		Intent:        "assess",
		Topic:         "Topic Y",
		TopicID:       &topic.ID,
		UserID:        "user-1",
		ContentItemID: item.ID,
		Answers:       []string{"B", "C"},
	})

	_, err := runner.Process(context.Background(), msg.ID)
	require.NoError(t, err)

	assert.Zero(t, analyzer.calls, "gap analysis must not run on a pass")

	signals, err := busClient.Poll(context.Background(), bus.AgentSequencing, 10)
	require.NoError(t, err)
	assert.Empty(t, signals, "a pass must not emit a gap signal")
}

func TestAssessmentWorker_NoGapsMeansNoGapSignal(t *testing.T) {
	t.Run("zero-question content item completes without a gap signal", func(t *testing.T) {
		store := learning.NewMemoryStore()
		busClient := bus.NewClient(bus.NewMemoryStore())
		topic, item := seedContent(t, store, "Topic Q", nil)

		analyzer := &stubAnalyzer{}
		worker := NewAssessmentWorker(store, analyzer)
		runner := NewRunner(busClient, worker, nil)

		msg := dispatchTask(t, busClient, bus.AgentAssessment, bus.TaskRequest{
			Intent:        "assess",
			Topic:         "Topic Q",
			TopicID:       &topic.ID,
			UserID:        "user-1",
			ContentItemID: item.ID,
			Answers:       []string{"A"},
		})

		claimed, err := runner.Process(context.Background(), msg.ID)
		require.NoError(t, err)
		assert.True(t, claimed)

		done, err := busClient.Get(context.Background(), msg.ID)
		require.NoError(t, err)
		assert.Equal(t, bus.StatusDone, done.Status)

		routed, err := busClient.Poll(context.Background(), bus.AgentRouter, 10)
		require.NoError(t, err)
		require.Len(t, routed, 1)

		var result bus.ResultReady
		require.NoError(t, bus.DecodePayload(routed[0], &result))
		assert.Equal(t, learning.OutcomeFail, result.Summary)

		stored, err := store.AssessmentResultByID(context.Background(), result.EntityID)
		require.NoError(t, err)
		assert.Zero(t, stored.Score)

		signals, err := busClient.Poll(context.Background(), bus.AgentSequencing, 10)
		require.NoError(t, err)
		assert.Empty(t, signals, "no identified gaps means no gap signal")
	})

	t.Run("analyzer finding no gaps completes without a gap signal", func(t *testing.T) {
		store := learning.NewMemoryStore()
		busClient := bus.NewClient(bus.NewMemoryStore())
		topic, item := seedContent(t, store, "Topic R", []string{"A", "C"})

		analyzer := &stubAnalyzer{gaps: nil}
		worker := NewAssessmentWorker(store, analyzer)
		runner := NewRunner(busClient, worker, nil)

		msg := dispatchTask(t, busClient, bus.AgentAssessment, bus.TaskRequest{
			Intent:        "assess",
			Topic:         "Topic R",
			TopicID:       &topic.ID,
			UserID:        "user-1",
			ContentItemID: item.ID,
			Answers:       []string{"A", "D"},
		})

		claimed, err := runner.Process(context.Background(), msg.ID)
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Equal(t, 1, analyzer.calls)

		done, err := busClient.Get(context.Background(), msg.ID)
		require.NoError(t, err)
		assert.Equal(t, bus.StatusDone, done.Status)

		signals, err := busClient.Poll(context.Background(), bus.AgentSequencing, 10)
		require.NoError(t, err)
		assert.Empty(t, signals)
	})
}

func TestAssessmentWorker_MissingContentItemIsHardError(t *testing.T) {
	store := learning.NewMemoryStore()
	busClient := bus.NewClient(bus.NewMemoryStore())

	worker := NewAssessmentWorker(store, &stubAnalyzer{})
	runner := NewRunner(busClient, worker, nil)

	msg := dispatchTask(t, busClient, bus.AgentAssessment, bus.TaskRequest{
		Intent:        "assess",
		Topic:         "Topic Z",
		UserID:        "user-1",
		ContentItemID: uuid.New().String(),
		Answers:       []string{"A"},
	})

	_, err := runner.Process(context.Background(), msg.ID)
	require.Error(t, err)
	assert.True(t, bus.IsKind(err, bus.KindNotFound))

	failed, getErr := busClient.Get(context.Background(), msg.ID)
	require.NoError(t, getErr)
	assert.Equal(t, bus.StatusFailed, failed.Status)
}

func TestAssessmentWorker_RequiresContentItemID(t *testing.T) {
	store := learning.NewMemoryStore()
	busClient := bus.NewClient(bus.NewMemoryStore())

	worker := NewAssessmentWorker(store, &stubAnalyzer{})
	runner := NewRunner(busClient, worker, nil)

	msg := dispatchTask(t, busClient, bus.AgentAssessment, bus.TaskRequest{
		Intent: "assess", Topic: "Topic Z", UserID: "user-1",
	})

	_, err := runner.Process(context.Background(), msg.ID)
	require.Error(t, err)
	assert.True(t, bus.IsKind(err, bus.KindValidation))
}
