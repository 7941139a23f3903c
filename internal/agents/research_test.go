package agents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/capability"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/learning"
)

func researchSetup(web, news *stubSearcher, gen *stubGenerator) (*ResearchWorker, *learning.MemoryStore, *bus.Client) {
	store := learning.NewMemoryStore()
	busClient := bus.NewClient(bus.NewMemoryStore())
	worker := NewResearchWorker(store, []capability.Searcher{web, news}, gen)
	return worker, store, busClient
}

func TestResearchWorker_SynthesizesFromBothSources(t *testing.T) {
	web := &stubSearcher{name: "web", text: "web findings on recursion"}
	news := &stubSearcher{name: "news", text: "news findings on recursion"}
	gen := &stubGenerator{output: json.RawMessage(`{"summary": "Recursion is self-reference with a base case."}`)}
	worker, store, busClient := researchSetup(web, news, gen)
	runner := NewRunner(busClient, worker, nil)

	msg := dispatchTask(t, busClient, bus.AgentResearch, bus.TaskRequest{
		Intent: "research", Topic: "recursion", UserID: "user-1",
	})

	claimed, err := runner.Process(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 1, web.calls)
	assert.Equal(t, 1, news.calls)
	assert.Equal(t, 1, gen.calls)

	note, err := store.LatestResearchNote(context.Background(), "recursion")
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "Recursion is self-reference with a base case.", note.Summary)
	assert.ElementsMatch(t, []string{"web", "news"}, note.Sources)
	assert.True(t, note.Fresh(time.Now().UTC()))

	results, err := busClient.Poll(context.Background(), bus.AgentRouter, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	var result bus.ResultReady
	require.NoError(t, bus.DecodePayload(results[0], &result))
	assert.Equal(t, "research_note", result.EntityKind)
	assert.Equal(t, note.ID, result.EntityID)
	assert.False(t, result.Cached)
}

func TestResearchWorker_CacheWindow(t *testing.T) {
	t.Run("fresh note short-circuits external sources", func(t *testing.T) {
		web := &stubSearcher{name: "web", text: "ignored"}
		news := &stubSearcher{name: "news", text: "ignored"}
		gen := &stubGenerator{output: json.RawMessage(`{"summary": "unused"}`)}
		worker, store, busClient := researchSetup(web, news, gen)

		// Researched 30 minutes ago, still inside the 1-hour window.
		now := time.Now().UTC()
		note := &learning.ResearchNote{
			ID:         uuid.New().String(),
			Topic:      "graphs",
			Summary:    "Graphs are nodes and edges.",
			Sources:    []string{"web", "news"},
			FreshUntil: now.Add(30 * time.Minute),
			CreatedAt:  now.Add(-30 * time.Minute),
		}
		require.NoError(t, store.InsertResearchNote(context.Background(), note))

		runner := NewRunner(busClient, worker, nil)
		msg := dispatchTask(t, busClient, bus.AgentResearch, bus.TaskRequest{
			Intent: "research", Topic: "graphs", UserID: "user-1",
		})

		_, err := runner.Process(context.Background(), msg.ID)
		require.NoError(t, err)

		assert.Zero(t, web.calls, "fresh cache must not hit external sources")
		assert.Zero(t, news.calls)
		assert.Zero(t, gen.calls)

		results, err := busClient.Poll(context.Background(), bus.AgentRouter, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)

		var result bus.ResultReady
		require.NoError(t, bus.DecodePayload(results[0], &result))
		assert.True(t, result.Cached)
		assert.Equal(t, note.ID, result.EntityID)
	})

	t.Run("stale note triggers fresh research", func(t *testing.T) {
		web := &stubSearcher{name: "web", text: "new web data"}
		news := &stubSearcher{name: "news", text: "new news data"}
		gen := &stubGenerator{output: json.RawMessage(`{"summary": "refreshed"}`)}
		worker, store, busClient := researchSetup(web, news, gen)

		// Researched 90 minutes ago, window expired.
		now := time.Now().UTC()
		require.NoError(t, store.InsertResearchNote(context.Background(), &learning.ResearchNote{
			ID:         uuid.New().String(),
			Topic:      "graphs",
			Summary:    "stale",
			Sources:    []string{"web"},
			FreshUntil: now.Add(-30 * time.Minute),
			CreatedAt:  now.Add(-90 * time.Minute),
		}))

		runner := NewRunner(busClient, worker, nil)
		msg := dispatchTask(t, busClient, bus.AgentResearch, bus.TaskRequest{
			Intent: "research", Topic: "graphs", UserID: "user-1",
		})

		_, err := runner.Process(context.Background(), msg.ID)
		require.NoError(t, err)

		assert.Equal(t, 1, web.calls)
		assert.Equal(t, 1, news.calls)
		assert.Equal(t, 1, gen.calls)

		note, err := store.LatestResearchNote(context.Background(), "graphs")
		require.NoError(t, err)
		assert.Equal(t, "refreshed", note.Summary)
	})
}

func TestResearchWorker_MultiSourceResilience(t *testing.T) {
	t.Run("one unavailable source is tolerated", func(t *testing.T) {
		web := &stubSearcher{name: "web", text: "web only data"}
		news := &stubSearcher{name: "news", err: capability.ErrUnavailable}
		gen := &stubGenerator{output: json.RawMessage(`{"summary": "from web alone"}`)}
		worker, store, busClient := researchSetup(web, news, gen)

		runner := NewRunner(busClient, worker, nil)
		msg := dispatchTask(t, busClient, bus.AgentResearch, bus.TaskRequest{
			Intent: "research", Topic: "trees", UserID: "user-1",
		})

		_, err := runner.Process(context.Background(), msg.ID)
		require.NoError(t, err)

		note, err := store.LatestResearchNote(context.Background(), "trees")
		require.NoError(t, err)
		require.NotNil(t, note)
		assert.Equal(t, []string{"web"}, note.Sources)
	})

	t.Run("all sources unavailable fails naming each", func(t *testing.T) {
		web := &stubSearcher{name: "web", err: capability.ErrUnavailable}
		news := &stubSearcher{name: "news", err: capability.ErrUnavailable}
		gen := &stubGenerator{output: json.RawMessage(`{"summary": "unreachable"}`)}
		worker, _, busClient := researchSetup(web, news, gen)

		runner := NewRunner(busClient, worker, nil)
		msg := dispatchTask(t, busClient, bus.AgentResearch, bus.TaskRequest{
			Intent: "research", Topic: "trees", UserID: "user-1",
		})

		_, err := runner.Process(context.Background(), msg.ID)
		require.Error(t, err)
		assert.True(t, bus.IsKind(err, bus.KindCapability))
		assert.Contains(t, err.Error(), "web")
		assert.Contains(t, err.Error(), "news")
		assert.Zero(t, gen.calls, "synthesis must not run without source data")

		failed, getErr := busClient.Get(context.Background(), msg.ID)
		require.NoError(t, getErr)
		assert.Equal(t, bus.StatusFailed, failed.Status)
	})
}

func TestKnowledgeSearcher_ServesStoredNotes(t *testing.T) {
	t.Run("no stored note reports unavailable", func(t *testing.T) {
		store := learning.NewMemoryStore()
		knowledge := NewKnowledgeSearcher(store)

		_, err := knowledge.Search(context.Background(), "monoids")
		require.Error(t, err)
		assert.ErrorIs(t, err, capability.ErrUnavailable)
	})

	t.Run("stale note still grounds the next synthesis", func(t *testing.T) {
		web := &stubSearcher{name: "web", text: "fresh web data"}
		news := &stubSearcher{name: "news", err: capability.ErrUnavailable}
		gen := &stubGenerator{output: json.RawMessage(`{"summary": "grounded refresh"}`)}
		store := learning.NewMemoryStore()
		busClient := bus.NewClient(bus.NewMemoryStore())
		worker := NewResearchWorker(store, []capability.Searcher{
			NewKnowledgeSearcher(store),
			web,
			news,
		}, gen)

		// Window expired, so the note cannot answer on its own.
		now := time.Now().UTC()
		require.NoError(t, store.InsertResearchNote(context.Background(), &learning.ResearchNote{
			ID:         uuid.New().String(),
			Topic:      "graphs",
			Summary:    "prior graph knowledge",
			Sources:    []string{"web", "news"},
			FreshUntil: now.Add(-30 * time.Minute),
			CreatedAt:  now.Add(-90 * time.Minute),
		}))

		runner := NewRunner(busClient, worker, nil)
		msg := dispatchTask(t, busClient, bus.AgentResearch, bus.TaskRequest{
			Intent: "research", Topic: "graphs", UserID: "user-1",
		})

		_, err := runner.Process(context.Background(), msg.ID)
		require.NoError(t, err)

		require.NotNil(t, gen.lastContext)
		assert.Equal(t, "prior graph knowledge", gen.lastContext["knowledge"])
		assert.Equal(t, "fresh web data", gen.lastContext["web"])

		note, err := store.LatestResearchNote(context.Background(), "graphs")
		require.NoError(t, err)
		assert.Equal(t, "grounded refresh", note.Summary)
		assert.ElementsMatch(t, []string{"knowledge", "web"}, note.Sources)
	})
}

func TestResearchWorker_RejectsMalformedSynthesis(t *testing.T) {
	web := &stubSearcher{name: "web", text: "data"}
	news := &stubSearcher{name: "news", text: "data"}
	gen := &stubGenerator{output: json.RawMessage(`{"summary": ""}`)}
	worker, _, busClient := researchSetup(web, news, gen)

	runner := NewRunner(busClient, worker, nil)
	msg := dispatchTask(t, busClient, bus.AgentResearch, bus.TaskRequest{
		Intent: "research", Topic: "heaps", UserID: "user-1",
	})

	_, err := runner.Process(context.Background(), msg.ID)
	require.Error(t, err)
	assert.True(t, bus.IsKind(err, bus.KindValidation))
}
