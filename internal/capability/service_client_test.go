package capability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
)

func TestServiceClient_Classify(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse func(w http.ResponseWriter, r *http.Request)
		expectedError  string
		expectedKind   bus.ErrorKind
		expectedIntent string
	}{
		{
			name: "successful_classification",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "POST", r.Method)
				assert.Equal(t, "/capabilities/classify", r.URL.Path)

				var req classifyRequest
				err := json.NewDecoder(r.Body).Decode(&req)
				assert.NoError(t, err)
				assert.Equal(t, "quiz me on Topic X", req.Text)

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(Classification{
					Intent:     "assess",
					Topic:      "Topic X",
					Confidence: 0.92,
				})
			},
			expectedIntent: "assess",
		},
		{
			name: "server_error",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Internal server error"))
			},
			expectedError: "capability service returned status 500",
			expectedKind:  bus.KindCapability,
		},
		{
			name: "malformed_json_response",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte("not json"))
			},
			expectedError: "malformed response",
			expectedKind:  bus.KindValidation,
		},
		{
			name: "empty_intent_rejected",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(Classification{Intent: "", Confidence: 0.5})
			},
			expectedError: "empty intent",
			expectedKind:  bus.KindValidation,
		},
		{
			name: "confidence_out_of_range_rejected",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(Classification{Intent: "assess", Confidence: 1.4})
			},
			expectedError: "outside [0,1]",
			expectedKind:  bus.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			client := NewServiceClient(server.URL)
			result, err := client.Classify(context.Background(), "quiz me on Topic X")

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.True(t, bus.IsKind(err, tt.expectedKind))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedIntent, result.Intent)
			assert.Equal(t, "Topic X", result.Topic)
			assert.InDelta(t, 0.92, result.Confidence, 0.001)
		})
	}
}

func TestServiceClient_Search(t *testing.T) {
	t.Run("returns text for an available source", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req searchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "web", req.Source)

			json.NewEncoder(w).Encode(searchResponse{Text: "three results about goroutines"})
		}))
		defer server.Close()

		searcher := NewServiceClient(server.URL).Searcher("web")
		text, err := searcher.Search(context.Background(), "goroutines")
		require.NoError(t, err)
		assert.Equal(t, "three results about goroutines", text)
		assert.Equal(t, "web", searcher.Source())
	})

	t.Run("unavailable marker maps to ErrUnavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(searchResponse{Unavailable: true})
		}))
		defer server.Close()

		searcher := NewServiceClient(server.URL).Searcher("news")
		_, err := searcher.Search(context.Background(), "goroutines")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnavailable))
	})
}

func TestServiceClient_Generate(t *testing.T) {
	t.Run("returns structured content", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"content": map[string]interface{}{"title": "Goroutines 101"},
			})
		}))
		defer server.Close()

		content, err := NewServiceClient(server.URL).Generate(context.Background(), "write a lesson", nil)
		require.NoError(t, err)

		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal(content, &parsed))
		assert.Equal(t, "Goroutines 101", parsed["title"])
	})

	t.Run("empty content is a validation error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{})
		}))
		defer server.Close()

		_, err := NewServiceClient(server.URL).Generate(context.Background(), "write a lesson", nil)
		require.Error(t, err)
		assert.True(t, bus.IsKind(err, bus.KindValidation))
	})
}

func TestRetryPolicy(t *testing.T) {
	t.Run("retries transient capability failures", func(t *testing.T) {
		calls := 0
		policy := RetryPolicy{Attempts: 3, Delay: time.Millisecond}
		err := policy.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return bus.CapabilityError("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry validation failures", func(t *testing.T) {
		calls := 0
		policy := RetryPolicy{Attempts: 3, Delay: time.Millisecond}
		err := policy.Do(context.Background(), func() error {
			calls++
			return bus.ValidationError("malformed output")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after attempts are exhausted", func(t *testing.T) {
		calls := 0
		policy := RetryPolicy{Attempts: 2, Delay: time.Millisecond}
		err := policy.Do(context.Background(), func() error {
			calls++
			return bus.CapabilityError("still down")
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})
}
