package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
)

// requestTimeout bounds every capability round trip so a hung external call
// never permanently occupies a claimed message.
const requestTimeout = 15 * time.Second

// ServiceClient talks to the capability service over HTTP. It implements
// Classifier, Generator and Analyzer, and vends per-source Searchers.
type ServiceClient struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// NewServiceClient creates a capability service client. The base URL comes
// from CAPABILITY_SERVICE_URL when unset.
func NewServiceClient(baseURL string) *ServiceClient {
	if baseURL == "" {
		baseURL = os.Getenv("CAPABILITY_SERVICE_URL")
	}
	if baseURL == "" {
		baseURL = "http://capability-service:8000"
		log.Printf("WARN: CAPABILITY_SERVICE_URL not set, defaulting to %s", baseURL)
	}

	settings := gobreaker.Settings{
		Name:        "capability-service",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	}

	return &ServiceClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		tracer:  otel.Tracer("capability-client"),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

// Classify interprets free text into an intent, optional topic, and a
// confidence. Malformed structured output is rejected, never guessed at.
func (c *ServiceClient) Classify(ctx context.Context, text string) (*Classification, error) {
	ctx, span := c.tracer.Start(ctx, "capability.classify")
	defer span.End()

	var result Classification
	if err := c.post(ctx, "/capabilities/classify", classifyRequest{Text: text}, &result); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if result.Intent == "" {
		err := bus.ValidationError("classifier returned empty intent")
		span.RecordError(err)
		return nil, err
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		err := bus.ValidationError("classifier returned confidence %v outside [0,1]", result.Confidence)
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("classification.intent", result.Intent),
		attribute.Float64("classification.confidence", result.Confidence),
	)
	return &result, nil
}

type searchRequest struct {
	Query  string `json:"query"`
	Source string `json:"source"`
}

type searchResponse struct {
	Text        string `json:"text"`
	Unavailable bool   `json:"unavailable"`
}

// sourceSearcher binds the client to one named search source
type sourceSearcher struct {
	client *ServiceClient
	source string
}

// Searcher returns a Searcher bound to the named source, e.g. "web" or
// "news".
func (c *ServiceClient) Searcher(source string) Searcher {
	return &sourceSearcher{client: c, source: source}
}

func (s *sourceSearcher) Source() string {
	return s.source
}

func (s *sourceSearcher) Search(ctx context.Context, query string) (string, error) {
	ctx, span := s.client.tracer.Start(ctx, "capability.search")
	defer span.End()
	span.SetAttributes(attribute.String("search.source", s.source))

	var result searchResponse
	err := s.client.post(ctx, "/capabilities/search", searchRequest{Query: query, Source: s.source}, &result)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if result.Unavailable {
		span.SetAttributes(attribute.Bool("search.unavailable", true))
		return "", fmt.Errorf("source %s: %w", s.source, ErrUnavailable)
	}
	return result.Text, nil
}

type generateRequest struct {
	Prompt  string                 `json:"prompt"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type generateResponse struct {
	Content json.RawMessage `json:"content"`
}

// Generate asks the capability service for structured content
func (c *ServiceClient) Generate(ctx context.Context, prompt string, contextData map[string]interface{}) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "capability.generate")
	defer span.End()

	var result generateResponse
	if err := c.post(ctx, "/capabilities/generate", generateRequest{Prompt: prompt, Context: contextData}, &result); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(result.Content) == 0 {
		err := bus.ValidationError("generator returned empty content")
		span.RecordError(err)
		return nil, err
	}
	return result.Content, nil
}

type analyzeRequest struct {
	Topic  string   `json:"topic"`
	Missed []string `json:"missed"`
}

type analyzeResponse struct {
	Gaps []string `json:"gaps"`
}

// AnalyzeGaps identifies knowledge gaps behind the missed questions
func (c *ServiceClient) AnalyzeGaps(ctx context.Context, topic string, missed []string) ([]string, error) {
	ctx, span := c.tracer.Start(ctx, "capability.analyze_gaps")
	defer span.End()
	span.SetAttributes(attribute.String("topic", topic), attribute.Int("missed.count", len(missed)))

	var result analyzeResponse
	if err := c.post(ctx, "/capabilities/analyze", analyzeRequest{Topic: topic, Missed: missed}, &result); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result.Gaps, nil
}

// post performs one JSON round trip through the circuit breaker
func (c *ServiceClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.postInternal(ctx, path, body, out)
	})
	if err != nil {
		if bus.IsKind(err, bus.KindValidation) {
			return err
		}
		return bus.CapabilityError("capability service %s: %v", path, err)
	}
	return nil
}

func (c *ServiceClient) postInternal(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s%s", c.baseURL, path)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("capability service returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("capability service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return bus.ValidationError("capability service returned malformed response: %v", err)
	}
	return nil
}

// IsHealthy checks the capability service health endpoint
func (c *ServiceClient) IsHealthy(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "capability.health_check")
	defer span.End()

	if c.breaker.State() == gobreaker.StateOpen {
		span.SetAttributes(attribute.Bool("healthy", false), attribute.String("reason", "circuit_breaker_open"))
		return false
	}

	url := fmt.Sprintf("%s/health", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		span.RecordError(err)
		return false
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return false
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	span.SetAttributes(attribute.Bool("healthy", healthy))
	return healthy
}
