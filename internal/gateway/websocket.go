package gateway

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
)

var wsTracer = otel.Tracer("message-stream")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking for production
		return true
	},
}

const (
	statusPollInterval = 500 * time.Millisecond
	streamTimeout      = 5 * time.Minute
)

// MessageStream pushes a dispatched message's lifecycle transitions to a
// WebSocket client until the message reaches a terminal status. The bus has
// no notification channel, so the stream polls the store and forwards only
// observed changes.
type MessageStream struct {
	busClient *bus.Client
	tracer    trace.Tracer
	interval  time.Duration
}

// NewMessageStream creates a message status stream
func NewMessageStream(busClient *bus.Client) *MessageStream {
	return &MessageStream{
		busClient: busClient,
		tracer:    wsTracer,
		interval:  statusPollInterval,
	}
}

// statusEvent is one frame pushed to the client
type statusEvent struct {
	MessageID string  `json:"message_id"`
	Status    string  `json:"status"`
	Error     *string `json:"error,omitempty"`
	Terminal  bool    `json:"terminal"`
	Timestamp string  `json:"timestamp"`
}

// Stream handles WebSocket /api/ws/messages/:id
// @Summary Stream a message's lifecycle transitions
// @Description WebSocket endpoint pushing status changes until the message is done or failed
// @Tags messages
// @Param id path string true "Message ID"
// @Success 101 "Switching Protocols"
// @Failure 404 {object} map[string]string
// @Router /ws/messages/{id} [get]
func (s *MessageStream) Stream(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "message_stream.stream")
	defer span.End()

	messageID := c.Param("id")
	span.SetAttributes(attribute.String("message.id", messageID))

	msg, err := s.busClient.Get(ctx, messageID)
	if err != nil {
		span.RecordError(err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		log.Printf(`{"level":"error","message":"Failed to upgrade connection","error":"%v","message_id":"%s"}`, err, messageID)
		return
	}
	defer conn.Close()

	// The stream is bounded: a message stuck in processing would otherwise
	// hold the connection open forever.
	ctx, cancel := context.WithTimeout(ctx, streamTimeout)
	defer cancel()

	if err := s.send(conn, msg); err != nil {
		return
	}
	if msg.Status.Terminal() {
		return
	}

	lastStatus := msg.Status
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, err := s.busClient.Get(ctx, messageID)
			if err != nil {
				span.RecordError(err)
				return
			}
			if current.Status == lastStatus {
				continue
			}
			lastStatus = current.Status
			if err := s.send(conn, current); err != nil {
				return
			}
			if current.Status.Terminal() {
				return
			}
		}
	}
}

func (s *MessageStream) send(conn *websocket.Conn, msg *bus.Message) error {
	event := statusEvent{
		MessageID: msg.ID,
		Status:    string(msg.Status),
		Error:     msg.Error,
		Terminal:  msg.Status.Terminal(),
		Timestamp: msg.UpdatedAt.Format(time.RFC3339),
	}
	if err := conn.WriteJSON(event); err != nil {
		log.Printf(`{"level":"warn","message":"Failed to write status event","error":"%v","message_id":"%s"}`, err, msg.ID)
		return err
	}
	return nil
}
