package gateway

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/learning"
	"github.com/learnloop/tutor-platform/agent-coordinator/internal/router"
)

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	router    *router.Router
	busClient *bus.Client
	store     learning.Store
}

// NewHandler creates a new gateway handler
func NewHandler(r *router.Router, busClient *bus.Client, store learning.Store) *Handler {
	return &Handler{
		router:    r,
		busClient: busClient,
		store:     store,
	}
}

// SubmitRequest represents an inbound learner request
type SubmitRequest struct {
	UserID        string   `json:"user_id" binding:"required"`
	Message       string   `json:"message" binding:"required"`
	ContentItemID string   `json:"content_item_id"`
	Answers       []string `json:"answers"`
}

// SubmitResponse represents the routing outcome for a learner request
type SubmitResponse struct {
	Intent              string  `json:"intent"`
	Topic               string  `json:"topic,omitempty"`
	Confidence          float64 `json:"confidence"`
	DispatchedTo        string  `json:"dispatched_to,omitempty"`
	DispatchedMessageID string  `json:"dispatched_message_id,omitempty"`
	Response            string  `json:"response"`
}

// Submit godoc
// @Summary Submit a learner request
// @Description Classify a free-text request and dispatch it to the owning agent
// @Tags requests
// @Accept json
// @Produce json
// @Param request body SubmitRequest true "Learner request"
// @Success 200 {object} SubmitResponse
// @Failure 400 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /requests [post]
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.router.Route(c.Request.Context(), router.Input{
		UserID:        req.UserID,
		Message:       req.Message,
		ContentItemID: req.ContentItemID,
		Answers:       req.Answers,
	})
	if err != nil {
		log.Printf(`{"level":"error","message":"Routing failed","error":"%v","user_id":"%s"}`, err, req.UserID)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, SubmitResponse{
		Intent:              result.Intent,
		Topic:               result.Topic,
		Confidence:          result.Confidence,
		DispatchedTo:        result.DispatchedTo,
		DispatchedMessageID: result.DispatchedMessageID,
		Response:            result.Response,
	})
}

// MessageResponse represents one bus message's externally visible state
type MessageResponse struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	Error     *string `json:"error,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// GetMessage godoc
// @Summary Get a bus message
// @Description Return the current lifecycle state of a dispatched message
// @Tags messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} map[string]string
// @Router /messages/{id} [get]
func (h *Handler) GetMessage(c *gin.Context) {
	msg, err := h.busClient.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, messageResponse(msg))
}

// RouteDecisionResponse represents one recorded routing decision
type RouteDecisionResponse struct {
	ID           string  `json:"id"`
	Intent       string  `json:"intent"`
	Topic        string  `json:"topic,omitempty"`
	Confidence   float64 `json:"confidence"`
	DispatchedTo string  `json:"dispatched_to,omitempty"`
	MessageID    string  `json:"message_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// GetRouteDecisions godoc
// @Summary List a user's recent routing decisions
// @Description Return the audit trail of routing decisions for a user, newest first
// @Tags requests
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {array} RouteDecisionResponse
// @Router /users/{id}/route-decisions [get]
func (h *Handler) GetRouteDecisions(c *gin.Context) {
	decisions, err := h.store.RouteDecisionsByUser(c.Request.Context(), c.Param("id"), 50)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	out := make([]RouteDecisionResponse, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, RouteDecisionResponse{
			ID:           d.ID,
			Intent:       d.Intent,
			Topic:        d.Topic,
			Confidence:   d.Confidence,
			DispatchedTo: d.DispatchedTo,
			MessageID:    d.MessageID,
			CreatedAt:    d.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

// Health godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func messageResponse(msg *bus.Message) MessageResponse {
	return MessageResponse{
		ID:        msg.ID,
		From:      string(msg.From),
		To:        string(msg.To),
		Type:      string(msg.Type),
		Status:    string(msg.Status),
		Error:     msg.Error,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		UpdatedAt: msg.UpdatedAt.Format(time.RFC3339),
	}
}

// statusFor maps the coordinator error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case bus.IsKind(err, bus.KindValidation):
		return http.StatusBadRequest
	case bus.IsKind(err, bus.KindNotFound):
		return http.StatusNotFound
	case bus.IsKind(err, bus.KindCapability):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
