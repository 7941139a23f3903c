package bus

import (
	"time"
)

// Agent identifies an addressable worker on the bus
type Agent string

const (
	AgentRouter     Agent = "router"
	AgentResearch   Agent = "research"
	AgentContent    Agent = "content"
	AgentAssessment Agent = "assessment"
	AgentSequencing Agent = "sequencing"
)

// KnownAgents is the closed set of addressable agents
var KnownAgents = map[Agent]bool{
	AgentRouter:     true,
	AgentResearch:   true,
	AgentContent:    true,
	AgentAssessment: true,
	AgentSequencing: true,
}

// Valid reports whether the agent is a member of the closed enumeration
func (a Agent) Valid() bool {
	return KnownAgents[a]
}

// MessageType identifies the kind of message and determines its payload shape
type MessageType string

const (
	TypeTaskRequest    MessageType = "task_request"
	TypeResultReady    MessageType = "result_ready"
	TypeGapSignal      MessageType = "gap_signal"
	TypeProgressUpdate MessageType = "progress_update"
)

// KnownTypes is the closed set of message kinds
var KnownTypes = map[MessageType]bool{
	TypeTaskRequest:    true,
	TypeResultReady:    true,
	TypeGapSignal:      true,
	TypeProgressUpdate: true,
}

// Valid reports whether the type is a member of the closed enumeration
func (t MessageType) Valid() bool {
	return KnownTypes[t]
}

// Status is the message lifecycle state
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
// Retried work is a new message, never a status reset.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Message is the unit of inter-agent communication persisted on the bus
type Message struct {
	ID        string                 `json:"id" db:"id"`
	From      Agent                  `json:"from" db:"from_agent"`
	To        Agent                  `json:"to" db:"to_agent"`
	Type      MessageType            `json:"type" db:"type"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
	Status    Status                 `json:"status" db:"status"`
	Error     *string                `json:"error,omitempty" db:"error"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// MessageInput is what a dispatcher supplies; id, status and timestamps are
// assigned by the bus
type MessageInput struct {
	From    Agent                  `json:"from"`
	To      Agent                  `json:"to"`
	Type    MessageType            `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}
