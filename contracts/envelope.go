package contracts

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Reserved operation names understood by every adapter.
const (
	// HealthCheckMessage is the peer-initiated liveness probe.
	HealthCheckMessage = "healthz"

	// TriggerRequestMessage carries a workflow trigger invocation.
	TriggerRequestMessage = "trigger_request"

	// TriggerMetaRequestMessage asks the peer for workflow metadata.
	TriggerMetaRequestMessage = "trigger_meta_request"
)

// Header carries the routing fields of an envelope. An empty Message means
// the envelope is a reply correlated by its identifier.
type Header struct {
	Message     string `json:"message,omitempty"`
	WorkflowRef string `json:"workflow_ref,omitempty"`
	Error       bool   `json:"error,omitempty"`
}

// Envelope wraps one message for transport.
type Envelope struct {
	ID     string          `json:"id"`
	Header Header          `json:"header"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// NewEnvelope creates an envelope with a fresh randomized identifier.
// Identifiers double as correlation identifiers, so they must stay
// collision-resistant across adapter restarts sharing a broker namespace.
func NewEnvelope(header Header, body json.RawMessage) *Envelope {
	return &Envelope{
		ID:     uuid.New().String(),
		Header: header,
		Body:   body,
	}
}

// NewReply creates a reply envelope reusing the request identifier.
func NewReply(id string, body json.RawMessage) *Envelope {
	return &Envelope{
		ID:   id,
		Body: body,
	}
}

// IsReply reports whether the envelope is a correlated reply rather than a
// named request.
func (e *Envelope) IsReply() bool {
	return e.Header.Message == ""
}
