package contracts

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wireflow/wireflow-go/internal/jsoncodec"
)

// Error kinds carried in error reply bodies.
const (
	// ErrCodeInvalidPayload marks a malformed or unmatched incoming envelope.
	ErrCodeInvalidPayload = "invalid_payload"

	// ErrCodeNotImplemented marks an operation with no registered handler.
	ErrCodeNotImplemented = "not_implemented"

	// ErrCodeException marks a handler failure during processing.
	ErrCodeException = "exception"

	// ErrCodeInvalidInput is the caller-defined kind for rejected request
	// bodies, e.g. a missing required field.
	ErrCodeInvalidInput = "invalid_input"
)

// ErrMissingID is returned for inbound envelopes without an identifier.
var ErrMissingID = errors.New("envelope missing id")

// ErrorBody is the body of an error reply.
type ErrorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Error implements the error interface so failures can cross package
// boundaries without losing the wire kind.
func (e *ErrorBody) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewErrorReply builds an error reply envelope for the given request
// identifier.
func NewErrorReply(id string, body ErrorBody) (*Envelope, error) {
	raw, err := jsoncodec.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode error body: %w", err)
	}
	return &Envelope{
		ID:     id,
		Header: Header{Error: true},
		Body:   raw,
	}, nil
}
