package contracts

import "encoding/json"

// Result is the outcome of a handler invocation: either a success body or a
// failure carrying an error kind, message and optional payload. The zero
// value is a success with an empty body.
type Result struct {
	body    json.RawMessage
	failure *ErrorBody
}

// Success returns a successful result with the given reply body.
func Success(body json.RawMessage) Result {
	return Result{body: body}
}

// Failure returns a failed result with the given code, message and payload.
func Failure(code, message string, payload json.RawMessage) Result {
	return Result{failure: &ErrorBody{Code: code, Message: message, Payload: payload}}
}

// InvalidInput is shorthand for a Failure of kind invalid_input.
func InvalidInput(message string, payload json.RawMessage) Result {
	return Failure(ErrCodeInvalidInput, message, payload)
}

// Failed reports whether the result is a failure.
func (r Result) Failed() bool {
	return r.failure != nil
}

// Body returns the success body. It is nil for failures.
func (r Result) Body() json.RawMessage {
	return r.body
}

// Err returns the failure body, or nil for successes.
func (r Result) Err() *ErrorBody {
	return r.failure
}
