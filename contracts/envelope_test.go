package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	t.Run("new envelopes get distinct identifiers", func(t *testing.T) {
		a := NewEnvelope(Header{Message: "op"}, nil)
		b := NewEnvelope(Header{Message: "op"}, nil)

		assert.NotEmpty(t, a.ID)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("reply keeps the request identifier and an empty header", func(t *testing.T) {
		reply := NewReply("req-1", json.RawMessage(`{"y":2}`))

		assert.Equal(t, "req-1", reply.ID)
		assert.Equal(t, Header{}, reply.Header)
		assert.True(t, reply.IsReply())
	})

	t.Run("envelopes with an operation name are not replies", func(t *testing.T) {
		env := NewEnvelope(Header{Message: "foo"}, nil)
		assert.False(t, env.IsReply())
	})
}

func TestErrorReply(t *testing.T) {
	t.Run("carries the error flag and encoded body", func(t *testing.T) {
		env, err := NewErrorReply("req-1", ErrorBody{
			Code:    ErrCodeNotImplemented,
			Message: "no handler",
		})
		require.NoError(t, err)

		assert.Equal(t, "req-1", env.ID)
		assert.True(t, env.Header.Error)

		var body ErrorBody
		require.NoError(t, json.Unmarshal(env.Body, &body))
		assert.Equal(t, ErrCodeNotImplemented, body.Code)
		assert.Equal(t, "no handler", body.Message)
	})

	t.Run("error body formats as code and message", func(t *testing.T) {
		body := &ErrorBody{Code: ErrCodeException, Message: "kaboom"}
		assert.Equal(t, "exception: kaboom", body.Error())
	})
}

func TestResult(t *testing.T) {
	t.Run("success carries the body", func(t *testing.T) {
		r := Success(json.RawMessage(`{"y":2}`))

		assert.False(t, r.Failed())
		assert.JSONEq(t, `{"y":2}`, string(r.Body()))
		assert.Nil(t, r.Err())
	})

	t.Run("failure carries code, message and payload", func(t *testing.T) {
		r := Failure(ErrCodeException, "kaboom", json.RawMessage(`{"detail":1}`))

		assert.True(t, r.Failed())
		require.NotNil(t, r.Err())
		assert.Equal(t, ErrCodeException, r.Err().Code)
		assert.Equal(t, "kaboom", r.Err().Message)
		assert.Nil(t, r.Body())
	})

	t.Run("invalid input shorthand uses the invalid_input kind", func(t *testing.T) {
		r := InvalidInput("missing field", nil)
		require.True(t, r.Failed())
		assert.Equal(t, ErrCodeInvalidInput, r.Err().Code)
	})

	t.Run("zero value is an empty success", func(t *testing.T) {
		var r Result
		assert.False(t, r.Failed())
	})
}
