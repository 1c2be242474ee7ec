package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// Decode unwraps a dashboard API response body.
//
//   - {"success": true, "data": ...} yields data.
//   - {"success": false, ...} with an error or message field is an
//     application failure carrying that message.
//   - Anything else is decoded as the payload itself.
//
// A body that is not valid JSON, or does not fit T, is a decode failure.
func Decode[T any](body []byte) (T, error) {
	var zero T
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return zero, DecodeError(errors.New("invalid JSON"))
	}

	var env envelope
	if body[0] == '{' && json.Unmarshal(body, &env) == nil && env.Success != nil {
		switch {
		case *env.Success && len(env.Data) > 0:
			return unmarshal[T](env.Data)
		case !*env.Success && (len(env.Error) > 0 || env.Message != ""):
			return zero, ApplicationError(failureMessage(env))
		}
	}
	return unmarshal[T](body)
}

func unmarshal[T any](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, DecodeError(err)
	}
	return v, nil
}

// failureMessage accepts "error" as a string or as an object with a message.
func failureMessage(env envelope) string {
	if len(env.Error) > 0 {
		var s string
		if json.Unmarshal(env.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	if env.Message != "" {
		return env.Message
	}
	return DefaultMessage
}

// FromJSON adapts a raw body getter into a Fetcher that decodes the
// response envelope.
func FromJSON[T any](get func(ctx context.Context) ([]byte, error)) Fetcher[T] {
	return func(ctx context.Context) (T, error) {
		body, err := get(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		return Decode[T](body)
	}
}
