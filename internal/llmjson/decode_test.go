package llmjson

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Match  bool   `json:"match"`
	Reason string `json:"reason"`
}

func TestDecodePlainAndFenced(t *testing.T) {
	for _, in := range []string{
		`{"match":true,"reason":"same storm"}`,
		"```json\n{\"match\":true,\"reason\":\"same storm\"}\n```",
		`Sure, here you go: {"match":true,"reason":"same storm"} hope it helps`,
	} {
		var p payload
		require.NoError(t, Decode(in, &p), in)
		assert.True(t, p.Match)
		assert.Equal(t, "same storm", p.Reason)
	}
}

func TestDecodeMalformed(t *testing.T) {
	var p payload
	err := Decode("not json at all", &p)
	assert.True(t, errors.Is(err, ErrMalformed))

	err = Decode("", &p)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeTypeMismatch(t *testing.T) {
	var p payload
	err := Decode(`{"match":"yes"}`, &p)
	var typeErr *json.UnmarshalTypeError
	require.True(t, errors.As(err, &typeErr))
	assert.False(t, errors.Is(err, ErrMalformed))
}
