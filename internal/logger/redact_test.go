package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactMap(t *testing.T) {
	in := map[string]any{
		"description":    "coffee",
		"api_token":      "tok-123",
		"webhook_secret": "s3cret",
		"nested": map[string]any{
			"firefly_access_token": "abc",
			"amount":               "12.50",
		},
	}
	out := RedactMap(in)

	assert.Equal(t, "coffee", out["description"])
	assert.Equal(t, "[FILTERED]", out["api_token"])
	assert.Equal(t, "[FILTERED]", out["webhook_secret"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "[FILTERED]", nested["firefly_access_token"])
	assert.Equal(t, "12.50", nested["amount"])

	// Input must not be mutated.
	assert.Equal(t, "tok-123", in["api_token"])
}

func TestRedactHeader(t *testing.T) {
	assert.Equal(t, "[FILTERED]", RedactHeader("Authorization", "Bearer x"))
	assert.Equal(t, "[FILTERED]", RedactHeader("X-Auth-Token", "x"))
	assert.Equal(t, "application/json", RedactHeader("Content-Type", "application/json"))
}
