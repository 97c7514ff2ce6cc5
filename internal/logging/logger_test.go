package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mberrors "github.com/systmms/mailbroker/internal/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "secret is redacted",
			input:    "my-secret-password",
			expected: "[REDACTED]",
		},
		{
			name:     "empty secret is still redacted",
			input:    "",
			expected: "[REDACTED]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Secret(tt.input).String())
			assert.Equal(t, tt.expected, fmt.Sprintf("%#v", Secret(tt.input)))
			assert.Equal(t, tt.expected, Secret(tt.input).LogValue().String())
		})
	}
}

func TestEventLine(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)

	logger.Event(context.Background(), EventFail, "no such user", "bob")
	logger.Event(context.Background(), EventSuccess, "login ok", "alice", "config", map[string]string{"bucket": "b1"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "fail", lines[0]["type"])
	assert.Equal(t, "no such user", lines[0]["cause"])
	assert.Equal(t, "bob", lines[0]["resource"])
	assert.Equal(t, "WARN", lines[0]["level"])

	assert.Equal(t, "success", lines[1]["type"])
	assert.Equal(t, "INFO", lines[1]["level"])
	assert.Equal(t, map[string]any{"bucket": "b1"}, lines[1]["config"])
}

func TestSecretNeverReachesOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true)

	secretValue := "super-secret-password-12345"
	logger.Info(context.Background(), "retrieved", "value", Secret(secretValue))
	logger.Debug(context.Background(), "debug line", "value", Secret(secretValue))

	out := buf.String()
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, secretValue)
	assert.Len(t, decodeLines(t, &buf), 2)
}

func TestDebugSuppressedByDefault(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Debug(context.Background(), "hidden")
	assert.Empty(t, buf.String())
}

func TestFailureCarriesClassification(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false).With("secret_id", "arn:secret")

	err := mberrors.Wrap(mberrors.UpstreamFailure, "secretsmanager.describe", fmt.Errorf("connection reset"), "describe secret")
	logger.Failure(context.Background(), "rotation failed", err, "step", "createSecret")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "error", line["type"])
	assert.Equal(t, "arn:secret", line["secret_id"])
	assert.Equal(t, "createSecret", line["step"])

	detail, ok := line["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "upstream_failure", detail["kind"])
	assert.Equal(t, "secretsmanager.describe", detail["op"])
	assert.Equal(t, true, detail["retryable"])
	chain, ok := detail["chain"].([]any)
	require.True(t, ok)
	assert.Len(t, chain, 2)
}

func TestParseLevel(t *testing.T) {
	assert.True(t, ParseLevel("DEBUG"))
	assert.True(t, ParseLevel(" debug "))
	assert.False(t, ParseLevel("INFO"))
	assert.False(t, ParseLevel(""))
}

func TestRedactFunction(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		secrets  []string
		expected string
	}{
		{
			name:     "single secret redacted",
			input:    "The token is secret123",
			secrets:  []string{"secret123"},
			expected: "The token is [REDACTED]",
		},
		{
			name:     "no secrets to redact",
			input:    "This has no secrets",
			secrets:  []string{},
			expected: "This has no secrets",
		},
		{
			name:     "short secret ignored",
			input:    "Short secret: ab",
			secrets:  []string{"ab"},
			expected: "Short secret: ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Redact(tt.input, tt.secrets))
		})
	}
}
