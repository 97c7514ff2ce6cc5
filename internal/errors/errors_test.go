package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/mailbroker/internal/errors"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *errors.Error
		want string
	}{
		{
			name: "op and message",
			err:  errors.New(errors.NotFound, "directory.lookup", "user %q not found", "bob"),
			want: `directory.lookup: user "bob" not found`,
		},
		{
			name: "message and cause",
			err:  errors.Wrap(errors.UpstreamFailure, "sts.assume", fmt.Errorf("boom"), "assume role failed"),
			want: "sts.assume: assume role failed: boom",
		},
		{
			name: "cause only",
			err:  errors.Wrap(errors.Internal, "", fmt.Errorf("boom"), ""),
			want: "boom",
		},
		{
			name: "kind fallback",
			err:  &errors.Error{Kind: errors.Unauthorized},
			want: "unauthorized",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.Internal, errors.KindOf(fmt.Errorf("plain")))
	assert.Equal(t, errors.NotFound, errors.KindOf(errors.New(errors.NotFound, "op", "missing")))

	wrapped := fmt.Errorf("outer: %w", errors.New(errors.PreconditionFailed, "op", "disabled"))
	assert.Equal(t, errors.PreconditionFailed, errors.KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, errors.PreconditionFailed))
	assert.False(t, errors.Is(nil, errors.Internal))
}

func TestPropagateKeepsExistingKind(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.Internal, "directory.lookup", "malformed record")
	err := errors.Propagate("broker.authenticate", inner, errors.UpstreamFailure)
	assert.Equal(t, errors.Internal, errors.KindOf(err))
	assert.True(t, stderrors.Is(err, inner))

	err = errors.Propagate("broker.authenticate", fmt.Errorf("dial tcp: timeout"), errors.UpstreamFailure)
	assert.Equal(t, errors.UpstreamFailure, errors.KindOf(err))

	assert.NoError(t, errors.Propagate("op", nil, errors.Internal))
}

func TestDescribeWalksChainAndAWSMetadata(t *testing.T) {
	t.Parallel()

	apiErr := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down", Fault: smithy.FaultClient}
	opErr := &smithy.OperationError{ServiceID: "STS", OperationName: "AssumeRole", Err: apiErr}
	err := errors.Wrap(errors.UpstreamFailure, "sts.assume_role", opErr, "assume role %s", "arn:aws:iam::1:role/r")

	d := errors.Describe(err)
	assert.Equal(t, "upstream_failure", d.Kind)
	assert.Equal(t, "sts.assume_role", d.Op)
	assert.Equal(t, "STS", d.Service)
	assert.Equal(t, "AssumeRole", d.Operation)
	assert.Equal(t, "ThrottlingException", d.Code)
	assert.Equal(t, "client", d.Fault)
	assert.True(t, d.Retryable)
	require.Len(t, d.Chain, 3)
	assert.Equal(t, "*errors.Error", d.Chain[0].Type)
	assert.Equal(t, "*smithy.OperationError", d.Chain[1].Type)
	assert.Equal(t, "*smithy.GenericAPIError", d.Chain[2].Type)
}

func TestDescribeNil(t *testing.T) {
	t.Parallel()
	assert.Equal(t, errors.Details{}, errors.Describe(nil))
}

func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "TABLE_NAME",
		Message:    "user directory table is required",
		Suggestion: "export TABLE_NAME=<dynamodb table>",
	}

	errMsg := err.Error()
	assert.Contains(t, errMsg, "TABLE_NAME")
	assert.Contains(t, errMsg, "user directory table is required")
	assert.Contains(t, errMsg, "export TABLE_NAME")
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout text", fmt.Errorf("request timeout"), true},
		{"server fault", &smithy.GenericAPIError{Code: "InternalFailure", Fault: smithy.FaultServer}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}, false},
		{"plain", fmt.Errorf("invalid input"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errors.IsRetryable(tt.err))
		})
	}
}
