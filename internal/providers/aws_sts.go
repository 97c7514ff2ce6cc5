package providers

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/systmms/mailbroker/internal/broker"
	mberrors "github.com/systmms/mailbroker/internal/errors"
)

// STSClientAPI is the subset of the STS client the role assumer uses.
type STSClientAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// STSRoleAssumer implements broker.RoleAssumer.
type STSRoleAssumer struct {
	client   STSClientAPI
	duration time.Duration
}

// STSOption configures an STSRoleAssumer.
type STSOption func(*STSRoleAssumer)

// WithSessionDuration requests credentials valid for d. Zero leaves the
// role's default.
func WithSessionDuration(d time.Duration) STSOption {
	return func(a *STSRoleAssumer) {
		a.duration = d
	}
}

// NewSTSRoleAssumer creates a role assumer.
func NewSTSRoleAssumer(client STSClientAPI, opts ...STSOption) *STSRoleAssumer {
	a := &STSRoleAssumer{client: client}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AssumeRole returns temporary credentials for role.
func (a *STSRoleAssumer) AssumeRole(ctx context.Context, role, sessionName string) (broker.TemporaryCredential, error) {
	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(role),
		RoleSessionName: aws.String(SessionName(sessionName)),
	}
	if a.duration > 0 {
		input.DurationSeconds = aws.Int32(int32(a.duration / time.Second))
	}

	out, err := a.client.AssumeRole(ctx, input)
	if err != nil {
		return broker.TemporaryCredential{}, mberrors.Wrap(mberrors.UpstreamFailure, "sts.assume_role", err, "assume role %s", role)
	}
	if out.Credentials == nil {
		return broker.TemporaryCredential{}, mberrors.New(mberrors.Internal, "sts.assume_role", "no credentials returned for role %s", role)
	}

	return broker.TemporaryCredential{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Expiration:      aws.ToTime(out.Credentials.Expiration),
	}, nil
}

// SessionName maps a username onto the characters STS accepts in a role
// session name ([\w+=,.@-], 2 to 64 long).
func SessionName(username string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune("_+=,.@-", r):
			return r
		}
		return '-'
	}, username)
	for len(name) < 2 {
		name += "-"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
