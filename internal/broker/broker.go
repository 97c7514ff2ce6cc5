package broker

import (
	"context"
	"time"

	mberrors "github.com/systmms/mailbroker/internal/errors"
	"github.com/systmms/mailbroker/internal/logging"
	"github.com/systmms/mailbroker/internal/metrics"
)

// errUnauthorized is returned for every rejected credential. Callers cannot
// tell an unknown user from a wrong password; the log line can.
func errUnauthorized() error {
	return &mberrors.Error{Kind: mberrors.Unauthorized, Op: "broker.authenticate", Message: "invalid username or password"}
}

// Broker validates user credentials and exchanges them for scoped temporary
// storage credentials.
type Broker struct {
	store    CredentialStore
	verifier PasswordVerifier
	resolver *LocationResolver
	roles    RoleAssumer
	logger   *logging.Logger
	metrics  *metrics.Recorder
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the logger used for authentication events.
func WithLogger(l *logging.Logger) Option {
	return func(b *Broker) {
		b.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

// New creates a Broker over its collaborators.
func New(store CredentialStore, verifier PasswordVerifier, resolver *LocationResolver, roles RoleAssumer, opts ...Option) *Broker {
	b := &Broker{
		store:    store,
		verifier: verifier,
		resolver: resolver,
		roles:    roles,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Authenticate checks username and password and, on success, returns the
// user's storage location with credentials for the user's role.
//
// Rejected credentials yield an Unauthorized error. Any other error is an
// UpstreamFailure or Internal error. Exactly one log line is written per
// call.
func (b *Broker) Authenticate(ctx context.Context, username, password string) (*CredentialBundle, error) {
	start := time.Now()
	bundle, err := b.authenticate(ctx, username, password)

	switch {
	case err == nil:
		b.metrics.RecordAuth("success", time.Since(start))
	case mberrors.Is(err, mberrors.Unauthorized):
		b.metrics.RecordAuth("unauthorized", time.Since(start))
	default:
		b.metrics.RecordAuth("error", time.Since(start))
		b.logger.Failure(ctx, "authentication failed", err, "resource", username)
	}
	return bundle, err
}

func (b *Broker) authenticate(ctx context.Context, username, password string) (*CredentialBundle, error) {
	// The directory rejects an empty key outright
	if username == "" {
		b.logger.Event(ctx, logging.EventFail, "no such user", username)
		return nil, errUnauthorized()
	}

	record, err := b.store.LookupUser(ctx, username)
	if err != nil {
		if mberrors.Is(err, mberrors.NotFound) {
			b.logger.Event(ctx, logging.EventFail, "no such user", username)
			return nil, errUnauthorized()
		}
		return nil, mberrors.Propagate("broker.lookup_user", err, mberrors.UpstreamFailure)
	}

	ok, err := b.verifier.Verify(password, record.PasswordHash)
	if err != nil {
		return nil, mberrors.Wrap(mberrors.Internal, "broker.verify_password", err, "stored password hash for %q is unusable", username)
	}
	if !ok {
		b.logger.Event(ctx, logging.EventFail, "incorrect password", username)
		return nil, errUnauthorized()
	}

	region, err := b.resolver.Resolve(ctx, record.Bucket)
	if err != nil {
		return nil, err
	}

	creds, err := b.roles.AssumeRole(ctx, record.Role, username)
	if err != nil {
		return nil, mberrors.Propagate("broker.assume_role", err, mberrors.UpstreamFailure)
	}

	bundle := &CredentialBundle{
		Bucket:              record.Bucket,
		Prefix:              record.Prefix,
		Region:              region,
		Role:                record.Role,
		TemporaryCredential: creds,
	}
	b.logger.Event(ctx, logging.EventSuccess, "login ok", username, "config", *bundle)
	return bundle, nil
}
