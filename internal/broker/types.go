package broker

import (
	"context"
	"log/slog"
	"time"
)

// UserRecord is a user directory entry. The directory owns it; the broker
// only reads it.
type UserRecord struct {
	Username     string
	PasswordHash string
	Bucket       string
	Prefix       string
	Role         string
}

// TemporaryCredential is a time-boxed credential triple issued for a role.
type TemporaryCredential struct {
	AccessKeyID     string    `json:"AWSAccessKeyID"`
	SecretAccessKey string    `json:"AWSSecretAccessKey"`
	SessionToken    string    `json:"AWSSessionToken"`
	Expiration      time.Time `json:"-"`
}

// CredentialBundle is returned to an authenticated caller: where its mail
// lives and how to reach it. The caller owns it and must not log the
// credential fields.
type CredentialBundle struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
	Region string `json:"region"`
	Role   string `json:"role"`
	TemporaryCredential
}

// LogValue exposes only the non-secret fields.
func (b CredentialBundle) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("bucket", b.Bucket),
		slog.String("prefix", b.Prefix),
		slog.String("region", b.Region),
		slog.String("role", b.Role),
	)
}

// CredentialStore looks up user records. A missing user is reported as a
// NotFound error.
type CredentialStore interface {
	LookupUser(ctx context.Context, username string) (*UserRecord, error)
}

// PasswordVerifier checks a plaintext password against a stored hash. A
// mismatch is (false, nil); an error means the hash could not be used.
type PasswordVerifier interface {
	Verify(password, encodedHash string) (bool, error)
}

// BucketLocator asks object storage where a bucket lives. An empty result
// means the provider's default region.
type BucketLocator interface {
	BucketRegion(ctx context.Context, bucket string) (string, error)
}

// RoleAssumer exchanges a role for temporary credentials, tagging the
// session with sessionName.
type RoleAssumer interface {
	AssumeRole(ctx context.Context, role, sessionName string) (TemporaryCredential, error)
}
