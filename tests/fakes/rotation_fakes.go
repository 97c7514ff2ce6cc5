package fakes

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/systmms/mailbroker/internal/broker"
	mberrors "github.com/systmms/mailbroker/internal/errors"
	"github.com/systmms/mailbroker/internal/rotation"
)

// FakeSecretStore is an in-memory rotation.SecretStore.
type FakeSecretStore struct {
	mu sync.Mutex

	RotationEnabled bool
	// Versions maps version id to stages
	Versions map[string][]string
	// Values maps version id to stored value
	Values map[string]string

	// Per-operation error injection
	DescribeErr error
	GetErr      error
	PutErr      error
	UpdateErr   error

	DescribeCalls int
	GetCalls      int
	PutCalls      int
	UpdateCalls   int
}

// NewFakeSecretStore creates a store with rotation enabled and no versions.
func NewFakeSecretStore() *FakeSecretStore {
	return &FakeSecretStore{
		RotationEnabled: true,
		Versions:        make(map[string][]string),
		Values:          make(map[string]string),
	}
}

// AddVersion registers a version with the given stages and optional value.
func (f *FakeSecretStore) AddVersion(versionID, value string, stages ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Versions[versionID] = slices.Clone(stages)
	if value != "" {
		f.Values[versionID] = value
	}
}

// Mutations returns the number of write calls made.
func (f *FakeSecretStore) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PutCalls + f.UpdateCalls
}

// StagesOf returns the stages attached to versionID.
func (f *FakeSecretStore) StagesOf(versionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Versions[versionID])
}

// ValueOf returns the value stored for versionID.
func (f *FakeSecretStore) ValueOf(versionID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Values[versionID]
}

// DescribeSecret implements rotation.SecretStore.
func (f *FakeSecretStore) DescribeSecret(ctx context.Context, secretID string) (*rotation.SecretMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DescribeCalls++
	if f.DescribeErr != nil {
		return nil, f.DescribeErr
	}
	stages := make(map[string][]string, len(f.Versions))
	for id, s := range f.Versions {
		stages[id] = slices.Clone(s)
	}
	return &rotation.SecretMetadata{RotationEnabled: f.RotationEnabled, VersionStages: stages}, nil
}

// GetSecretValue implements rotation.SecretStore.
func (f *FakeSecretStore) GetSecretValue(ctx context.Context, secretID, versionID, stage string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++
	if f.GetErr != nil {
		return "", f.GetErr
	}
	value, ok := f.Values[versionID]
	if !ok || (stage != "" && !slices.Contains(f.Versions[versionID], stage)) {
		return "", mberrors.New(mberrors.NotFound, "fake.get_secret_value", "no value for %s/%s", versionID, stage)
	}
	return value, nil
}

// PutSecretValue implements rotation.SecretStore.
func (f *FakeSecretStore) PutSecretValue(ctx context.Context, secretID, token, value string, stages []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PutCalls++
	if f.PutErr != nil {
		return f.PutErr
	}
	for id, s := range f.Versions {
		if id != token {
			f.Versions[id] = slices.DeleteFunc(s, func(st string) bool { return slices.Contains(stages, st) })
		}
	}
	f.Values[token] = value
	for _, st := range stages {
		if !slices.Contains(f.Versions[token], st) {
			f.Versions[token] = append(f.Versions[token], st)
		}
	}
	return nil
}

// UpdateVersionStage implements rotation.SecretStore.
func (f *FakeSecretStore) UpdateVersionStage(ctx context.Context, secretID, stage, moveToVersion, removeFromVersion string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	if removeFromVersion != "" {
		if !slices.Contains(f.Versions[removeFromVersion], stage) {
			return fmt.Errorf("stage %s not on version %s", stage, removeFromVersion)
		}
		f.Versions[removeFromVersion] = slices.DeleteFunc(f.Versions[removeFromVersion], func(st string) bool { return st == stage })
	}
	if !slices.Contains(f.Versions[moveToVersion], stage) {
		f.Versions[moveToVersion] = append(f.Versions[moveToVersion], stage)
	}
	return nil
}

// FakeKeyGenerator wraps a small RSA generator and counts calls.
type FakeKeyGenerator struct {
	mu    sync.Mutex
	Err   error
	calls int
}

// Generate implements rotation.KeyGenerator with 1024-bit keys.
func (f *FakeKeyGenerator) Generate(ctx context.Context) (*rotation.Keypair, error) {
	f.mu.Lock()
	f.calls++
	err := f.Err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return rotation.RSAGenerator{Bits: 1024}.Generate(ctx)
}

// Calls returns the number of Generate calls.
func (f *FakeKeyGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeCredentialStore is an in-memory broker.CredentialStore.
type FakeCredentialStore struct {
	mu    sync.Mutex
	Users map[string]*broker.UserRecord
	Err   error
	Calls int
}

// NewFakeCredentialStore creates an empty directory.
func NewFakeCredentialStore() *FakeCredentialStore {
	return &FakeCredentialStore{Users: make(map[string]*broker.UserRecord)}
}

// AddUser stores a record under its username.
func (f *FakeCredentialStore) AddUser(record broker.UserRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[record.Username] = &record
}

// LookupUser implements broker.CredentialStore.
func (f *FakeCredentialStore) LookupUser(ctx context.Context, username string) (*broker.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	record, ok := f.Users[username]
	if !ok {
		return nil, mberrors.New(mberrors.NotFound, "fake.lookup_user", "no user %q", username)
	}
	copied := *record
	return &copied, nil
}

// FakeBucketLocator is an in-memory broker.BucketLocator that counts lookups
// per bucket.
type FakeBucketLocator struct {
	mu      sync.Mutex
	Regions map[string]string
	Err     error
	calls   map[string]int
}

// NewFakeBucketLocator creates a locator with no buckets. Unknown buckets
// resolve to "".
func NewFakeBucketLocator() *FakeBucketLocator {
	return &FakeBucketLocator{Regions: make(map[string]string), calls: make(map[string]int)}
}

// BucketRegion implements broker.BucketLocator.
func (f *FakeBucketLocator) BucketRegion(ctx context.Context, bucket string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[bucket]++
	if f.Err != nil {
		return "", f.Err
	}
	return f.Regions[bucket], nil
}

// Calls returns the lookups made for bucket.
func (f *FakeBucketLocator) Calls(bucket string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[bucket]
}

// TotalCalls returns the lookups made for all buckets.
func (f *FakeBucketLocator) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// FakeRoleAssumer is an in-memory broker.RoleAssumer.
type FakeRoleAssumer struct {
	mu         sync.Mutex
	Credential broker.TemporaryCredential
	Err        error
	Sessions   []string
}

// NewFakeRoleAssumer hands out the given keys.
func NewFakeRoleAssumer(accessKeyID, secretAccessKey, sessionToken string) *FakeRoleAssumer {
	return &FakeRoleAssumer{Credential: broker.TemporaryCredential{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		SessionToken:    sessionToken,
	}}
}

// AssumeRole implements broker.RoleAssumer.
func (f *FakeRoleAssumer) AssumeRole(ctx context.Context, role, sessionName string) (broker.TemporaryCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sessions = append(f.Sessions, role+"|"+sessionName)
	if f.Err != nil {
		return broker.TemporaryCredential{}, f.Err
	}
	return f.Credential, nil
}

// Calls returns the number of AssumeRole calls.
func (f *FakeRoleAssumer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sessions)
}
