package rotation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mberrors "github.com/systmms/mailbroker/internal/errors"
	"github.com/systmms/mailbroker/internal/logging"
	"github.com/systmms/mailbroker/internal/metrics"
	"github.com/systmms/mailbroker/internal/rotation"
	"github.com/systmms/mailbroker/tests/fakes"
)

const (
	secretID = "arn:aws:secretsmanager:us-east-1:123456789012:secret:tls-key"
	oldToken = "v1"
	newToken = "v2"
)

func newPendingStore() *fakes.FakeSecretStore {
	store := fakes.NewFakeSecretStore()
	store.AddVersion(oldToken, `{"private_key":"old","public_key":"old"}`, rotation.StageCurrent)
	store.AddVersion(newToken, "", rotation.StagePending)
	return store
}

func event(step rotation.Step) rotation.Event {
	return rotation.Event{SecretID: secretID, ClientRequestToken: newToken, Step: step}
}

func TestCreateSecretStoresPendingKeypair(t *testing.T) {
	t.Parallel()

	store := newPendingStore()
	keys := &fakes.FakeKeyGenerator{}
	c := rotation.NewCoordinator(store, rotation.WithKeyGenerator(keys))

	require.NoError(t, c.Handle(context.Background(), event(rotation.StepCreateSecret)))

	assert.Equal(t, 1, keys.Calls())
	assert.Equal(t, 1, store.PutCalls)
	assert.Equal(t, []string{rotation.StagePending}, store.StagesOf(newToken))
	assert.Equal(t, []string{rotation.StageCurrent}, store.StagesOf(oldToken), "current version must not move")

	key, err := rotation.ParseKeypairDocument(store.ValueOf(newToken))
	require.NoError(t, err)
	assert.Equal(t, 1024, key.N.BitLen())
}

func TestCreateSecretIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newPendingStore()
	keys := &fakes.FakeKeyGenerator{}
	c := rotation.NewCoordinator(store, rotation.WithKeyGenerator(keys))

	require.NoError(t, c.Handle(context.Background(), event(rotation.StepCreateSecret)))
	first := store.ValueOf(newToken)

	require.NoError(t, c.Handle(context.Background(), event(rotation.StepCreateSecret)))

	assert.Equal(t, 1, keys.Calls(), "replay must not generate a second keypair")
	assert.Equal(t, 1, store.PutCalls)
	assert.Equal(t, first, store.ValueOf(newToken))
}

func TestRotationDisabledMutatesNothing(t *testing.T) {
	t.Parallel()

	for _, step := range []rotation.Step{
		rotation.StepCreateSecret, rotation.StepSetSecret, rotation.StepTestSecret, rotation.StepFinishSecret,
	} {
		step := step
		t.Run(string(step), func(t *testing.T) {
			t.Parallel()

			store := newPendingStore()
			store.RotationEnabled = false
			keys := &fakes.FakeKeyGenerator{}
			c := rotation.NewCoordinator(store, rotation.WithKeyGenerator(keys))

			err := c.Handle(context.Background(), event(step))
			require.Error(t, err)
			assert.Equal(t, mberrors.PreconditionFailed, mberrors.KindOf(err))
			assert.Zero(t, store.Mutations())
			assert.Zero(t, keys.Calls())
		})
	}
}

func TestPreconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(*fakes.FakeSecretStore)
		event    rotation.Event
		wantErr  bool
		wantKind mberrors.Kind
	}{
		{
			name:     "unknown token",
			event:    rotation.Event{SecretID: secretID, ClientRequestToken: "v9", Step: rotation.StepCreateSecret},
			wantErr:  true,
			wantKind: mberrors.NotFound,
		},
		{
			name:  "token already current",
			event: rotation.Event{SecretID: secretID, ClientRequestToken: oldToken, Step: rotation.StepCreateSecret},
		},
		{
			name: "token not pending",
			setup: func(s *fakes.FakeSecretStore) {
				s.AddVersion("v3", "")
			},
			event:    rotation.Event{SecretID: secretID, ClientRequestToken: "v3", Step: rotation.StepFinishSecret},
			wantErr:  true,
			wantKind: mberrors.PreconditionFailed,
		},
		{
			name:     "invalid step",
			event:    rotation.Event{SecretID: secretID, ClientRequestToken: newToken, Step: "rollbackSecret"},
			wantErr:  true,
			wantKind: mberrors.PreconditionFailed,
		},
		{
			name:     "missing secret id",
			event:    rotation.Event{ClientRequestToken: newToken, Step: rotation.StepCreateSecret},
			wantErr:  true,
			wantKind: mberrors.PreconditionFailed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newPendingStore()
			if tt.setup != nil {
				tt.setup(store)
			}
			keys := &fakes.FakeKeyGenerator{}
			c := rotation.NewCoordinator(store, rotation.WithKeyGenerator(keys))

			err := c.Handle(context.Background(), tt.event)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, mberrors.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			assert.Zero(t, store.Mutations())
			assert.Zero(t, keys.Calls())
		})
	}
}

func TestMalformedEventNeverReachesStore(t *testing.T) {
	t.Parallel()

	store := newPendingStore()
	c := rotation.NewCoordinator(store)

	err := c.Handle(context.Background(), rotation.Event{SecretID: secretID, Step: rotation.StepFinishSecret})
	require.Error(t, err)
	assert.Zero(t, store.DescribeCalls)
}

func TestSetAndTestAreNoOps(t *testing.T) {
	t.Parallel()

	store := newPendingStore()
	c := rotation.NewCoordinator(store, rotation.WithKeyGenerator(&fakes.FakeKeyGenerator{}))

	require.NoError(t, c.Handle(context.Background(), event(rotation.StepSetSecret)))
	require.NoError(t, c.Handle(context.Background(), event(rotation.StepTestSecret)))

	assert.Zero(t, store.Mutations())
	assert.Zero(t, store.GetCalls)
}

func TestFinishSecretPromotesPending(t *testing.T) {
	t.Parallel()

	store := newPendingStore()
	c := rotation.NewCoordinator(store, rotation.WithKeyGenerator(&fakes.FakeKeyGenerator{}))
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, event(rotation.StepCreateSecret)))
	require.NoError(t, c.Handle(ctx, event(rotation.StepFinishSecret)))

	assert.Contains(t, store.StagesOf(newToken), rotation.StageCurrent)
	assert.NotContains(t, store.StagesOf(oldToken), rotation.StageCurrent)
	assert.Equal(t, 1, store.UpdateCalls)

	// replay is a no-op
	require.NoError(t, c.Handle(ctx, event(rotation.StepFinishSecret)))
	assert.Equal(t, 1, store.UpdateCalls)
	assert.Contains(t, store.StagesOf(newToken), rotation.StageCurrent)
}

func TestFinishSecretWithoutPreviousCurrent(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeSecretStore()
	store.AddVersion(newToken, "value", rotation.StagePending)
	c := rotation.NewCoordinator(store)

	require.NoError(t, c.Handle(context.Background(), event(rotation.StepFinishSecret)))
	assert.Contains(t, store.StagesOf(newToken), rotation.StageCurrent)
}

func TestStoreFailuresAreClassified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(*fakes.FakeSecretStore, *fakes.FakeKeyGenerator)
		step     rotation.Step
		wantKind mberrors.Kind
	}{
		{
			name:     "describe fails",
			setup:    func(s *fakes.FakeSecretStore, _ *fakes.FakeKeyGenerator) { s.DescribeErr = errors.New("connection reset") },
			step:     rotation.StepCreateSecret,
			wantKind: mberrors.UpstreamFailure,
		},
		{
			name:     "get pending fails",
			setup:    func(s *fakes.FakeSecretStore, _ *fakes.FakeKeyGenerator) { s.GetErr = errors.New("throttled") },
			step:     rotation.StepCreateSecret,
			wantKind: mberrors.UpstreamFailure,
		},
		{
			name:     "put fails",
			setup:    func(s *fakes.FakeSecretStore, _ *fakes.FakeKeyGenerator) { s.PutErr = errors.New("access denied") },
			step:     rotation.StepCreateSecret,
			wantKind: mberrors.UpstreamFailure,
		},
		{
			name:     "update fails",
			setup:    func(s *fakes.FakeSecretStore, _ *fakes.FakeKeyGenerator) { s.UpdateErr = errors.New("access denied") },
			step:     rotation.StepFinishSecret,
			wantKind: mberrors.UpstreamFailure,
		},
		{
			name:     "key generation fails",
			setup:    func(_ *fakes.FakeSecretStore, k *fakes.FakeKeyGenerator) { k.Err = errors.New("entropy exhausted") },
			step:     rotation.StepCreateSecret,
			wantKind: mberrors.Internal,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newPendingStore()
			keys := &fakes.FakeKeyGenerator{}
			tt.setup(store, keys)
			c := rotation.NewCoordinator(store, rotation.WithKeyGenerator(keys))

			err := c.Handle(context.Background(), event(tt.step))
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, mberrors.KindOf(err))
		})
	}
}

func TestFailureIsLoggedWithEvent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	store := newPendingStore()
	store.RotationEnabled = false
	c := rotation.NewCoordinator(store, rotation.WithLogger(logging.New(&buf, false)))

	require.Error(t, c.Handle(context.Background(), event(rotation.StepCreateSecret)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, secretID, line["secret_id"])
	assert.Equal(t, newToken, line["token"])
	assert.Equal(t, "createSecret", line["step"])

	ev, ok := line["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, secretID, ev["SecretId"])
}

func TestPublicKeyIsLoggedAndPrivateKeyIsNot(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	store := newPendingStore()
	c := rotation.NewCoordinator(store,
		rotation.WithKeyGenerator(&fakes.FakeKeyGenerator{}),
		rotation.WithLogger(logging.New(&buf, false)),
	)

	require.NoError(t, c.Handle(context.Background(), event(rotation.StepCreateSecret)))

	out := buf.String()
	assert.Contains(t, out, "RSA PUBLIC KEY")
	assert.NotContains(t, out, "RSA PRIVATE KEY")
}

func TestRotationMetrics(t *testing.T) {
	t.Parallel()

	rec := metrics.NewRecorder()
	store := newPendingStore()
	c := rotation.NewCoordinator(store,
		rotation.WithKeyGenerator(&fakes.FakeKeyGenerator{}),
		rotation.WithMetrics(rec),
	)

	require.NoError(t, c.Handle(context.Background(), event(rotation.StepCreateSecret)))

	families, err := rec.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "mailbroker_rotation_steps_total" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestCreateSecretGenerates2048BitKeypairByDefault(t *testing.T) {
	t.Parallel()

	store := newPendingStore()
	c := rotation.NewCoordinator(store)

	require.NoError(t, c.Handle(context.Background(), event(rotation.StepCreateSecret)))

	key, err := rotation.ParseKeypairDocument(store.ValueOf(newToken))
	require.NoError(t, err)
	assert.Equal(t, rotation.KeyBits, key.N.BitLen())
}
