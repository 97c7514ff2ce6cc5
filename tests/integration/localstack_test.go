package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/mailbroker/internal/broker"
	"github.com/systmms/mailbroker/internal/config"
	mberrors "github.com/systmms/mailbroker/internal/errors"
	"github.com/systmms/mailbroker/internal/password"
	"github.com/systmms/mailbroker/internal/providers"
	"github.com/systmms/mailbroker/internal/rotation"
	"github.com/systmms/mailbroker/tests/testutil"
)

const accountRole = "arn:aws:iam::000000000000:role/mail-reader"

func TestBrokerAgainstLocalStack(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := testutil.StartDockerEnv(t, []string{"localstack"})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	table := fmt.Sprintf("users-%d", time.Now().UnixNano())
	testutil.SetupTestEnv(t, map[string]string{
		"TABLE_NAME":            table,
		"DEFAULT_BUCKET_REGION": "us-east-1",
		"REGION_CACHE_SIZE":     "16",
	})
	cfg := &config.Config{}
	require.NoError(t, cfg.Load())
	require.NoError(t, cfg.RequireTable())

	hash, err := password.HashSHA512("pw123")
	require.NoError(t, err)

	require.NoError(t, env.CreateUserTable(ctx, table))
	require.NoError(t, env.CreateBucket(ctx, "mail-eu", "eu-central-1"))
	require.NoError(t, env.PutUser(ctx, table, "alice", hash, "mail-eu", "alice/", accountRole))

	clients := env.LocalStackClients()
	cache, err := broker.NewRegionCache(cfg.Settings.RegionCacheSize)
	require.NoError(t, err)

	b := broker.New(
		providers.NewDynamoDBDirectory(clients.DynamoDB, cfg.Settings.TableName),
		password.NewVerifier(),
		broker.NewLocationResolver(providers.NewS3BucketLocator(clients.S3), cache,
			broker.WithDefaultRegion(cfg.Settings.DefaultRegion)),
		providers.NewSTSRoleAssumer(clients.STS),
	)

	t.Run("valid credentials", func(t *testing.T) {
		bundle, err := b.Authenticate(ctx, "alice", "pw123")
		require.NoError(t, err)

		assert.Equal(t, "mail-eu", bundle.Bucket)
		assert.Equal(t, "alice/", bundle.Prefix)
		assert.Equal(t, "eu-central-1", bundle.Region)
		assert.Equal(t, accountRole, bundle.Role)
		assert.NotEmpty(t, bundle.AccessKeyID)
		assert.NotEmpty(t, bundle.SecretAccessKey)
		assert.NotEmpty(t, bundle.SessionToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := b.Authenticate(ctx, "alice", "nope")
		assert.True(t, mberrors.Is(err, mberrors.Unauthorized))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := b.Authenticate(ctx, "mallory", "pw123")
		assert.True(t, mberrors.Is(err, mberrors.Unauthorized))
	})
}

// rotationEnabledStore reports rotation as enabled. LocalStack only sets the
// flag once a rotation function is attached.
type rotationEnabledStore struct {
	*providers.SecretsManagerStore
}

func (s rotationEnabledStore) DescribeSecret(ctx context.Context, secretID string) (*rotation.SecretMetadata, error) {
	md, err := s.SecretsManagerStore.DescribeSecret(ctx, secretID)
	if err != nil {
		return nil, err
	}
	md.RotationEnabled = true
	return md, nil
}

func TestSecretsManagerStoreAgainstLocalStack(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := testutil.StartDockerEnv(t, []string{"localstack"})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store := providers.NewSecretsManagerStore(env.LocalStackClients().SecretsManager)

	arn, err := env.CreateSecret(ctx, "mail/keypair", `{"private_key":"","public_key":""}`)
	require.NoError(t, err)

	md, err := store.DescribeSecret(ctx, arn)
	require.NoError(t, err)
	original, ok := md.VersionWithStage(rotation.StageCurrent)
	require.True(t, ok)

	keypair, err := rotation.RSAGenerator{}.Generate(ctx)
	require.NoError(t, err)
	defer keypair.PrivateKey.Destroy()

	var doc string
	require.NoError(t, keypair.PrivateKey.Use(func(private []byte) error {
		b, err := json.Marshal(map[string]string{
			"private_key": string(private),
			"public_key":  keypair.PublicKeyPEM,
		})
		doc = string(b)
		return err
	}))

	token := uuid.NewString()
	require.NoError(t, store.PutSecretValue(ctx, arn, token, doc, []string{rotation.StagePending}))

	pending, err := store.GetSecretValue(ctx, arn, "", rotation.StagePending)
	require.NoError(t, err)
	_, err = rotation.ParseKeypairDocument(pending)
	require.NoError(t, err)

	coordinator := rotation.NewCoordinator(rotationEnabledStore{store})
	for _, step := range []rotation.Step{rotation.StepCreateSecret, rotation.StepSetSecret, rotation.StepTestSecret, rotation.StepFinishSecret} {
		require.NoError(t, coordinator.Handle(ctx, rotation.Event{SecretID: arn, ClientRequestToken: token, Step: step}), step)
	}

	md, err = store.DescribeSecret(ctx, arn)
	require.NoError(t, err)
	current, ok := md.VersionWithStage(rotation.StageCurrent)
	require.True(t, ok)
	assert.Equal(t, token, current)
	assert.False(t, md.HasStage(original, rotation.StageCurrent))

	value, err := store.GetSecretValue(ctx, arn, token, "")
	require.NoError(t, err)
	assert.Equal(t, doc, value)

	// finishSecret again must not move anything
	require.NoError(t, coordinator.Handle(ctx, rotation.Event{SecretID: arn, ClientRequestToken: token, Step: rotation.StepFinishSecret}))

	_, err = store.DescribeSecret(ctx, "mail/missing")
	assert.True(t, mberrors.Is(err, mberrors.NotFound))
}
