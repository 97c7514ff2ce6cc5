package providers

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	mberrors "github.com/systmms/mailbroker/internal/errors"
	"github.com/systmms/mailbroker/internal/rotation"
)

// SecretsManagerClientAPI defines the interface for AWS Secrets Manager operations
// This allows for mocking in tests
type SecretsManagerClientAPI interface {
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
	RotateSecret(ctx context.Context, params *secretsmanager.RotateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RotateSecretOutput, error)
}

// SecretsManagerStore implements rotation.SecretStore over AWS Secrets Manager.
type SecretsManagerStore struct {
	client SecretsManagerClientAPI
}

// NewSecretsManagerStore creates a store.
func NewSecretsManagerStore(client SecretsManagerClientAPI) *SecretsManagerStore {
	return &SecretsManagerStore{client: client}
}

// DescribeSecret returns the rotation flag and version stages of secretID.
func (s *SecretsManagerStore) DescribeSecret(ctx context.Context, secretID string) (*rotation.SecretMetadata, error) {
	out, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(secretID)})
	if err != nil {
		return nil, classify("secretsmanager.describe_secret", err, "describe secret %s", secretID)
	}
	stages := out.VersionIdsToStages
	if stages == nil {
		stages = map[string][]string{}
	}
	return &rotation.SecretMetadata{
		RotationEnabled: aws.ToBool(out.RotationEnabled),
		VersionStages:   stages,
	}, nil
}

// GetSecretValue returns the string value of the version matching versionID
// and stage. Either may be empty.
func (s *SecretsManagerStore) GetSecretValue(ctx context.Context, secretID, versionID, stage string) (string, error) {
	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}
	if stage != "" {
		input.VersionStage = aws.String(stage)
	}

	out, err := s.client.GetSecretValue(ctx, input)
	if err != nil {
		return "", classify("secretsmanager.get_secret_value", err, "get %s version %s stage %s", secretID, versionID, stage)
	}
	return aws.ToString(out.SecretString), nil
}

// PutSecretValue stores value as version token with the given stages.
func (s *SecretsManagerStore) PutSecretValue(ctx context.Context, secretID, token, value string, stages []string) error {
	_, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(secretID),
		ClientRequestToken: aws.String(token),
		SecretString:       aws.String(value),
		VersionStages:      stages,
	})
	if err != nil {
		return classify("secretsmanager.put_secret_value", err, "put %s version %s", secretID, token)
	}
	return nil
}

// UpdateVersionStage moves stage in a single call.
func (s *SecretsManagerStore) UpdateVersionStage(ctx context.Context, secretID, stage, moveToVersion, removeFromVersion string) error {
	input := &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:        aws.String(secretID),
		VersionStage:    aws.String(stage),
		MoveToVersionId: aws.String(moveToVersion),
	}
	if removeFromVersion != "" {
		input.RemoveFromVersionId = aws.String(removeFromVersion)
	}

	if _, err := s.client.UpdateSecretVersionStage(ctx, input); err != nil {
		return classify("secretsmanager.update_version_stage", err, "move %s of %s to %s", stage, secretID, moveToVersion)
	}
	return nil
}

// StartRotation asks Secrets Manager to begin a rotation with token as the
// new version id and returns the version id it reports.
func (s *SecretsManagerStore) StartRotation(ctx context.Context, secretID, token string) (string, error) {
	out, err := s.client.RotateSecret(ctx, &secretsmanager.RotateSecretInput{
		SecretId:           aws.String(secretID),
		ClientRequestToken: aws.String(token),
	})
	if err != nil {
		return "", classify("secretsmanager.rotate_secret", err, "start rotation of %s", secretID)
	}
	return aws.ToString(out.VersionId), nil
}

func classify(op string, err error, format string, args ...interface{}) error {
	switch {
	case isNotFoundError(err):
		return mberrors.Wrap(mberrors.NotFound, op, err, format, args...)
	case isInvalidRequestError(err):
		return mberrors.Wrap(mberrors.PreconditionFailed, op, err, format, args...)
	default:
		return mberrors.Wrap(mberrors.UpstreamFailure, op, err, format, args...)
	}
}

// Error checking utilities

func isNotFoundError(err error) bool {
	var resourceNotFound *types.ResourceNotFoundException
	return errors.As(err, &resourceNotFound)
}

func isInvalidRequestError(err error) bool {
	var invalidRequest *types.InvalidRequestException
	return errors.As(err, &invalidRequest)
}
