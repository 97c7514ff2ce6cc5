package fakes

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
)

// FakeSecretsManagerClient is an in-memory Secrets Manager with versions and
// staging labels.
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret ids to their data
	Secrets map[string]*SecretData
	// Errors maps secret ids to errors to return from every operation
	Errors map[string]error
	// Calls counts invocations per operation name
	Calls map[string]int

	DescribeSecretFunc           func(ctx context.Context, params *secretsmanager.DescribeSecretInput) (*secretsmanager.DescribeSecretOutput, error)
	GetSecretValueFunc           func(ctx context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValueFunc           func(ctx context.Context, params *secretsmanager.PutSecretValueInput) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecretVersionStageFunc func(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput) (*secretsmanager.UpdateSecretVersionStageOutput, error)
	RotateSecretFunc             func(ctx context.Context, params *secretsmanager.RotateSecretInput) (*secretsmanager.RotateSecretOutput, error)
}

// SecretData holds one secret's versions.
type SecretData struct {
	RotationEnabled bool
	Versions        map[string]*SecretVersion
}

// SecretVersion is one stored version. A version created by RotateSecret has
// no value until PutSecretValue is called with its id.
type SecretVersion struct {
	Value  *string
	Stages []string
}

// NewFakeSecretsManagerClient creates an empty client.
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]*SecretData),
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// AddSecret registers a secret with no versions.
func (f *FakeSecretsManagerClient) AddSecret(id string, rotationEnabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[id] = &SecretData{RotationEnabled: rotationEnabled, Versions: make(map[string]*SecretVersion)}
}

// AddVersion adds a version with the given value and stages. An empty value
// leaves the version without a secret string.
func (f *FakeSecretsManagerClient) AddVersion(id, versionID, value string, stages ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := &SecretVersion{Stages: slices.Clone(stages)}
	if value != "" {
		v.Value = aws.String(value)
	}
	f.Secrets[id].Versions[versionID] = v
}

// AddError configures an error for every operation on a secret.
func (f *FakeSecretsManagerClient) AddError(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[id] = err
}

// CallCount returns how many times operation was invoked.
func (f *FakeSecretsManagerClient) CallCount(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[operation]
}

// Stages returns a copy of the version to stages map of a secret.
func (f *FakeSecretsManagerClient) Stages(id string) map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versionStages(f.Secrets[id])
}

// Value returns the stored value of a version, or "" when it has none.
func (f *FakeSecretsManagerClient) Value(id, versionID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Secrets[id].Versions[versionID]
	if !ok {
		return ""
	}
	return aws.ToString(v.Value)
}

func (f *FakeSecretsManagerClient) versionStages(data *SecretData) map[string][]string {
	out := make(map[string][]string, len(data.Versions))
	for id, v := range data.Versions {
		out[id] = slices.Clone(v.Stages)
	}
	return out
}

func (f *FakeSecretsManagerClient) lookup(operation string, secretID *string) (*SecretData, error) {
	f.Calls[operation]++
	id := aws.ToString(secretID)
	if err, exists := f.Errors[id]; exists {
		return nil, err
	}
	data, exists := f.Secrets[id]
	if !exists {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", id)),
		}
	}
	return data, nil
}

func arn(id string) *string {
	return aws.String(fmt.Sprintf("arn:aws:secretsmanager:us-east-1:123456789012:secret:%s", id))
}

// DescribeSecret mocks the DescribeSecret operation
func (f *FakeSecretsManagerClient) DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	if f.DescribeSecretFunc != nil {
		return f.DescribeSecretFunc(ctx, params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("DescribeSecret", params.SecretId)
	if err != nil {
		return nil, err
	}
	return &secretsmanager.DescribeSecretOutput{
		ARN:                arn(aws.ToString(params.SecretId)),
		Name:               params.SecretId,
		RotationEnabled:    aws.Bool(data.RotationEnabled),
		VersionIdsToStages: f.versionStages(data),
	}, nil
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.GetSecretValueFunc != nil {
		return f.GetSecretValueFunc(ctx, params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("GetSecretValue", params.SecretId)
	if err != nil {
		return nil, err
	}

	stage := aws.ToString(params.VersionStage)
	versionID := aws.ToString(params.VersionId)
	if versionID == "" && stage == "" {
		stage = "AWSCURRENT"
	}
	if versionID == "" {
		for id, v := range data.Versions {
			if slices.Contains(v.Stages, stage) {
				versionID = id
				break
			}
		}
	}

	v, ok := data.Versions[versionID]
	if !ok || v.Value == nil || (stage != "" && !slices.Contains(v.Stages, stage)) {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String("Secrets Manager can't find the specified secret value for VersionId: " + versionID),
		}
	}
	return &secretsmanager.GetSecretValueOutput{
		ARN:           arn(aws.ToString(params.SecretId)),
		Name:          params.SecretId,
		SecretString:  v.Value,
		VersionId:     aws.String(versionID),
		VersionStages: slices.Clone(v.Stages),
	}, nil
}

// PutSecretValue mocks the PutSecretValue operation. Stages named in the
// request are moved off any other version.
func (f *FakeSecretsManagerClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	if f.PutSecretValueFunc != nil {
		return f.PutSecretValueFunc(ctx, params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("PutSecretValue", params.SecretId)
	if err != nil {
		return nil, err
	}

	versionID := aws.ToString(params.ClientRequestToken)
	if existing, ok := data.Versions[versionID]; ok && existing.Value != nil {
		if aws.ToString(existing.Value) != aws.ToString(params.SecretString) {
			return nil, &types.ResourceExistsException{Message: aws.String("version already exists with different value")}
		}
	}

	stages := params.VersionStages
	if len(stages) == 0 {
		stages = []string{"AWSCURRENT"}
	}
	for id, v := range data.Versions {
		if id == versionID {
			continue
		}
		v.Stages = slices.DeleteFunc(v.Stages, func(s string) bool { return slices.Contains(stages, s) })
	}

	v, ok := data.Versions[versionID]
	if !ok {
		v = &SecretVersion{}
		data.Versions[versionID] = v
	}
	v.Value = aws.String(aws.ToString(params.SecretString))
	for _, s := range stages {
		if !slices.Contains(v.Stages, s) {
			v.Stages = append(v.Stages, s)
		}
	}

	return &secretsmanager.PutSecretValueOutput{
		ARN:           arn(aws.ToString(params.SecretId)),
		Name:          params.SecretId,
		VersionId:     aws.String(versionID),
		VersionStages: slices.Clone(v.Stages),
	}, nil
}

// UpdateSecretVersionStage mocks the UpdateSecretVersionStage operation
func (f *FakeSecretsManagerClient) UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error) {
	if f.UpdateSecretVersionStageFunc != nil {
		return f.UpdateSecretVersionStageFunc(ctx, params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("UpdateSecretVersionStage", params.SecretId)
	if err != nil {
		return nil, err
	}

	stage := aws.ToString(params.VersionStage)
	moveTo := aws.ToString(params.MoveToVersionId)
	removeFrom := aws.ToString(params.RemoveFromVersionId)

	if removeFrom != "" {
		v, ok := data.Versions[removeFrom]
		if !ok || !slices.Contains(v.Stages, stage) {
			return nil, &types.InvalidParameterException{
				Message: aws.String(fmt.Sprintf("stage %s is not attached to version %s", stage, removeFrom)),
			}
		}
		v.Stages = slices.DeleteFunc(v.Stages, func(s string) bool { return s == stage })
	}

	if moveTo != "" {
		target, ok := data.Versions[moveTo]
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: aws.String("no such version: " + moveTo)}
		}
		for id, v := range data.Versions {
			if id != moveTo && slices.Contains(v.Stages, stage) {
				return nil, &types.InvalidParameterException{
					Message: aws.String(fmt.Sprintf("stage %s is attached to version %s, which was not specified in RemoveFromVersionId", stage, id)),
				}
			}
		}
		if !slices.Contains(target.Stages, stage) {
			target.Stages = append(target.Stages, stage)
		}
	}

	return &secretsmanager.UpdateSecretVersionStageOutput{
		ARN:  arn(aws.ToString(params.SecretId)),
		Name: params.SecretId,
	}, nil
}

// RotateSecret mocks the RotateSecret operation. It only opens a pending
// version; nothing runs the rotation steps.
func (f *FakeSecretsManagerClient) RotateSecret(ctx context.Context, params *secretsmanager.RotateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RotateSecretOutput, error) {
	if f.RotateSecretFunc != nil {
		return f.RotateSecretFunc(ctx, params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("RotateSecret", params.SecretId)
	if err != nil {
		return nil, err
	}
	if !data.RotationEnabled && params.RotationLambdaARN == nil {
		return nil, &types.InvalidRequestException{Message: aws.String("rotation is not configured for this secret")}
	}

	versionID := aws.ToString(params.ClientRequestToken)
	for _, v := range data.Versions {
		v.Stages = slices.DeleteFunc(v.Stages, func(s string) bool { return s == "AWSPENDING" })
	}
	data.Versions[versionID] = &SecretVersion{Stages: []string{"AWSPENDING"}}

	return &secretsmanager.RotateSecretOutput{
		ARN:       arn(aws.ToString(params.SecretId)),
		Name:      params.SecretId,
		VersionId: aws.String(versionID),
	}, nil
}

// FakeDynamoDBClient serves GetItem from a map keyed by the "username"
// attribute.
type FakeDynamoDBClient struct {
	mu sync.Mutex

	// Items maps username to the stored item
	Items map[string]map[string]dynamotypes.AttributeValue
	// Err is returned from every call when set
	Err error

	GetItemFunc func(ctx context.Context, params *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)

	GetItemCalls int
	LastInput    *dynamodb.GetItemInput
}

// NewFakeDynamoDBClient creates an empty table.
func NewFakeDynamoDBClient() *FakeDynamoDBClient {
	return &FakeDynamoDBClient{Items: make(map[string]map[string]dynamotypes.AttributeValue)}
}

// AddUser stores a user item with the directory's attribute names.
func (f *FakeDynamoDBClient) AddUser(username, passwordHash, bucket, prefix, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Items[username] = map[string]dynamotypes.AttributeValue{
		"username":   &dynamotypes.AttributeValueMemberS{Value: username},
		"password":   &dynamotypes.AttributeValueMemberS{Value: passwordHash},
		"bucket":     &dynamotypes.AttributeValueMemberS{Value: bucket},
		"bucket_dir": &dynamotypes.AttributeValueMemberS{Value: prefix},
		"role":       &dynamotypes.AttributeValueMemberS{Value: role},
	}
}

// GetItem mocks the GetItem operation
func (f *FakeDynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	f.GetItemCalls++
	f.LastInput = params
	f.mu.Unlock()

	if f.GetItemFunc != nil {
		return f.GetItemFunc(ctx, params)
	}
	if f.Err != nil {
		return nil, f.Err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := params.Key["username"].(*dynamotypes.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("ValidationException: the provided key element does not match the schema")
	}
	if key.Value == "" {
		return nil, &smithy.GenericAPIError{
			Code:    "ValidationException",
			Message: "One or more parameter values are not valid. The AttributeValue for a key attribute cannot contain an empty string value. Key: username",
		}
	}
	item, ok := f.Items[key.Value]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

// FakeS3Client answers GetBucketLocation from a map of bucket constraints.
type FakeS3Client struct {
	mu sync.Mutex

	// Locations maps bucket name to its location constraint; "" is us-east-1
	Locations map[string]string
	Err       error

	GetBucketLocationFunc func(ctx context.Context, params *s3.GetBucketLocationInput) (*s3.GetBucketLocationOutput, error)

	calls map[string]int
}

// NewFakeS3Client creates a client with no buckets.
func NewFakeS3Client() *FakeS3Client {
	return &FakeS3Client{Locations: make(map[string]string), calls: make(map[string]int)}
}

// GetBucketLocation mocks the GetBucketLocation operation
func (f *FakeS3Client) GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	f.mu.Lock()
	f.calls[aws.ToString(params.Bucket)]++
	f.mu.Unlock()

	if f.GetBucketLocationFunc != nil {
		return f.GetBucketLocationFunc(ctx, params)
	}
	if f.Err != nil {
		return nil, f.Err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	constraint, ok := f.Locations[aws.ToString(params.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	return &s3.GetBucketLocationOutput{LocationConstraint: s3types.BucketLocationConstraint(constraint)}, nil
}

// Calls returns how many lookups were made for bucket.
func (f *FakeS3Client) Calls(bucket string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[bucket]
}

// FakeSTSClient returns fixed credentials for AssumeRole.
type FakeSTSClient struct {
	mu sync.Mutex

	Credentials *ststypes.Credentials
	Err         error

	AssumeRoleFunc func(ctx context.Context, params *sts.AssumeRoleInput) (*sts.AssumeRoleOutput, error)

	AssumeRoleCalls []*sts.AssumeRoleInput
}

// NewFakeSTSClient creates a client that hands out the given key pair.
func NewFakeSTSClient(accessKeyID, secretAccessKey, sessionToken string) *FakeSTSClient {
	return &FakeSTSClient{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String(accessKeyID),
			SecretAccessKey: aws.String(secretAccessKey),
			SessionToken:    aws.String(sessionToken),
		},
	}
}

// AssumeRole mocks the AssumeRole operation
func (f *FakeSTSClient) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.mu.Lock()
	f.AssumeRoleCalls = append(f.AssumeRoleCalls, params)
	f.mu.Unlock()

	if f.AssumeRoleFunc != nil {
		return f.AssumeRoleFunc(ctx, params)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return &sts.AssumeRoleOutput{
		AssumedRoleUser: &ststypes.AssumedRoleUser{
			Arn:           aws.String(aws.ToString(params.RoleArn) + "/" + aws.ToString(params.RoleSessionName)),
			AssumedRoleId: aws.String("AROAEXAMPLE:" + aws.ToString(params.RoleSessionName)),
		},
		Credentials: f.Credentials,
	}, nil
}
