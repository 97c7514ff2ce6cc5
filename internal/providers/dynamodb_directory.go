package providers

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/systmms/mailbroker/internal/broker"
	mberrors "github.com/systmms/mailbroker/internal/errors"
)

// DynamoDBClientAPI is the subset of the DynamoDB client the directory uses.
type DynamoDBClientAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// userItem is the stored shape of a directory record, keyed by username.
type userItem struct {
	Username  string `dynamodbav:"username"`
	Password  string `dynamodbav:"password"`
	Bucket    string `dynamodbav:"bucket"`
	BucketDir string `dynamodbav:"bucket_dir"`
	Role      string `dynamodbav:"role"`
}

var requiredAttributes = []string{"password", "bucket", "bucket_dir", "role"}

// DynamoDBDirectory implements broker.CredentialStore over a DynamoDB table.
type DynamoDBDirectory struct {
	client DynamoDBClientAPI
	table  string
}

// NewDynamoDBDirectory creates a directory reading from table.
func NewDynamoDBDirectory(client DynamoDBClientAPI, table string) *DynamoDBDirectory {
	return &DynamoDBDirectory{client: client, table: table}
}

// LookupUser fetches the record for username. A missing item is NotFound; an
// item missing any attribute is Internal.
func (d *DynamoDBDirectory) LookupUser(ctx context.Context, username string) (*broker.UserRecord, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"username": username})
	if err != nil {
		return nil, mberrors.Wrap(mberrors.Internal, "dynamodb.marshal_key", err, "encode key for %q", username)
	}

	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       key,
	})
	if err != nil {
		return nil, mberrors.Wrap(mberrors.UpstreamFailure, "dynamodb.get_item", err, "look up user %q", username)
	}
	if len(out.Item) == 0 {
		return nil, mberrors.New(mberrors.NotFound, "dynamodb.get_item", "no user %q in %s", username, d.table)
	}

	for _, attr := range requiredAttributes {
		if _, ok := out.Item[attr]; !ok {
			return nil, mberrors.New(mberrors.Internal, "dynamodb.decode_user", "record for %q has no %s attribute", username, attr)
		}
	}

	var item userItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, mberrors.Wrap(mberrors.Internal, "dynamodb.decode_user", err, "decode record for %q", username)
	}

	return &broker.UserRecord{
		Username:     username,
		PasswordHash: item.Password,
		Bucket:       item.Bucket,
		Prefix:       item.BucketDir,
		Role:         item.Role,
	}, nil
}
