package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/session"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the store needs.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type credentialItem struct {
	Username  string `dynamodbav:"username"`
	Token     string `dynamodbav:"token"`
	UserInfo  string `dynamodbav:"user_info"`
	UpdatedAt int64  `dynamodbav:"updated_at"`
}

// DynamoStore keeps credentials in a table keyed by username (string hash key).
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

// NewDynamoStoreFromConfig loads AWS credentials the default way and builds the store.
func NewDynamoStoreFromConfig(ctx context.Context, cfg *config.StoreConfig, awsCfg *config.AWSConfig) (*DynamoStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(awsCfg.Region),
	}
	if awsCfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(awsCfg.Profile))
	}

	loaded, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewDynamoStore(dynamodb.NewFromConfig(loaded), cfg.DynamoTable), nil
}

func (s *DynamoStore) keyOf(username string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"username": &types.AttributeValueMemberS{Value: username},
	}
}

func (s *DynamoStore) Put(ctx context.Context, username string, token session.Token, profile json.RawMessage) error {
	item, err := attributevalue.MarshalMap(credentialItem{
		Username:  username,
		Token:     token.Encode(),
		UserInfo:  string(profileOrEmpty(profile)),
		UpdatedAt: s.now().Unix(),
	})
	if err != nil {
		return storageError("dynamodb", "marshal", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return storageError("dynamodb", "put", err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, username string) (Record, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.keyOf(username),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Record{}, false, storageError("dynamodb", "get", err)
	}
	if len(out.Item) == 0 {
		return Record{}, false, nil
	}

	var item credentialItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Record{}, false, storageError("dynamodb", "unmarshal", err)
	}

	rec := Record{Username: username, Token: session.Decode(item.Token)}
	if item.UserInfo != "" {
		rec.Profile = json.RawMessage(item.UserInfo)
	}
	return rec, true, nil
}

func (s *DynamoStore) Delete(ctx context.Context, username string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.keyOf(username),
	})
	if err != nil {
		return storageError("dynamodb", "delete", err)
	}
	return nil
}

func (s *DynamoStore) Close() error {
	return nil
}
