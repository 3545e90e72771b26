package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bucketdesk/bucketdesk/internal/config"
)

// DynamoDBAPI is the subset of the DynamoDB client the sink uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBSink stores events as items keyed by report ID.
type DynamoDBSink struct {
	client    DynamoDBAPI
	tableName string
}

// NewDynamoDBSink creates a DynamoDB client from the default AWS config.
func NewDynamoDBSink(ctx context.Context, cfg config.DynamoDBConfig) (*DynamoDBSink, error) {
	if cfg.Table == "" {
		return nil, errors.New("reporting.dynamodb.table is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}
	return NewDynamoDBSinkWithClient(cfg.Table, dynamodb.NewFromConfig(awsCfg)), nil
}

// NewDynamoDBSinkWithClient creates a sink over a pre-configured client.
func NewDynamoDBSinkWithClient(table string, client DynamoDBAPI) *DynamoDBSink {
	return &DynamoDBSink{client: client, tableName: table}
}

func (s *DynamoDBSink) Name() string { return "dynamodb" }

func (s *DynamoDBSink) Write(ctx context.Context, ev Event) error {
	item := map[string]types.AttributeValue{
		"id":          &types.AttributeValueMemberS{Value: ev.ID},
		"occurred_at": &types.AttributeValueMemberS{Value: ev.Time.UTC().Format(timeFormat)},
		"operation":   &types.AttributeValueMemberS{Value: ev.Operation},
		"message":     &types.AttributeValueMemberS{Value: ev.Message()},
	}
	// Empty optional attributes are omitted.
	for name, v := range map[string]string{"bucket": ev.Bucket, "object": ev.Object, "request_id": ev.RequestID} {
		if v != "" {
			item[name] = &types.AttributeValueMemberS{Value: v}
		}
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting error report: %w", err)
	}
	return nil
}

func (s *DynamoDBSink) Close() error { return nil }
