package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	awsv2xray "github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/xray"
	"pipeline-orchestrator/internal/domain"
)

// API is the subset of the DynamoDB client the stores use.
type API interface {
	GetItem(ctx context.Context, params *awsv2dynamodb.GetItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *awsv2dynamodb.PutItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *awsv2dynamodb.DeleteItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *awsv2dynamodb.ScanInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.ScanOutput, error)
}

type Client struct {
	db        API
	tableName string
}

func NewClient(ctx context.Context, region, tableName string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	awsv2xray.AWSV2Instrumentor(&cfg.APIOptions)
	client := awsv2dynamodb.NewFromConfig(cfg)
	return &Client{db: client, tableName: tableName}, nil
}

func NewClientWithAPI(api API, tableName string) *Client {
	return &Client{db: api, tableName: tableName}
}

const docSK = "DOC"

func docPK(entityType, id string) string { return entityType + "#" + id }

func isConditionalCheckFailure(err error) bool {
	var condErr *awsv2types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, op, err)
}

type aggregate interface {
	GetID() string
}

// Store keeps one aggregate per item in a single table: PK is
// "<EntityType>#<id>", SK is "DOC", and the aggregate's fields, nested
// collections included, are the remaining attributes.
type Store[T aggregate] struct {
	client     *Client
	entityType string
}

func NewStore[T aggregate](client *Client, entityType string) *Store[T] {
	return &Store[T]{client: client, entityType: entityType}
}

func NewPipelineStore(client *Client) *Store[domain.PipelineDefinition] {
	return NewStore[domain.PipelineDefinition](client, "PIPELINE")
}

func NewUserStore(client *Client) *Store[domain.User] {
	return NewStore[domain.User](client, "USER")
}

func NewUserGroupStore(client *Client) *Store[domain.UserGroup] {
	return NewStore[domain.UserGroup](client, "USER_GROUP")
}

func (s *Store[T]) key(id string) map[string]awsv2types.AttributeValue {
	return map[string]awsv2types.AttributeValue{
		"PK": &awsv2types.AttributeValueMemberS{Value: docPK(s.entityType, id)},
		"SK": &awsv2types.AttributeValueMemberS{Value: docSK},
	}
}

func (s *Store[T]) marshal(doc T) (map[string]awsv2types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s: %v", domain.ErrInvalidInput, s.entityType, err)
	}
	for k, v := range s.key(doc.GetID()) {
		av[k] = v
	}
	av["EntityType"] = &awsv2types.AttributeValueMemberS{Value: s.entityType}
	return av, nil
}

func (s *Store[T]) unmarshal(item map[string]awsv2types.AttributeValue) (T, error) {
	var doc T
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return doc, storageErr("unmarshal "+s.entityType, err)
	}
	return doc, nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	var out *awsv2dynamodb.GetItemOutput
	err := xray.Capture(ctx, "DynamoDB.Get"+s.entityType, func(ctx context.Context) error {
		var e error
		out, e = s.client.db.GetItem(ctx, &awsv2dynamodb.GetItemInput{
			TableName:      aws.String(s.client.tableName),
			Key:            s.key(id),
			ConsistentRead: aws.Bool(true),
		})
		return e
	})
	if err != nil {
		return zero, storageErr("get", err)
	}
	if out.Item == nil {
		return zero, domain.ErrNotFound
	}
	return s.unmarshal(out.Item)
}

func (s *Store[T]) GetAll(ctx context.Context) ([]T, error) {
	docs := []T{}
	err := xray.Capture(ctx, "DynamoDB.Scan"+s.entityType, func(ctx context.Context) error {
		paginator := awsv2dynamodb.NewScanPaginator(s.client.db, &awsv2dynamodb.ScanInput{
			TableName:        aws.String(s.client.tableName),
			FilterExpression: aws.String("EntityType = :t"),
			ExpressionAttributeValues: map[string]awsv2types.AttributeValue{
				":t": &awsv2types.AttributeValueMemberS{Value: s.entityType},
			},
			ConsistentRead: aws.Bool(true),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, item := range page.Items {
				doc, err := s.unmarshal(item)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return nil, err
		}
		return nil, storageErr("scan", err)
	}
	return docs, nil
}

func (s *Store[T]) Insert(ctx context.Context, doc T) error {
	av, err := s.marshal(doc)
	if err != nil {
		return err
	}
	err = xray.Capture(ctx, "DynamoDB.Put"+s.entityType, func(ctx context.Context) error {
		_, err := s.client.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName:           aws.String(s.client.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		})
		return err
	})
	switch {
	case err == nil:
		return nil
	case isConditionalCheckFailure(err):
		return domain.ErrConflict
	default:
		return storageErr("insert", err)
	}
}

func (s *Store[T]) Replace(ctx context.Context, id string, doc T) error {
	if doc.GetID() != id {
		return fmt.Errorf("%w: document id %q does not match %q", domain.ErrInvalidInput, doc.GetID(), id)
	}
	av, err := s.marshal(doc)
	if err != nil {
		return err
	}
	err = xray.Capture(ctx, "DynamoDB.Replace"+s.entityType, func(ctx context.Context) error {
		_, err := s.client.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName:           aws.String(s.client.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_exists(PK)"),
		})
		return err
	})
	switch {
	case err == nil:
		return nil
	case isConditionalCheckFailure(err):
		return domain.ErrNotFound
	default:
		return storageErr("replace", err)
	}
}

func (s *Store[T]) Delete(ctx context.Context, id string) (T, error) {
	var zero T
	var out *awsv2dynamodb.DeleteItemOutput
	err := xray.Capture(ctx, "DynamoDB.Delete"+s.entityType, func(ctx context.Context) error {
		var e error
		out, e = s.client.db.DeleteItem(ctx, &awsv2dynamodb.DeleteItemInput{
			TableName:           aws.String(s.client.tableName),
			Key:                 s.key(id),
			ConditionExpression: aws.String("attribute_exists(PK)"),
			ReturnValues:        awsv2types.ReturnValueAllOld,
		})
		return e
	})
	switch {
	case err == nil:
		return s.unmarshal(out.Attributes)
	case isConditionalCheckFailure(err):
		return zero, domain.ErrNotFound
	default:
		return zero, storageErr("delete", err)
	}
}
