package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoStore is the remote document-store backend. Table layout: partition
// key "collection", sort key "id", the document body as a JSON string.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

var _ Store = (*DynamoStore)(nil)

// dynamoDocument represents the DynamoDB item structure
type dynamoDocument struct {
	Collection string `dynamodbav:"collection"`
	ID         string `dynamodbav:"id"`
	Data       string `dynamodbav:"data"`
}

func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	var docs []Document
	var lastKey map[string]types.AttributeValue

	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("#c = :collection"),
			ExpressionAttributeNames: map[string]string{
				"#c": "collection",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":collection": &types.AttributeValueMemberS{Value: collection},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}

		for _, item := range out.Items {
			var d dynamoDocument
			if err := attributevalue.UnmarshalMap(item, &d); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
			}
			docs = append(docs, Document{ID: d.ID, Data: json.RawMessage(d.Data)})
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return docs, nil
}

func (s *DynamoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(collection, id),
	})
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(out.Item) == 0 {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}

	var d dynamoDocument
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return Document{ID: d.ID, Data: json.RawMessage(d.Data)}, nil
}

func (s *DynamoStore) Add(ctx context.Context, collection string, data any) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", collection, err)
	}

	id := uuid.New().String()
	item, err := attributevalue.MarshalMap(dynamoDocument{
		Collection: collection,
		ID:         id,
		Data:       string(body),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return id, nil
}

func (s *DynamoStore) Update(ctx context.Context, collection, id string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", collection, err)
	}

	item, err := attributevalue.MarshalMap(dynamoDocument{
		Collection: collection,
		ID:         id,
		Data:       string(body),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Conditional write so updating an absent id fails instead of inserting.
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(collection, id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *DynamoStore) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"collection": &types.AttributeValueMemberS{Value: collection},
		"id":         &types.AttributeValueMemberS{Value: id},
	}
}
