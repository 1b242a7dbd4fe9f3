package negotiation

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// stateRecord is the DynamoDB item layout; expiresAt drives table TTL.
type stateRecord struct {
	State
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore keeps state in a DynamoDB table keyed by conversationId.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, ttl time.Duration, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("negotiation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("negotiation: table name cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Load implements Store.
func (s *DynamoStore) Load(ctx context.Context, conversationID string) (State, bool, error) {
	if conversationID == "" {
		return State{}, false, ErrEmptyConversationID
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            conversationKey(conversationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return State{}, false, fmt.Errorf("negotiation: failed to load state: %w", err)
	}
	if len(out.Item) == 0 {
		return State{}, false, nil
	}

	var rec stateRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return State{}, false, fmt.Errorf("negotiation: failed to decode state: %w", err)
	}
	st := rec.State
	if st.Slots == nil {
		st.Slots = make(map[Slot]SlotValue, len(AllSlots))
	}
	return st, true, nil
}

// Save implements Store.
func (s *DynamoStore) Save(ctx context.Context, st State) error {
	if st.ConversationID == "" {
		return ErrEmptyConversationID
	}
	now := s.now().UTC()
	item, err := attributevalue.MarshalMap(stateRecord{
		State:     st,
		UpdatedAt: now.Format(time.RFC3339Nano),
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("negotiation: failed to marshal state: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("negotiation: failed to persist state: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *DynamoStore) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       conversationKey(conversationID),
	}); err != nil {
		return fmt.Errorf("negotiation: failed to delete state: %w", err)
	}
	return nil
}

func conversationKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"conversationId": &types.AttributeValueMemberS{Value: id},
	}
}
