package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	// DefaultTTL bounds how long a crashed holder can block a session.
	DefaultTTL = 30 * time.Second

	defaultPollInterval = 100 * time.Millisecond
	releaseTimeout      = 2 * time.Second
)

type lockItem struct {
	LockKey   string `dynamodbav:"lock_key"`
	OwnerID   string `dynamodbav:"owner_id"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// DynamoLocker implements Locker with DynamoDB conditional writes, so
// requests served by different Lambda instances serialize on one session.
type DynamoLocker struct {
	client       DynamoAPI
	tableName    string
	ttlDuration  time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// NewDynamoLocker creates a new DynamoLocker.
func NewDynamoLocker(client DynamoAPI, tableName string) *DynamoLocker {
	return &DynamoLocker{
		client:       client,
		tableName:    tableName,
		ttlDuration:  DefaultTTL,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
}

// Acquire succeeds if:
// 1. No lock exists for the key.
// 2. The existing lock has expired (TTL < now).
// Otherwise it polls until the holder releases or ctx is done.
func (m *DynamoLocker) Acquire(ctx context.Context, key string) (func(), error) {
	owner := uuid.NewString()

	for {
		ok, err := m.tryAcquire(ctx, key, owner)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { m.release(key, owner) }, nil
		}

		select {
		case <-time.After(m.pollInterval):
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
		}
	}
}

func (m *DynamoLocker) tryAcquire(ctx context.Context, key, owner string) (bool, error) {
	now := m.now().Unix()
	item, err := attributevalue.MarshalMap(lockItem{
		LockKey:   key,
		OwnerID:   owner,
		ExpiresAt: now + int64(m.ttlDuration.Seconds()),
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal lock: %w", err)
	}

	_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(m.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(lock_key) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
		},
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return true, nil
}

// release removes the lock if we still own it. It runs on its own context
// because the request context may already be canceled; a failed delete is
// cleared by the TTL.
func (m *DynamoLocker) release(key, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	_, _ = m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(m.tableName),
		Key: map[string]types.AttributeValue{
			"lock_key": &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression: aws.String("owner_id = :owner_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner_id": &types.AttributeValueMemberS{Value: owner},
		},
	})
}
