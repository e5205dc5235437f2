package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	json "github.com/goccy/go-json"

	"github.com/jun/stravastats/internal/crypto"
)

// Keys held per session.
const (
	KeyToken        = "token"
	KeyOAuthState   = "oauth_state"
	KeyCodeVerifier = "oauth_code_verifier"
	KeyActivities   = "activity_cache"
)

// DefaultLifetime bounds how long an idle session's values are kept.
const DefaultLifetime = 30 * 24 * time.Hour

var ErrEmptySessionID = errors.New("session id is required")

// Store is the key-value session store shared by auth and cache.
// Values are JSON-encoded; Get reports false when the key is absent.
type Store interface {
	Get(ctx context.Context, sessionID, key string, out any) (bool, error)
	Set(ctx context.Context, sessionID, key string, value any) error
	Delete(ctx context.Context, sessionID string, keys ...string) error
}

// MemoryStore implements Store with an in-process map. Values are stored
// encoded, so callers never share memory with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, sessionID, key string, out any) (bool, error) {
	if sessionID == "" {
		return false, ErrEmptySessionID
	}
	m.mu.RLock()
	raw, ok := m.data[sessionID][key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (m *MemoryStore) Set(ctx context.Context, sessionID, key string, value any) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[sessionID] == nil {
		m.data[sessionID] = make(map[string][]byte)
	}
	m.data[sessionID][key] = raw
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data[sessionID], k)
	}
	if len(m.data[sessionID]) == 0 {
		delete(m.data, sessionID)
	}
	return nil
}

// DynamoAPI is the subset of the DynamoDB client used by this package.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type storeItem struct {
	SessionID string `dynamodbav:"session_id"`
	Key       string `dynamodbav:"item_key"`
	Value     string `dynamodbav:"value"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
	UpdatedAt int64  `dynamodbav:"updated_at"`
}

// DynamoStore implements Store on a DynamoDB table keyed by
// (session_id, item_key). Values are sealed with the session id as binding.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	enc       crypto.Encryptor
	lifetime  time.Duration
	now       func() time.Time
}

// NewDynamoStore creates a new DynamoStore.
func NewDynamoStore(client DynamoAPI, tableName string, enc crypto.Encryptor) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		enc:       enc,
		lifetime:  DefaultLifetime,
		now:       time.Now,
	}
}

func (s *DynamoStore) itemKey(sessionID, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: sessionID},
		"item_key":   &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoStore) Get(ctx context.Context, sessionID, key string, out any) (bool, error) {
	if sessionID == "" {
		return false, ErrEmptySessionID
	}
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(sessionID, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if res.Item == nil {
		return false, nil
	}

	var item storeItem
	if err := attributevalue.UnmarshalMap(res.Item, &item); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	// TTL deletion lags; treat expired rows as absent.
	if item.ExpiresAt != 0 && item.ExpiresAt < s.now().Unix() {
		return false, nil
	}

	plain, err := s.enc.Open(ctx, item.Value, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", key, err)
	}
	if err := json.Unmarshal(plain, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *DynamoStore) Set(ctx context.Context, sessionID, key string, value any) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	plain, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	sealed, err := s.enc.Seal(ctx, plain, sessionID)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", key, err)
	}

	now := s.now()
	item, err := attributevalue.MarshalMap(storeItem{
		SessionID: sessionID,
		Key:       key,
		Value:     sealed,
		ExpiresAt: now.Add(s.lifetime).Unix(),
		UpdatedAt: now.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	for _, k := range keys {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       s.itemKey(sessionID, k),
		})
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}
	return nil
}
