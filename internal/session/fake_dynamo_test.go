package session

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is a single-table in-memory DynamoDB understanding just the
// condition expressions this package issues.
type fakeDynamo struct {
	keyAttrs []string

	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	puts  int
}

func newFakeDynamo(keyAttrs ...string) *fakeDynamo {
	return &fakeDynamo{keyAttrs: keyAttrs, items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) key(m map[string]types.AttributeValue) string {
	parts := make([]string, 0, len(f.keyAttrs))
	for _, a := range f.keyAttrs {
		if s, ok := m[a].(*types.AttributeValueMemberS); ok {
			parts = append(parts, s.Value)
		}
	}
	return strings.Join(parts, "|")
}

func strAttr(m map[string]types.AttributeValue, name string) string {
	if s, ok := m[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func numAttr(m map[string]types.AttributeValue, name string) int64 {
	if n, ok := m[name].(*types.AttributeValueMemberN); ok {
		v, _ := strconv.ParseInt(n.Value, 10, 64)
		return v
	}
	return 0
}

func condFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[f.key(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	k := f.key(in.Item)
	if existing, ok := f.items[k]; ok && in.ConditionExpression != nil {
		now := numAttr(in.ExpressionAttributeValues, ":now")
		if numAttr(existing, "expires_at") >= now {
			return nil, condFailed()
		}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(in.Key)
	existing, ok := f.items[k]
	if !ok {
		return &dynamodb.DeleteItemOutput{}, nil
	}
	if in.ConditionExpression != nil && strAttr(existing, "owner_id") != strAttr(in.ExpressionAttributeValues, ":owner_id") {
		return nil, condFailed()
	}
	delete(f.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}
