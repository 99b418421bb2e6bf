package dynamo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ignite/optin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable keeps items by email and pages scans two items at a time.
type fakeTable struct {
	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	putErr  error
	scanned int
	// eventualScans counts scans that did not ask for consistent reads.
	eventualScans int
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(m map[string]types.AttributeValue) string {
	if s, ok := m["email"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	k := keyOf(in.Item)
	if _, ok := f.items[k]; ok && aws.ToString(in.ConditionExpression) != "" {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned++
	if !aws.ToBool(in.ConsistentRead) {
		f.eventualScans++
	}
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	start := 0
	if in.ExclusiveStartKey != nil {
		start = sort.SearchStrings(keys, keyOf(in.ExclusiveStartKey)) + 1
	}
	end := start + 2
	if end > len(keys) {
		end = len(keys)
	}
	out := &dynamodb.ScanOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, f.items[k])
	}
	if end < len(keys) {
		out.LastEvaluatedKey = emailKey(keys[end-1])
	}
	return out, nil
}

func TestAddManyCountsOnlyNew(t *testing.T) {
	table := newFakeTable()
	repo := newSuppressionRepo(table, "suppr")
	ctx := context.Background()

	n, err := repo.AddMany(ctx, []string{"a@x.io", "b@x.io"}, domain.SourceUnsubscribe)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.AddMany(ctx, []string{"b@x.io", "c@x.io"}, domain.SourceBulkBounce)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var item suppressionItem
	require.NoError(t, attributevalue.UnmarshalMap(table.items["b@x.io"], &item))
	assert.Equal(t, "unsubscribe", item.Source)
}

func TestLoadPaginates(t *testing.T) {
	table := newFakeTable()
	repo := newSuppressionRepo(table, "suppr")
	ctx := context.Background()
	_, err := repo.AddMany(ctx, []string{"a@x.io", "b@x.io", "c@x.io", "d@x.io", "e@x.io"}, domain.SourceManual)
	require.NoError(t, err)

	set, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.io", "b@x.io", "c@x.io", "d@x.io", "e@x.io"}, set.Sorted())
	assert.Equal(t, 3, table.scanned)
	assert.Zero(t, table.eventualScans)
}

func TestContains(t *testing.T) {
	repo := newSuppressionRepo(newFakeTable(), "suppr")
	ctx := context.Background()
	_, err := repo.AddMany(ctx, []string{"a@x.io"}, domain.SourceManual)
	require.NoError(t, err)

	ok, err := repo.Contains(ctx, "a@x.io")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Contains(ctx, "z@x.io")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddManyPropagatesErrors(t *testing.T) {
	table := newFakeTable()
	table.putErr = errors.New("throttled")
	_, err := newSuppressionRepo(table, "suppr").AddMany(context.Background(), []string{"a@x.io"}, domain.SourceManual)
	assert.ErrorContains(t, err, "throttled")
}
