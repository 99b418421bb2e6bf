// Package dynamo stores the suppression set in a DynamoDB table keyed by
// email. Adds are conditional puts, so concurrent writers never lose an
// address and the newly-added count stays exact.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/service/suppression"
)

// dynamoAPI is the subset of *dynamodb.Client used here.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type suppressionItem struct {
	Email     string    `dynamodbav:"email"`
	Source    string    `dynamodbav:"source"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

// SuppressionRepo implements suppression.Repository on DynamoDB.
type SuppressionRepo struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

// NewSuppressionRepo loads AWS config the same way the storage layer does.
func NewSuppressionRepo(ctx context.Context, tableName, region, profile string) (*SuppressionRepo, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newSuppressionRepo(dynamodb.NewFromConfig(cfg), tableName), nil
}

func newSuppressionRepo(client dynamoAPI, tableName string) *SuppressionRepo {
	return &SuppressionRepo{client: client, tableName: tableName, now: time.Now}
}

func emailKey(email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"email": &types.AttributeValueMemberS{Value: email}}
}

// Load scans the whole table with strongly consistent reads.
func (r *SuppressionRepo) Load(ctx context.Context) (suppression.Set, error) {
	set := suppression.NewSet()
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:            aws.String(r.tableName),
		ProjectionExpression: aws.String("email"),
		// A bulk send filters on this snapshot; it must include adds that
		// were acknowledged moments ago.
		ConsistentRead: aws.Bool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning suppressions: %w", err)
		}
		var items []suppressionItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshaling suppressions: %w", err)
		}
		for _, it := range items {
			set.Add(it.Email)
		}
	}
	return set, nil
}

// Contains is a consistent point read.
func (r *SuppressionRepo) Contains(ctx context.Context, email string) (bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(r.tableName),
		Key:                  emailKey(email),
		ProjectionExpression: aws.String("email"),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("getting suppression: %w", err)
	}
	return out.Item != nil, nil
}

// AddMany puts each address unless it already exists and returns how many
// were new.
func (r *SuppressionRepo) AddMany(ctx context.Context, emails []string, source domain.SuppressionSource) (int, error) {
	added := 0
	now := r.now().UTC()
	for _, e := range emails {
		av, err := attributevalue.MarshalMap(suppressionItem{Email: e, Source: string(source), CreatedAt: now})
		if err != nil {
			return added, fmt.Errorf("marshaling suppression: %w", err)
		}
		_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(r.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(email)"),
		})
		var exists *types.ConditionalCheckFailedException
		switch {
		case err == nil:
			added++
		case errors.As(err, &exists):
		default:
			return added, fmt.Errorf("putting suppression: %w", err)
		}
	}
	return added, nil
}
