package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bbernstein/velobot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDynamoDBClient implements DynamoDBClient for testing
type mockDynamoDBClient struct {
	scanFunc          func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	putItemFunc       func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	deleteItemFunc    func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	describeTableFunc func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	createTableFunc   func(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var _ DynamoDBClient = (*mockDynamoDBClient)(nil)

func (m *mockDynamoDBClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.scanFunc != nil {
		return m.scanFunc(ctx, params, optFns...)
	}
	return &dynamodb.ScanOutput{}, nil
}

func (m *mockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFunc != nil {
		return m.putItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamoDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFunc != nil {
		return m.deleteItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDynamoDBClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.describeTableFunc != nil {
		return m.describeTableFunc(ctx, params, optFns...)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (m *mockDynamoDBClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if m.createTableFunc != nil {
		return m.createTableFunc(ctx, params, optFns...)
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func marshalRecords(t *testing.T, records ...models.SubscriptionRecord) []map[string]types.AttributeValue {
	t.Helper()
	items := make([]map[string]types.AttributeValue, 0, len(records))
	for _, r := range records {
		item, err := attributevalue.MarshalMap(r)
		require.NoError(t, err)
		items = append(items, item)
	}
	return items
}

func TestLoadAll(t *testing.T) {
	var scans int
	client := &mockDynamoDBClient{
		scanFunc: func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			assert.Equal(t, "subs", aws.ToString(params.TableName))
			scans++
			if params.ExclusiveStartKey == nil {
				return &dynamodb.ScanOutput{
					Items: marshalRecords(t,
						models.SubscriptionRecord{UserID: "u2", StationID: "0002", CreatedAt: 20},
						models.SubscriptionRecord{UserID: "u1", StationID: "0005", CreatedAt: 30},
					),
					LastEvaluatedKey: subscriptionKey("u1", "0005"),
				}, nil
			}
			return &dynamodb.ScanOutput{
				Items: marshalRecords(t,
					models.SubscriptionRecord{UserID: "u1", StationID: "0001", CreatedAt: 10},
				),
			}, nil
		},
	}

	repo := NewDynamoSubscriptionRepository(client, "subs")
	records, err := repo.LoadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, scans)
	assert.Equal(t, []models.SubscriptionRecord{
		{UserID: "u1", StationID: "0001", CreatedAt: 10},
		{UserID: "u1", StationID: "0005", CreatedAt: 30},
		{UserID: "u2", StationID: "0002", CreatedAt: 20},
	}, records)

	grouped := models.GroupSubscriptions(records)
	assert.Equal(t, []string{"0001", "0005"}, grouped["u1"].StationIDs)
}

func TestLoadAllScanError(t *testing.T) {
	client := &mockDynamoDBClient{
		scanFunc: func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	_, err := NewDynamoSubscriptionRepository(client, "subs").LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanning subscriptions")
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name    string
		putErr  error
		wantErr error
		wantAny bool
	}{
		{name: "successful insert"},
		{
			name:    "duplicate pair",
			putErr:  &types.ConditionalCheckFailedException{Message: aws.String("exists")},
			wantErr: models.ErrDuplicateSubscription,
		},
		{
			name:    "dynamo failure",
			putErr:  errors.New("service unavailable"),
			wantAny: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var put *dynamodb.PutItemInput
			client := &mockDynamoDBClient{
				putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
					put = params
					return &dynamodb.PutItemOutput{}, tt.putErr
				},
			}
			repo := NewDynamoSubscriptionRepository(client, "subs")
			repo.now = func() time.Time { return time.Unix(0, 42) }

			err := repo.Insert(context.Background(), "user-1", "0101")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAny:
				require.Error(t, err)
				assert.NotErrorIs(t, err, models.ErrDuplicateSubscription)
			default:
				require.NoError(t, err)
			}

			require.NotNil(t, put)
			assert.Equal(t, "subs", aws.ToString(put.TableName))
			assert.Contains(t, aws.ToString(put.ConditionExpression), "attribute_not_exists")

			var record models.SubscriptionRecord
			require.NoError(t, attributevalue.UnmarshalMap(put.Item, &record))
			assert.Equal(t, models.SubscriptionRecord{UserID: "user-1", StationID: "0101", CreatedAt: 42}, record)
		})
	}
}

func TestDelete(t *testing.T) {
	var deleted *dynamodb.DeleteItemInput
	client := &mockDynamoDBClient{
		deleteItemFunc: func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
			deleted = params
			return &dynamodb.DeleteItemOutput{}, nil
		},
	}

	err := NewDynamoSubscriptionRepository(client, "subs").Delete(context.Background(), "user-1", "0101")
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, subscriptionKey("user-1", "0101"), deleted.Key)

	client.deleteItemFunc = func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
		return nil, errors.New("boom")
	}
	err = NewDynamoSubscriptionRepository(client, "subs").Delete(context.Background(), "user-1", "0101")
	assert.Error(t, err)
}

func TestEnsureTable(t *testing.T) {
	t.Run("existing table", func(t *testing.T) {
		created := false
		client := &mockDynamoDBClient{
			createTableFunc: func(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
				created = true
				return &dynamodb.CreateTableOutput{}, nil
			},
		}
		require.NoError(t, NewDynamoSubscriptionRepository(client, "subs").EnsureTable(context.Background(), time.Second))
		assert.False(t, created)
	})

	t.Run("missing table is created", func(t *testing.T) {
		var created *dynamodb.CreateTableInput
		client := &mockDynamoDBClient{}
		client.describeTableFunc = func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			if created == nil {
				return nil, &types.ResourceNotFoundException{Message: aws.String("no table")}
			}
			return &dynamodb.DescribeTableOutput{
				Table: &types.TableDescription{TableStatus: types.TableStatusActive},
			}, nil
		}
		client.createTableFunc = func(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
			created = params
			return &dynamodb.CreateTableOutput{}, nil
		}

		require.NoError(t, NewDynamoSubscriptionRepository(client, "subs").EnsureTable(context.Background(), 5*time.Second))
		require.NotNil(t, created)
		assert.Equal(t, "subs", aws.ToString(created.TableName))
		assert.Len(t, created.KeySchema, 2)
	})

	t.Run("describe failure", func(t *testing.T) {
		client := &mockDynamoDBClient{
			describeTableFunc: func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
				return nil, errors.New("access denied")
			},
		}
		err := NewDynamoSubscriptionRepository(client, "subs").EnsureTable(context.Background(), time.Second)
		assert.Error(t, err)
	})
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(models.SubscriptionRecord{UserID: "u1", StationID: "0001"})

	require.NoError(t, repo.Insert(ctx, "u1", "0002"))
	assert.ErrorIs(t, repo.Insert(ctx, "u1", "0001"), models.ErrDuplicateSubscription)

	records, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.SubscriptionRecord{
		{UserID: "u1", StationID: "0001"},
		{UserID: "u1", StationID: "0002"},
	}, records)

	require.NoError(t, repo.Delete(ctx, "u1", "0001"))
	require.NoError(t, repo.Delete(ctx, "u1", "missing"))
	assert.Equal(t, []models.SubscriptionRecord{{UserID: "u1", StationID: "0002"}}, repo.Records())
}
