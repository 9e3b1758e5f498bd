package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bbernstein/velobot/internal/models"
	"github.com/rs/zerolog/log"
)

// DynamoDBClient defines the DynamoDB operations the repository needs
type DynamoDBClient interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoSubscriptionRepository stores one item per (userId, stationId) pair.
// userId is the partition key and stationId the sort key, so a pair is unique.
type DynamoSubscriptionRepository struct {
	client    DynamoDBClient
	tableName string
	now       func() time.Time
}

var _ models.SubscriptionRepository = (*DynamoSubscriptionRepository)(nil)

func NewDynamoSubscriptionRepository(client DynamoDBClient, tableName string) *DynamoSubscriptionRepository {
	return &DynamoSubscriptionRepository{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// LoadAll scans the whole table. Rows come back grouped by user and ordered
// by creation time so the in-memory lists keep subscribe order.
func (r *DynamoSubscriptionRepository) LoadAll(ctx context.Context) ([]models.SubscriptionRecord, error) {
	var records []models.SubscriptionRecord

	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriptions: %w", err)
		}

		var batch []models.SubscriptionRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshaling subscriptions: %w", err)
		}
		records = append(records, batch...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].UserID != records[j].UserID {
			return records[i].UserID < records[j].UserID
		}
		return records[i].CreatedAt < records[j].CreatedAt
	})

	log.Debug().Int("record_count", len(records)).Msg("Loaded subscriptions from DynamoDB")
	return records, nil
}

func (r *DynamoSubscriptionRepository) Insert(ctx context.Context, userID, stationID string) error {
	item, err := attributevalue.MarshalMap(models.SubscriptionRecord{
		UserID:    userID,
		StationID: stationID,
		CreatedAt: r.now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("marshaling subscription: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(userId) AND attribute_not_exists(stationId)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return models.ErrDuplicateSubscription
		}
		return fmt.Errorf("putting subscription in DynamoDB: %w", err)
	}

	log.Debug().Str("user_id", userID).Str("station_id", stationID).Msg("Saved subscription")
	return nil
}

// Delete removes the pair. Deleting a missing pair is not an error.
func (r *DynamoSubscriptionRepository) Delete(ctx context.Context, userID, stationID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       subscriptionKey(userID, stationID),
	})
	if err != nil {
		return fmt.Errorf("deleting subscription from DynamoDB: %w", err)
	}

	log.Debug().Str("user_id", userID).Str("station_id", stationID).Msg("Deleted subscription")
	return nil
}

// EnsureTable creates the subscriptions table when it does not exist yet and
// waits for it to become active. Meant for local development.
func (r *DynamoSubscriptionRepository) EnsureTable(ctx context.Context, wait time.Duration) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.tableName),
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describing table %s: %w", r.tableName, err)
	}

	log.Info().Str("table", r.tableName).Msg("Creating subscriptions table")
	_, err = r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(r.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("userId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("stationId"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("userId"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("stationId"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("creating table %s: %w", r.tableName, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(r.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)}, wait); err != nil {
		return fmt.Errorf("waiting for table %s: %w", r.tableName, err)
	}
	return nil
}

func subscriptionKey(userID, stationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"userId":    &types.AttributeValueMemberS{Value: userID},
		"stationId": &types.AttributeValueMemberS{Value: stationID},
	}
}
