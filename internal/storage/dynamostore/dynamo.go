package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"pastebox/internal/storage"
)

// Options configures the DynamoDB client.
type Options struct {
	Table  string
	Region string
	// Endpoint overrides the service endpoint, e.g. DynamoDB Local.
	Endpoint string
}

// Store implements storage.Store using DynamoDB.
//
// Increments are a conditional UpdateItem (ADD view_count :one guarded by
// attribute_exists) returning UPDATED_NEW. Reads are strongly consistent.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// Open loads the default AWS config and makes sure the table exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Table == "" {
		return nil, errors.New("dynamodb table name must not be empty")
	}
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	store := &Store{client: client, tableName: opts.Table}
	if err := store.ensureTable(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (d *Store) ensureTable(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.tableName)})
	if err == nil {
		return nil
	}
	var missing *types.ResourceNotFoundException
	if !errors.As(err, &missing) {
		return fmt.Errorf("describe table: %w", err)
	}

	_, err = d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	waiter := dynamodb.NewTableExistsWaiter(d.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.tableName)}, time.Minute); err != nil {
		return fmt.Errorf("wait for table: %w", err)
	}
	if _, err := d.client.UpdateTimeToLive(ctx, timeToLiveInput(d.tableName)); err != nil {
		return fmt.Errorf("enable ttl: %w", err)
	}
	return nil
}

// ttlAttribute holds the expiry in unix seconds, the unit DynamoDB TTL reads.
const ttlAttribute = "ttl"

func timeToLiveInput(table string) *dynamodb.UpdateTimeToLiveInput {
	return &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(ttlAttribute),
			Enabled:       aws.Bool(true),
		},
	}
}

// IncrementStrategy reports the atomic path.
func (d *Store) IncrementStrategy() storage.IncrementStrategy {
	return storage.StrategyAtomic
}

// Create puts the item unless the id is already present.
func (d *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                pasteToItem(paste),
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return storage.ErrDuplicateID
		}
		return fmt.Errorf("put paste: %w", err)
	}
	return nil
}

// Get retrieves a paste by id.
func (d *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            keyFor(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get paste: %w", err)
	}
	if result.Item == nil {
		return nil, storage.ErrNotFound
	}
	return itemToPaste(result.Item)
}

// IncrementViews adds one view and returns the updated counter.
func (d *Store) IncrementViews(ctx context.Context, id string) (int, error) {
	result, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 keyFor(id),
		UpdateExpression:    aws.String("ADD view_count :one"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var missing *types.ConditionalCheckFailedException
		if errors.As(err, &missing) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("increment views: %w", err)
	}
	n, ok := result.Attributes["view_count"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("increment views: view_count missing from response")
	}
	count, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return count, nil
}

// DeleteExpired scans for expired items and deletes them one by one.
// Tables created by Open also have DynamoDB TTL enabled on the ttl attribute,
// which reaps the same items eventually.
func (d *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:            aws.String(d.tableName),
		FilterExpression:     aws.String("attribute_exists(expires_at) AND expires_at <= :cutoff"),
		ProjectionExpression: aws.String("id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(before.UTC().UnixNano(), 10)},
		},
	})

	removed := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return removed, fmt.Errorf("scan expired: %w", err)
		}
		for _, item := range page.Items {
			id, ok := item["id"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if _, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(d.tableName),
				Key:       keyFor(id.Value),
			}); err != nil {
				return removed, fmt.Errorf("delete expired paste %s: %w", id.Value, err)
			}
			removed++
		}
	}
	return removed, nil
}

// Ping describes the table.
func (d *Store) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.tableName)})
	return err
}

// Close is a no-op for DynamoDB.
func (d *Store) Close() error {
	return nil
}

func keyFor(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func pasteToItem(paste *storage.Paste) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberS{Value: paste.ID},
		"content":    &types.AttributeValueMemberS{Value: paste.Content},
		"created_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(paste.CreatedAt.UTC().UnixNano(), 10)},
		"view_count": &types.AttributeValueMemberN{Value: "0"},
	}
	if paste.HasExpiration() {
		item["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(paste.ExpiresAt.UTC().UnixNano(), 10)}
		item[ttlAttribute] = &types.AttributeValueMemberN{Value: strconv.FormatInt(paste.ExpiresAt.Unix(), 10)}
	}
	if paste.HasViewLimit() {
		item["max_views"] = &types.AttributeValueMemberN{Value: strconv.Itoa(paste.MaxViews)}
	}
	return item
}

func itemToPaste(item map[string]types.AttributeValue) (*storage.Paste, error) {
	paste := &storage.Paste{}

	if id, ok := item["id"].(*types.AttributeValueMemberS); ok {
		paste.ID = id.Value
	}
	if content, ok := item["content"].(*types.AttributeValueMemberS); ok {
		paste.Content = content.Value
	}

	createdAt, err := nanos(item, "created_at")
	if err != nil {
		return nil, err
	}
	paste.CreatedAt = createdAt

	expiresAt, err := nanos(item, "expires_at")
	if err != nil {
		return nil, err
	}
	paste.ExpiresAt = expiresAt

	if paste.MaxViews, err = number(item, "max_views"); err != nil {
		return nil, err
	}
	if paste.ViewCount, err = number(item, "view_count"); err != nil {
		return nil, err
	}
	return paste, nil
}

func nanos(item map[string]types.AttributeValue, key string) (time.Time, error) {
	v, ok := item[key].(*types.AttributeValueMemberN)
	if !ok {
		return time.Time{}, nil
	}
	ts, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", key, err)
	}
	return time.Unix(0, ts).UTC(), nil
}

func number(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v.Value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
