// Package quotestore reads and writes quote records in the partitioned
// DynamoDB table.
package quotestore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quote-rollup/internal/failure"
	"github.com/sells-group/quote-rollup/internal/model"
)

// API is the subset of the DynamoDB client used here.
type API interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client reads partitions from and appends records to one table.
type Client struct {
	api   API
	table string
}

// New wraps an existing DynamoDB API.
func New(api API, table string) *Client {
	return &Client{api: api, table: table}
}

// NewFromConfig builds a client from the default AWS credential chain. A
// non-empty endpoint overrides the service endpoint (DynamoDB Local). A
// positive timeout bounds each HTTP request.
func NewFromConfig(ctx context.Context, region, endpoint, table string, timeout time.Duration) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if timeout > 0 {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(timeout)))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, failure.New(failure.StoreUnavailable, err, "load aws config")
	}
	api := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(api, table), nil
}

// ReadPartition returns every record whose partition key equals date, in
// store order. Pages are followed until the store reports no more keys. An
// empty partition yields an empty slice and no error.
func (c *Client) ReadPartition(ctx context.Context, date string) ([]model.QuoteRecord, error) {
	records := []model.QuoteRecord{}
	var startKey map[string]types.AttributeValue
	pages := 0

	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.table),
			KeyConditionExpression: aws.String("ingested_date = :d"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":d": &types.AttributeValueMemberS{Value: date},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, failure.New(failure.StoreUnavailable, err, "query partition "+date)
		}
		pages++

		var page []model.QuoteRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, failure.New(failure.Serialization, err, "unmarshal partition "+date)
		}
		records = append(records, page...)

		startKey = out.LastEvaluatedKey
		if len(startKey) == 0 {
			break
		}
	}

	zap.L().Debug("quotestore: read partition",
		zap.String("table", c.table),
		zap.String("partition", date),
		zap.Int("pages", pages),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// Put appends one record. It never replaces an existing record with the same
// key. Any error or non-2xx answer from the store is a write failure.
func (c *Client) Put(ctx context.Context, rec model.QuoteRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return failure.New(failure.Serialization, err, "marshal quote "+rec.QuoteID)
	}

	out, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(ingested_at)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return failure.New(failure.WriteFailed, err, "put quote "+rec.QuoteID+": key "+rec.IngestedAt+" already exists")
		}
		var re interface{ HTTPStatusCode() int }
		if errors.As(err, &re) {
			return failure.New(failure.WriteFailed, err, "put quote "+rec.QuoteID+": status "+strconv.Itoa(re.HTTPStatusCode()))
		}
		return failure.New(failure.WriteFailed, err, "put quote "+rec.QuoteID)
	}

	if out != nil {
		if raw, ok := awsmiddleware.GetRawResponse(out.ResultMetadata).(*smithyhttp.Response); ok && raw != nil {
			if raw.StatusCode < 200 || raw.StatusCode > 299 {
				return failure.New(failure.WriteFailed, eris.Errorf("quotestore: status %d", raw.StatusCode), "put quote "+rec.QuoteID)
			}
		}
	}
	return nil
}
