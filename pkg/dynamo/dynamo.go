// Package dynamo implements a DynamoDB backed core.Database.
//
// Each collection maps to a table whose hash key stores the document
// identifier. Filters and updates compile to DynamoDB expressions; sorting,
// skipping and exclusion projections are applied after items are fetched.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/time/rate"

	"github.com/pay-theory/minq/pkg/core"
	minqerrors "github.com/pay-theory/minq/pkg/errors"
	"github.com/pay-theory/minq/pkg/naming"
	"github.com/pay-theory/minq/pkg/session"
)

// DynamoDBAPI is the subset of the DynamoDB client used by this package
type DynamoDBAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

const defaultMaxConcurrency = 8

// Database resolves collections to DynamoDB tables
type Database struct {
	client         DynamoDBAPI
	idAttribute    string
	tableCheck     bool
	limiter        *rate.Limiter
	maxConcurrency int
	logger         *slog.Logger
}

// Option configures a Database
type Option func(*Database)

// WithTableCheck makes Collection verify the table exists with DescribeTable
func WithTableCheck() Option {
	return func(db *Database) {
		db.tableCheck = true
	}
}

// WithRateLimit limits requests to rps per second. A non-positive rps disables the limit.
func WithRateLimit(rps float64) Option {
	return func(db *Database) {
		if rps <= 0 {
			db.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		db.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithIDAttribute sets the table hash key attribute that stores _id
func WithIDAttribute(name string) Option {
	return func(db *Database) {
		if name != "" {
			db.idAttribute = name
		}
	}
}

// WithMaxConcurrency bounds parallel requests within one operation
func WithMaxConcurrency(n int) Option {
	return func(db *Database) {
		if n > 0 {
			db.maxConcurrency = n
		}
	}
}

// WithLogger sets the logger used for driver diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(db *Database) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// New creates a Database from session configuration
func New(cfg *session.Config, opts ...Option) (*Database, error) {
	if cfg == nil {
		cfg = session.DefaultConfig()
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	client, err := sess.Client()
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithIDAttribute(cfg.IDAttribute),
		WithMaxConcurrency(cfg.MaxConcurrency),
		WithRateLimit(cfg.RequestsPerSecond),
	}
	return NewWithClient(client, append(base, opts...)...), nil
}

// NewWithClient creates a Database around an existing client
func NewWithClient(client DynamoDBAPI, opts ...Option) *Database {
	db := &Database{
		client:         client,
		idAttribute:    core.IDField,
		maxConcurrency: defaultMaxConcurrency,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Collection resolves a table by name
func (db *Database) Collection(ctx context.Context, name string) (core.Collection, error) {
	if err := naming.ValidateTableName(name); err != nil {
		return nil, err
	}

	if db.tableCheck {
		if err := db.wait(ctx); err != nil {
			return nil, err
		}
		_, err := db.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
		if err != nil {
			var notFound *types.ResourceNotFoundException
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %s", minqerrors.ErrTableNotFound, name)
			}
			return nil, err
		}
	}

	return &Collection{db: db, name: name}, nil
}

// wait blocks until the rate limiter admits one request
func (db *Database) wait(ctx context.Context) error {
	if db.limiter == nil {
		return nil
	}
	return db.limiter.Wait(ctx)
}
