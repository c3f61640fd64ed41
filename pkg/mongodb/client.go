// Package mongodb connects to MongoDB and runs multi-document transactions.
// Transactions need a replica set, so single-node deployments must still be
// started with --replSet.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// writeConflictCode is the server error code for a transaction write conflict
const writeConflictCode = 112

// Config holds MongoDB connection configuration
type Config struct {
	URI            string
	Database       string
	AppName        string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
	// MaxCommitTime bounds a single commitTransaction; zero leaves the server default
	MaxCommitTime time.Duration
}

// DefaultConfig returns a Config for a local replica set
func DefaultConfig() *Config {
	return &Config{
		URI:            "mongodb://localhost:27017/?replicaSet=rs0",
		Database:       "coldroom",
		AppName:        "coldroom-service",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    100,
		MinPoolSize:    5,
		MaxCommitTime:  5 * time.Second,
	}
}

// Client wraps the MongoDB client and the service database
type Client struct {
	client        *mongo.Client
	database      *mongo.Database
	maxCommitTime time.Duration
}

// NewClient connects and pings the primary
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	clientOpts := options.Client().
		ApplyURI(config.URI).
		SetAppName(config.AppName).
		SetConnectTimeout(config.ConnectTimeout).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := Ping(pingCtx, client); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client:        client,
		database:      client.Database(config.Database),
		maxCommitTime: config.MaxCommitTime,
	}, nil
}

// Database returns the service database
func (c *Client) Database() *mongo.Database {
	return c.database
}

// MaxCommitTime returns the configured commit bound
func (c *Client) MaxCommitTime() time.Duration {
	return c.maxCommitTime
}

// Close disconnects the client
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Ping checks that the primary answers
func Ping(ctx context.Context, client *mongo.Client) error {
	return client.Ping(ctx, readpref.Primary())
}

// WithTransaction runs fn in a snapshot/majority transaction. The driver retries
// fn on transient transaction errors, so fn must be safe to re-run.
func WithTransaction(ctx context.Context, client *mongo.Client, maxCommitTime time.Duration, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if maxCommitTime > 0 {
		txOpts.SetMaxCommitTime(&maxCommitTime)
	}

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		return nil, fn(sessCtx)
	}, txOpts)
	return err
}

// IsWriteConflict reports whether err is a transaction write conflict that
// outlived the driver's own retries
func IsWriteConflict(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == writeConflictCode || cmdErr.HasErrorLabel("TransientTransactionError")
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == writeConflictCode {
				return true
			}
		}
		return writeErr.HasErrorLabel("TransientTransactionError")
	}
	return false
}
