package store

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamo"
)

// Options carries backend-specific settings for Open.
type Options struct {
	FilePath    string // file backend
	PostgresDSN string // postgres backend
	DynamoTable string // dynamo backend
	AWSRegion   string // dynamo backend, optional
}

// Open constructs the configured Store backend.
func Open(ctx context.Context, backend string, opts Options) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil

	case BackendFile:
		if opts.FilePath == "" {
			return nil, fmt.Errorf("file backend requires a path")
		}
		return NewFileStore(opts.FilePath)

	case BackendPostgres:
		db, err := ConnectPostgres(opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s := NewPostgresStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil

	case BackendDynamo:
		if opts.DynamoTable == "" {
			return nil, fmt.Errorf("dynamo backend requires a table name")
		}
		var loadOpts []func(*awsconfig.LoadOptions) error
		if opts.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(opts.AWSRegion))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewDynamoStore(dynamodb.NewFromConfig(cfg), opts.DynamoTable), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
