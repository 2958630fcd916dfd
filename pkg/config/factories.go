package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	catalogBadger "github.com/marmos91/dittocat/pkg/store/catalog/badger"
	catalogMemory "github.com/marmos91/dittocat/pkg/store/catalog/memory"
	"github.com/marmos91/dittocat/pkg/store/content"
	contentFs "github.com/marmos91/dittocat/pkg/store/content/fs"
	contentMemory "github.com/marmos91/dittocat/pkg/store/content/memory"
	contentS3 "github.com/marmos91/dittocat/pkg/store/content/s3"
)

// catalogInfo is the identity handed to a catalog provider.
type catalogInfo struct {
	ID          string
	Title       string
	Version     string
	Description string
}

// CreateCatalogProvider creates the local catalog provider.
//
// Supported types:
//   - "memory": pkg/store/catalog/memory (ephemeral)
//   - "badger": pkg/store/catalog/badger (persistent)
//
// Badger providers hold the database open; close them through io.Closer.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Complete configuration
//
// Returns:
//   - catalog.CatalogProvider: Initialized provider
//   - error: Configuration or initialization error
func CreateCatalogProvider(ctx context.Context, cfg *Config) (catalog.CatalogProvider, error) {
	info := catalogInfo{
		ID:          cfg.Framework.ID,
		Title:       cfg.Framework.Title,
		Version:     cfg.Framework.Version,
		Description: cfg.Framework.Description,
	}
	return createCatalog(ctx, info, cfg.Catalog.Type, cfg.Catalog.Badger)
}

// createCatalog creates a catalog of the given type with info as identity.
func createCatalog(ctx context.Context, info catalogInfo, kind string, badgerOptions map[string]any) (catalog.CatalogProvider, error) {
	switch kind {
	case "memory":
		return createMemoryCatalog(ctx, info)
	case "badger":
		return createBadgerCatalog(ctx, info, badgerOptions)
	default:
		return nil, fmt.Errorf("unknown catalog type: %q (supported: memory, badger)", kind)
	}
}

func createMemoryCatalog(ctx context.Context, info catalogInfo) (catalog.CatalogProvider, error) {
	provider, err := catalogMemory.NewMemoryCatalogProvider(ctx, catalogMemory.MemoryCatalogProviderConfig{
		ID:          info.ID,
		Title:       info.Title,
		Version:     info.Version,
		Description: info.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory catalog: %w", err)
	}
	return provider, nil
}

// createBadgerCatalog creates a BadgerDB-backed catalog.
func createBadgerCatalog(ctx context.Context, info catalogInfo, options map[string]any) (catalog.CatalogProvider, error) {
	var providerCfg catalogBadger.BadgerCatalogProviderConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &providerCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode badger catalog options: %w", err)
	}

	if providerCfg.DBPath == "" && !providerCfg.InMemory {
		return nil, fmt.Errorf("badger catalog: db_path is required")
	}

	// Identity always comes from the owning section
	providerCfg.ID = info.ID
	providerCfg.Title = info.Title
	providerCfg.Version = info.Version
	providerCfg.Description = info.Description

	provider, err := catalogBadger.NewBadgerCatalogProvider(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger catalog: %w", err)
	}

	logger.Debug("Badger catalog %q opened at %s", info.ID, providerCfg.DBPath)
	return provider, nil
}

// CreateContentStore creates the content store behind the storage
// provider.
//
// This factory function uses the Type field to determine which store
// implementation to create, then decodes the type-specific configuration
// from the corresponding map.
//
// Supported types:
//   - "filesystem": pkg/store/content/fs (local filesystem storage)
//   - "memory": pkg/store/content/memory (ephemeral)
//   - "s3": pkg/store/content/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Storage configuration
//   - s3Metrics: Observations for the S3 store. Optional.
//
// Returns:
//   - content.ContentStore: Initialized content store
//   - error: Configuration or initialization error
func CreateContentStore(ctx context.Context, cfg *StorageConfig, s3Metrics contentS3.S3Metrics) (content.ContentStore, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem)
	case "memory":
		store, err := contentMemory.NewMemoryContentStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory content store: %w", err)
		}
		return store, nil
	case "s3":
		return createS3ContentStore(ctx, cfg.S3, s3Metrics)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

// createFilesystemContentStore creates a filesystem-based content store.
func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.ContentStore, error) {
	var storeCfg struct {
		Path string `mapstructure:"path"`
	}
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	store, err := contentFs.NewFSContentStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}

	return store, nil
}

// s3StoreConfig is the YAML shape of the S3 section.
type s3StoreConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PartSize        int64  `mapstructure:"part_size"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// decodeS3Config decodes and checks the S3 section.
func decodeS3Config(options map[string]any) (s3StoreConfig, error) {
	var storeCfg s3StoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return storeCfg, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}
	if storeCfg.Bucket == "" {
		return storeCfg, fmt.Errorf("S3 content store: bucket is required")
	}
	if storeCfg.Region == "" {
		return storeCfg, fmt.Errorf("S3 content store: region is required")
	}
	if storeCfg.MaxRetries == 0 {
		storeCfg.MaxRetries = 10
	}
	return storeCfg, nil
}

// createS3ContentStore creates an S3-based content store.
func createS3ContentStore(ctx context.Context, options map[string]any, metrics contentS3.S3Metrics) (content.ContentStore, error) {
	storeCfg, err := decodeS3Config(options)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Custom endpoint for MinIO, Localstack and other compatible stores
	if storeCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials when given, the default chain otherwise
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for MinIO/Localstack
		if storeCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Content Store
	// ========================================================================

	store, err := contentS3.NewS3ContentStore(ctx, contentS3.S3ContentStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		PartSize:  storeCfg.PartSize,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}
