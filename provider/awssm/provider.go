// Package awssm implements cache.Provider on top of AWS Secrets Manager.
package awssm

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/dailyyoga/secretcache/cache"
	"github.com/dailyyoga/secretcache/logger"
	"go.uber.org/zap"
)

// resourceNotFound is the error code Secrets Manager uses for a missing
// secret or version stage
const resourceNotFound = "ResourceNotFoundException"

// API is the subset of the Secrets Manager client used by Provider.
// *secretsmanager.Client satisfies it.
type API interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Provider fetches secret versions from AWS Secrets Manager
type Provider struct {
	log logger.Logger
	api API
}

var _ cache.Provider = (*Provider)(nil)

// New creates a Provider using api
func New(log logger.Logger, api API) (*Provider, error) {
	if api == nil {
		return nil, ErrNilClient
	}
	return &Provider{log: logger.OrNop(log), api: api}, nil
}

// NewFromConfig loads the AWS SDK configuration described by cfg and creates
// a Provider backed by a Secrets Manager client
func NewFromConfig(ctx context.Context, log logger.Logger, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, ErrLoadAWSConfig(err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.OrNop(log).Info("aws secrets manager provider created",
		zap.String("region", awsCfg.Region),
		zap.String("endpoint", cfg.Endpoint),
	)
	return New(log, client)
}

// FetchSecretValue returns the version of secretID labelled versionStage.
// A missing secret or stage is reported as cache.ErrNotFound.
func (p *Provider) FetchSecretValue(ctx context.Context, secretID, versionStage string) (*cache.SecretValue, error) {
	out, err := p.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(versionStage),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, cache.ErrSecretNotFound(secretID, versionStage)
		}
		p.log.Debug("get secret value failed",
			zap.String("secret_id", secretID),
			zap.String("version_stage", versionStage),
			zap.Error(err),
		)
		return nil, ErrGetSecretValue(secretID, err)
	}
	return toSecretValue(out)
}

func isNotFound(err error) bool {
	var notFound *smtypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == resourceNotFound
}

func toSecretValue(out *secretsmanager.GetSecretValueOutput) (*cache.SecretValue, error) {
	if out.SecretString == nil && out.SecretBinary == nil {
		return nil, ErrEmptySecret
	}
	v := &cache.SecretValue{
		Name:          aws.ToString(out.Name),
		ARN:           aws.ToString(out.ARN),
		VersionID:     aws.ToString(out.VersionId),
		VersionStages: out.VersionStages,
		SecretString:  out.SecretString,
		SecretBinary:  out.SecretBinary,
		CreatedDate:   aws.ToTime(out.CreatedDate),
	}
	if v.SecretString != nil {
		v.SecretBinary = nil
	}
	return v, nil
}
