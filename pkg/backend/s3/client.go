package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/virtfs/pkg/logger"
)

// endpointURL returns the base endpoint for an authority, or "" for the
// default AWS endpoint.
func (d *Driver) endpointURL(authority string) string {
	if authority == AWSAuthority {
		return ""
	}
	if d.cfg.UseSSL {
		return "https://" + authority
	}
	return "http://" + authority
}

// newClient builds an S3 client for the endpoint named by authority.
func (d *Driver) newClient(ctx context.Context, authority, region string) (API, error) {
	if d.cfg.Client != nil {
		return instrument(d.cfg.Client, d.cfg.Metrics), nil
	}

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(region),
	}

	if d.cfg.AccessKeyID != "" && d.cfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			d.cfg.AccessKeyID,
			d.cfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := d.cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := d.endpointURL(authority)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Debug("S3 client created: endpoint=%q region=%s", endpoint, region)
	return instrument(client, d.cfg.Metrics), nil
}
