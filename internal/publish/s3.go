package publish

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rescale/fwrelease/internal/config"
	fwhttp "github.com/rescale/fwrelease/internal/http"
	"github.com/rescale/fwrelease/internal/logging"
	"github.com/rescale/fwrelease/internal/progress"
)

// Static S3 credentials. When unset the default AWS chain applies
// (environment, shared config, instance role).
const (
	S3AccessKeyEnv = "FWRELEASE_S3_ACCESS_KEY_ID"
	S3SecretKeyEnv = "FWRELEASE_S3_SECRET_ACCESS_KEY"

	// AWSCABundleEnv is the SDK's variable for extra trusted certificates.
	AWSCABundleEnv = "AWS_CA_BUNDLE"
)

// S3 uploads archives with a single PutObject. Release archives are small
// enough that multipart uploads are not worth their bookkeeping.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	retry  fwhttp.RetryConfig
	logger *logging.Logger
}

func newS3(cfg config.PublishConfig, httpClient *nethttp.Client, retry fwhttp.RetryConfig, logger *logging.Logger) (*S3, error) {
	if strings.TrimSpace(cfg.S3Bucket) == "" {
		return nil, config.ErrMissingS3Bucket
	}

	// A CA bundle makes the SDK demand its own buildable client, which cannot
	// carry the proxy or NTLM transport. The bundle is applied to our client
	// instead and the client is handed to S3 after loading.
	if bundle := strings.TrimSpace(os.Getenv(AWSCABundleEnv)); bundle != "" {
		withCA, err := fwhttp.WithCABundle(httpClient, bundle)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", AWSCABundleEnv, err)
		}
		httpClient = withCA
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
	}
	if key, secret := os.Getenv(S3AccessKeyEnv), os.Getenv(S3SecretKeyEnv); key != "" && secret != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(key, secret, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if httpClient != nil {
			o.HTTPClient = httpClient
		}
		if cfg.S3Endpoint != "" {
			// Self-hosted S3 (MinIO, Ceph) serves buckets by path.
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
		retry:  retry,
		logger: logger,
	}, nil
}

func (p *S3) Name() string { return config.PublishS3 }

// Publish uploads archivePath to s3://<bucket>/<prefix>/<env>/<name>.
func (p *S3) Publish(ctx context.Context, archivePath string) (string, error) {
	ctx, cancel, size, err := prepare(ctx, archivePath)
	if err != nil {
		return "", err
	}
	defer cancel()

	key := ObjectKey(p.prefix, archivePath)
	location := fmt.Sprintf("s3://%s/%s", p.bucket, key)

	ui := progress.NewTransferUI()
	bar := ui.AddBar(archivePath, location, size)

	err = fwhttp.ExecuteWithRetry(ctx, p.retry, func(ctx context.Context) error {
		f, err := os.Open(archivePath)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(p.bucket),
			Key:           aws.String(key),
			Body:          f,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String("application/zip"),
		})
		return err
	})
	bar.Complete(location, err)
	ui.Wait()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", archivePath, err)
	}

	p.logger.Debugf("Uploaded %s to %s", archivePath, location)
	return location, nil
}
