package publish

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/rescale/fwrelease/internal/config"
	fwhttp "github.com/rescale/fwrelease/internal/http"
	"github.com/rescale/fwrelease/internal/logging"
	"github.com/rescale/fwrelease/internal/progress"
)

// AzureSASURLEnv holds the container SAS URL when none is configured.
const AzureSASURLEnv = "FWRELEASE_AZURE_SAS_URL"

// ErrMissingSASURL is returned when the azure target has no SAS URL.
var ErrMissingSASURL = errors.New("azure publish target needs azure_sas_url or " + AzureSASURLEnv)

// Azure uploads archives as block blobs into one container.
type Azure struct {
	client *container.Client
	prefix string
	retry  fwhttp.RetryConfig
	logger *logging.Logger
}

func newAzure(cfg config.PublishConfig, httpClient *nethttp.Client, retry fwhttp.RetryConfig, logger *logging.Logger) (*Azure, error) {
	sasURL := strings.TrimSpace(cfg.AzureSASURL)
	if sasURL == "" {
		sasURL = strings.TrimSpace(os.Getenv(AzureSASURLEnv))
	}
	if sasURL == "" {
		return nil, ErrMissingSASURL
	}
	if u, err := url.Parse(sasURL); err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid Azure SAS URL: %s", redactSAS(sasURL))
	}

	client, err := container.NewClientWithNoCredential(sasURL, &container.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &Azure{
		client: client,
		prefix: cfg.S3Prefix,
		retry:  retry,
		logger: logger,
	}, nil
}

func (p *Azure) Name() string { return config.PublishAzure }

// Publish uploads archivePath to <container>/<prefix>/<env>/<name>.
func (p *Azure) Publish(ctx context.Context, archivePath string) (string, error) {
	ctx, cancel, size, err := prepare(ctx, archivePath)
	if err != nil {
		return "", err
	}
	defer cancel()

	key := ObjectKey(p.prefix, archivePath)
	bb := p.client.NewBlockBlobClient(key)
	location := redactSAS(bb.URL())

	ui := progress.NewTransferUI()
	bar := ui.AddBar(archivePath, location, size)

	err = fwhttp.ExecuteWithRetry(ctx, p.retry, func(ctx context.Context) error {
		f, err := os.Open(archivePath)
		if err != nil {
			return err
		}
		defer f.Close()

		contentType := "application/zip"
		_, err = bb.UploadFile(ctx, f, &blockblob.UploadFileOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
			Progress: func(n int64) {
				bar.SetCurrent(n)
			},
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

// redactSAS drops the query string so tokens never reach logs.
func redactSAS(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
