package blob

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// Azure stores blobs in one Azure Blob container.
type Azure struct {
	client    *azblob.Client
	container string
}

// NewAzure connects with a connection string.
func NewAzure(connString, container string) (*Azure, error) {
	if connString == "" || container == "" {
		return nil, fmt.Errorf("op=blob.azure: %w: connection string and container required", domain.ErrInvalidArgument)
	}
	client, err := azblob.NewClientFromConnectionString(connString, nil)
	if err != nil {
		return nil, fmt.Errorf("op=blob.azure: %w", err)
	}
	return &Azure{client: client, container: container}, nil
}

// Save uploads bytes to the blob path.
func (a *Azure) Save(ctx domain.Context, path string, data []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.container, path, data, nil)
	if err != nil {
		return fmt.Errorf("op=blob.save: %w", err)
	}
	return nil
}

// Read downloads the blob; missing blobs map to ErrNotFound.
func (a *Azure) Read(ctx domain.Context, path string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, path, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("op=blob.read: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=blob.read: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("op=blob.read: %w", err)
	}
	return buf.Bytes(), nil
}

// Delete removes the blob; missing blobs are not an error.
func (a *Azure) Delete(ctx domain.Context, path string) error {
	if _, err := a.client.DeleteBlob(ctx, a.container, path, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return fmt.Errorf("op=blob.delete: %w", err)
	}
	return nil
}
