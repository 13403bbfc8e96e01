// Package blob implements the byte storage port on local disk or Azure Blob.
package blob

import (
	"fmt"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// New selects the storage backend from configuration.
func New(cfg config.Config) (domain.BlobStore, error) {
	switch cfg.FileStorageType {
	case config.StorageLocal:
		return NewLocal(cfg.FileStoragePath)
	case config.StorageAzureBlob:
		return NewAzure(cfg.AzureStorageConnString, cfg.AzureStorageContainer)
	default:
		return nil, fmt.Errorf("op=blob.New: %w: unknown storage type %q", domain.ErrInvalidArgument, cfg.FileStorageType)
	}
}
