package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/bucketdesk/bucketdesk/internal/config"
)

// CosmosItemAPI is the subset of azcosmos.ContainerClient the sink uses.
type CosmosItemAPI interface {
	CreateItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
}

// cosmosReport is the stored document. The container is partitioned on
// /operation.
type cosmosReport struct {
	ID         string `json:"id"`
	OccurredAt string `json:"occurred_at"`
	Operation  string `json:"operation"`
	Bucket     string `json:"bucket"`
	Object     string `json:"object"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
}

// CosmosSink stores events in an Azure Cosmos DB container.
type CosmosSink struct {
	client CosmosItemAPI
}

// NewCosmosSink creates a container client with key authentication.
func NewCosmosSink(cfg config.CosmosConfig) (*CosmosSink, error) {
	if cfg.Endpoint == "" || cfg.MasterKey == "" {
		return nil, errors.New("reporting.cosmos.endpoint and master_key are required")
	}
	if cfg.Database == "" || cfg.Container == "" {
		return nil, errors.New("reporting.cosmos.database and container are required")
	}

	cred, err := azcosmos.NewKeyCredential(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("creating cosmos key credential: %w", err)
	}
	client, err := azcosmos.NewClientWithKey(cfg.Endpoint, cred, &azcosmos.ClientOptions{
		ClientOptions: policy.ClientOptions{},
	})
	if err != nil {
		return nil, fmt.Errorf("creating cosmos client: %w", err)
	}
	container, err := client.NewContainer(cfg.Database, cfg.Container)
	if err != nil {
		return nil, fmt.Errorf("getting container client: %w", err)
	}
	return NewCosmosSinkWithClient(container), nil
}

// NewCosmosSinkWithClient creates a sink over a pre-configured client.
func NewCosmosSinkWithClient(client CosmosItemAPI) *CosmosSink {
	return &CosmosSink{client: client}
}

func (s *CosmosSink) Name() string { return "cosmos" }

func (s *CosmosSink) Write(ctx context.Context, ev Event) error {
	data, err := json.Marshal(cosmosReport{
		ID:         ev.ID,
		OccurredAt: ev.Time.UTC().Format(timeFormat),
		Operation:  ev.Operation,
		Bucket:     ev.Bucket,
		Object:     ev.Object,
		Message:    ev.Message(),
		RequestID:  ev.RequestID,
	})
	if err != nil {
		return fmt.Errorf("encoding error report: %w", err)
	}
	_, err = s.client.CreateItem(ctx, azcosmos.NewPartitionKeyString(ev.Operation), data, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("creating error report item: %w", err)
	}
	return nil
}

func (s *CosmosSink) Close() error { return nil }
