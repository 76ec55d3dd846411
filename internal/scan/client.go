package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/antidetect/automation/pkg/config"
	"github.com/google/wire"
	"go.uber.org/zap"
)

var Provider = wire.NewSet(NewClient)

// Client 指纹扫描引擎的 HTTP 客户端。评分/一致性引擎是外部协作方，
// 这里只负责按目标提交批次并等待结果。
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(cfg config.ScanConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type batchRequest struct {
	Label     string `json:"label"`
	BatchSize int    `json:"batch_size"`
}

// RunBatch 提交一个扫描批次，非 2xx 视为该目标失败
func (c *Client) RunBatch(ctx context.Context, label string, batchSize int) error {
	payload, err := json.Marshal(batchRequest{Label: label, BatchSize: batchSize})
	if err != nil {
		return fmt.Errorf("failed to marshal batch request: %w", err)
	}

	url := c.baseURL + "/api/v1/batches"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("scan engine unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("scan engine returned status %d for target %q", resp.StatusCode, label)
	}

	c.logger.Debug("scan batch completed",
		zap.String("label", label),
		zap.Int("batch_size", batchSize))
	return nil
}
