package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/CalibBox/internal/integrations/notifier"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const duePath = "/v1/notices/due"

// Client posts due-date notices to an external notification gateway.
type Client struct {
	httpc *resty.Client
	log   *zap.Logger
}

type ackBody struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

func New(baseURL, apiKey string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	if log == nil {
		log = zap.NewNop()
	}
	httpc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		httpc.SetHeader("X-Api-Key", apiKey)
	}
	return &Client{httpc: httpc, log: log}
}

func (c *Client) SendDueNotice(ctx context.Context, n notifier.DueNotice) error {
	var ack ackBody
	resp, err := c.httpc.R().
		SetContext(ctx).
		SetBody(n).
		SetResult(&ack).
		Post(duePath)
	if err != nil {
		return errors.Wrap(err, "post due notice")
	}
	if resp.IsError() {
		return fmt.Errorf("notifier http %d", resp.StatusCode())
	}
	if ack.Status != "" && ack.Status != "ok" {
		return fmt.Errorf("notifier status=%s", ack.Status)
	}

	c.log.Debug("due notice delivered",
		zap.Int64("equipment_id", n.EquipmentID),
		zap.Int64("owner_id", n.OwnerID),
		zap.String("notice_id", ack.ID),
	)
	return nil
}
