package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/BearBump/CalibBox/internal/integrations/notifier"
)

// Client keeps notices in memory. With FailOneIn > 0 roughly one notice in
// FailOneIn is rejected, deterministically by equipment id.
type Client struct {
	FailOneIn uint32

	mu   sync.Mutex
	sent []notifier.DueNotice
}

func New() *Client { return &Client{} }

func (c *Client) SendDueNotice(ctx context.Context, n notifier.DueNotice) error {
	if c.FailOneIn > 0 {
		h := fnv.New32a()
		_, _ = fmt.Fprintf(h, "%d", n.EquipmentID)
		if h.Sum32()%c.FailOneIn == 0 {
			return fmt.Errorf("fake notifier rejected equipment %d", n.EquipmentID)
		}
	}
	c.mu.Lock()
	c.sent = append(c.sent, n)
	c.mu.Unlock()
	return nil
}

func (c *Client) Sent() []notifier.DueNotice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notifier.DueNotice, len(c.sent))
	copy(out, c.sent)
	return out
}
