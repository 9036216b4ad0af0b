package report

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"

	"github.com/vk/gridci/internal/result"
)

// Notifier posts finished run results as JSON to a webhook endpoint.
type Notifier struct {
	client *resty.Client
	url    string
}

// NewNotifier builds a notifier for the given webhook URL.
func NewNotifier(url string) *Notifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Notifier{client: client, url: url}
}

// Notify delivers the run result. A non-2xx response is an error so the
// caller can decide whether delivery failures matter.
func (n *Notifier) Notify(ctx context.Context, run *result.RunResult) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(run).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("posting run report: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook rejected run report: %s", resp.Status())
	}
	return nil
}

// Close releases the notifier's HTTP resources.
func (n *Notifier) Close() error {
	return n.client.Close()
}
