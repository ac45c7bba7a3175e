package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/valyala/fasthttp"
)

// WebhookClient posts reminder notifications to the club's outbound webhook
// (mail bridge, chat integration, whatever is configured).
type WebhookClient struct {
	url     string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookClient{
		url:     url,
		timeout: timeout,
		client: &fasthttp.Client{
			MaxConnsPerHost:     512,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

func (c *WebhookClient) Deliver(ctx context.Context, job *model.ReminderNotification) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusAccepted {
		return fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	return nil
}
