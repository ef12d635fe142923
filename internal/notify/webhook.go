package notify

import (
	"context"

	"github.com/go-resty/resty/v2"
)

// WebhookNotifier POSTs a JSON envelope of the Event to an arbitrary URL,
// for integrations the teacher's stack doesn't name a client library for
// (PagerDuty, generic incoming webhooks, internal dashboards).
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

// NewWebhookNotifier builds a WebhookNotifier posting to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{client: resty.New(), url: url}
}

func (w *WebhookNotifier) Notify(ctx context.Context, ev Event) error {
	_, err := w.client.R().
		SetContext(ctx).
		SetBody(ev).
		Post(w.url)
	return err
}
