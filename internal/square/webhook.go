package square

// WebhookEvent is the envelope Square posts to the webhook endpoint. Only
// the fields the reconciler routes on are decoded; everything else is
// re-fetched from the API so handling never trusts webhook payload detail.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			Payment *WebhookObject `json:"payment,omitempty"`
			Refund  *WebhookObject `json:"refund,omitempty"`
		} `json:"object"`
	} `json:"data"`
}

// WebhookObject is the id/status pair carried for both payments and refunds.
type WebhookObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
