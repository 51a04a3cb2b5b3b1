package clients

import (
	"context"
	"net/http"

	"github.com/patrongate/patrongate/pkg/gateway"
)

const notifyPath = "/notify"

// Notification is one outbound message to a user. Context carries the
// template placeholders the notification backend substitutes.
type Notification struct {
	RecipientID string         `json:"recipientId"`
	EventConfig string         `json:"eventConfigName"`
	Context     map[string]any `json:"context,omitempty"`
	Text        string         `json:"text,omitempty"`
	Language    string         `json:"lang,omitempty"`
}

// Notifications talks to the notification sender. Sending is fire and
// forget at the workflow level: callers treat failures as best-effort.
type Notifications struct {
	client gateway.Client
}

func NewNotifications(client gateway.Client) *Notifications {
	return &Notifications{client: client}
}

func (n *Notifications) Send(ctx context.Context, conn *gateway.ConnectionContext, notification Notification) error {
	env, err := call(ctx, n.client, http.MethodPost, notifyPath, conn, marshalBody(notification))
	if err != nil {
		return err
	}
	return expectOK(env)
}
