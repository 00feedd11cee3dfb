package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"example.com/backstage/services/partyup/config"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const fcmScope = "https://www.googleapis.com/auth/firebase.messaging"

// FCMSender delivers notifications through the Firebase Cloud Messaging HTTP v1 API
type FCMSender struct {
	client   *http.Client
	endpoint string
}

// NewFCMSender authenticates with a service account credentials file
func NewFCMSender(ctx context.Context, cfg config.PushConfig) (*FCMSender, error) {
	raw, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read push credentials")
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, fcmScope)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse push credentials")
	}

	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = creds.ProjectID
	}

	return NewFCMSenderWithClient(oauth2.NewClient(ctx, creds.TokenSource),
		fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", projectID)), nil
}

// NewFCMSenderWithClient uses an already authenticated client
func NewFCMSenderWithClient(client *http.Client, endpoint string) *FCMSender {
	return &FCMSender{client: client, endpoint: endpoint}
}

type fcmMessage struct {
	Message struct {
		Token        string            `json:"token"`
		Notification fcmNotification   `json:"notification"`
		Data         map[string]string `json:"data,omitempty"`
	} `json:"message"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

// Send delivers n to its device token
func (s *FCMSender) Send(ctx context.Context, n Notification) error {
	if n.Token == "" {
		return nil
	}

	var msg fcmMessage
	msg.Message.Token = n.Token
	msg.Message.Notification = fcmNotification{Title: n.Title, Body: n.Body, Image: n.ImageURL}
	msg.Message.Data = n.Data

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal push message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build push request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send push request")
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return errors.Errorf("push delivery failed with status %d: %s", res.StatusCode, detail)
	}
	return nil
}
