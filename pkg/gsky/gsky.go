// Package gsky sends layer ingest commands to a GSKY map server webhook.
package gsky

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// SignatureHeader carries the hex encoded HMAC-SHA256 of the request body.
const SignatureHeader = "X-Gsky-Signature"

// Payload is a single ingest command.
type Payload struct {
	Namespace string
	Path      string
	Datatype  string
	Args      string
}

// Values returns the payload as form values.
func (p Payload) Values() url.Values {
	values := url.Values{}
	values.Set("namespace", p.Namespace)
	values.Set("path", p.Path)
	values.Set("datatype", p.Datatype)
	values.Set("args", p.Args)
	return values
}

// Notifier sends ingest commands.
type Notifier interface {
	// SendIngest returns false without an error when the webhook is not configured.
	SendIngest(context.Context, Payload) (bool, error)
}

type webhookNotifier struct {
	client *fetch.Client
	logger hclog.Logger
	secret string
	url    string
}

// NewNotifier returns a notifier posting to the webhook URL.
func NewNotifier(logger hclog.Logger, client *fetch.Client, webhookURL, secret string) Notifier {
	return &webhookNotifier{
		client: client,
		logger: logger,
		secret: secret,
		url:    webhookURL,
	}
}

// Sign returns the hex encoded HMAC-SHA256 signature of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (n *webhookNotifier) SendIngest(ctx context.Context, payload Payload) (bool, error) {
	if n.url == "" || n.secret == "" {
		n.logger.Debug("gsky webhook not configured, ingest command not sent", "namespace", payload.Namespace)
		return false, nil
	}
	body := []byte(payload.Values().Encode())
	resp, err := n.client.Do(ctx, fetch.Request{
		Method: http.MethodPost,
		URL:    n.url,
		Headers: map[string]string{
			"Content-Type":  "application/x-www-form-urlencoded",
			SignatureHeader: Sign(n.secret, body),
		},
		Body: bytes.NewReader(body),
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed sending ingest command for namespace %s", payload.Namespace)
	}
	defer resp.Body.Close()
	response, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	n.logger.Info("ingest command sent", "namespace", payload.Namespace, "response", string(response))
	return true, nil
}
