// Package msgraph sends followup emails through the Microsoft Graph
// sendMail endpoint using the OAuth2 client-credentials flow.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/ignite/followup-engine/internal/domain"
	"github.com/ignite/followup-engine/internal/pkg/logger"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	tokenURLFmt    = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
)

// Config holds the app-registration credentials for a tenant.
type Config struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// BaseURL overrides the Graph endpoint, used by tests.
	BaseURL string `yaml:"base_url,omitempty"`

	// DryRun logs instead of sending. Messages are rendered and threaded
	// exactly as a live send would be.
	DryRun bool `yaml:"dry_run"`
}

// Configured reports whether the credentials are complete enough to send.
func (c Config) Configured() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// Client sends mail as the message's From mailbox. It implements the
// scheduler's Transport contract.
type Client struct {
	baseURL    string
	dryRun     bool
	httpClient *http.Client
}

// New creates a Graph mail client. The underlying http.Client refreshes
// its token automatically.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// Without credentials (dry-run, local stubs) a plain client is enough;
	// the token exchange only happens on a live send.
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.Configured() {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf(tokenURLFmt, cfg.TenantID),
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dryRun:     cfg.DryRun,
		httpClient: httpClient,
	}
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	Subject string `json:"subject"`
	Body    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	ToRecipients   []graphRecipient `json:"toRecipients"`
	ConversationID string           `json:"conversationId,omitempty"`
}

type sendMailRequest struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

// Send delivers one rendered message via POST /users/{from}/sendMail.
// A non-empty ConversationID threads the message as a reply at the provider.
func (c *Client) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("graph send: no recipients")
	}

	if c.dryRun {
		logger.Info("dry-run send",
			"from", logger.RedactAddress(msg.From),
			"recipients", fmt.Sprint(len(msg.To)),
			"subject", msg.Subject)
		return nil
	}

	req := sendMailRequest{SaveToSentItems: true}
	req.Message.Subject = msg.Subject
	req.Message.Body.ContentType = "Text"
	req.Message.Body.Content = msg.Body
	req.Message.ConversationID = msg.ConversationID
	for _, to := range msg.To {
		var r graphRecipient
		r.EmailAddress.Address = to
		req.Message.ToRecipients = append(req.Message.ToRecipients, r)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("graph send: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/users/%s/sendMail", c.baseURL, msg.From)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("graph send: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("graph send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graph send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
