package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ClientConfig struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
}

// Client talks to the WhatsApp Cloud API. Credentials come from the tenant configuration
// on every call, so one client serves any tenant.
type Client struct {
	baseURL    string
	apiVersion string
	http       *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		version = "v20.0"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiVersion: version,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type outboundMessage struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Template         *templateBody `json:"template,omitempty"`
	Text             *textBody     `json:"text,omitempty"`
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Payload string `json:"payload,omitempty"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendTemplatedReminder sends the tenant's approved template with the patient name and
// appointment time as body parameters and CONFIRM/CANCEL quick-reply buttons.
func (c *Client) SendTemplatedReminder(ctx context.Context, phone, patientName, appointmentTime string, cfg model.TenantConfig) (SendResult, error) {
	msg := outboundMessage{
		MessagingProduct: "whatsapp",
		To:               NormalizeRecipient(phone),
		Type:             "template",
		Template: &templateBody{
			Name:     cfg.TemplateName,
			Language: templateLanguage{Code: cfg.TemplateLanguage()},
			Components: []templateComponent{
				{
					Type: "body",
					Parameters: []templateParameter{
						{Type: "text", Text: patientName},
						{Type: "text", Text: appointmentTime},
					},
				},
				quickReply(0, PayloadConfirm),
				quickReply(1, PayloadCancel),
			},
		},
	}
	return c.send(ctx, msg, cfg)
}

// SendFreeText sends a plain text message. The provider only accepts it inside the 24h
// window after the recipient's last message; see IsOutsideWindow.
func (c *Client) SendFreeText(ctx context.Context, phone, message string, cfg model.TenantConfig) (SendResult, error) {
	msg := outboundMessage{
		MessagingProduct: "whatsapp",
		To:               NormalizeRecipient(phone),
		Type:             "text",
		Text:             &textBody{Body: message},
	}
	return c.send(ctx, msg, cfg)
}

func quickReply(index int, payload string) templateComponent {
	return templateComponent{
		Type:    "button",
		SubType: "quick_reply",
		Index:   fmt.Sprintf("%d", index),
		Parameters: []templateParameter{
			{Type: "payload", Payload: payload},
		},
	}
}

func (c *Client) send(ctx context.Context, msg outboundMessage, cfg model.TenantConfig) (SendResult, error) {
	if msg.To == "" {
		return SendResult{}, errors.New("whatsapp: recipient is empty")
	}
	if missing := cfg.MissingFields(); len(missing) > 0 && !(msg.Type == "text" && onlyTemplateMissing(missing)) {
		return SendResult{}, fmt.Errorf("whatsapp: tenant config missing %s", strings.Join(missing, ", "))
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return SendResult{}, err
	}
	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, strings.TrimSpace(cfg.SenderNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))

	resp, err := c.http.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("whatsapp: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return SendResult{}, fmt.Errorf("whatsapp: %s: read body: %w", resp.Status, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		de := &DeliveryError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
			de.Code = er.Error.Code
			de.Message = er.Error.Message
		}
		return SendResult{}, de
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return SendResult{}, fmt.Errorf("whatsapp: decode response: %w", err)
	}
	result := SendResult{Success: true}
	if len(sr.Messages) > 0 {
		result.ProviderMessageID = sr.Messages[0].ID
	}
	return result, nil
}

// onlyTemplateMissing allows free text for tenants that have credentials but no template.
func onlyTemplateMissing(missing []string) bool {
	return len(missing) == 1 && missing[0] == "templateName"
}
