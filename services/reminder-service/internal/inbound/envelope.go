package inbound

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// InteractionButton marks a quick-reply button press.
const InteractionButton = "button"

// Envelope is the provider-independent view of one inbound event.
type Envelope struct {
	SenderPhone     string
	InteractionType string
	ButtonPayload   string
}

func (e Envelope) IsButtonReply() bool {
	return e.InteractionType == InteractionButton
}

// rawPayload covers both accepted shapes: the Cloud API notification (entry/changes/value)
// and the flat relay body ({from, type, button, payload}).
type rawPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []cloudMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`

	From    string          `json:"from"`
	Type    string          `json:"type"`
	Button  json.RawMessage `json:"button"`
	Payload string          `json:"payload"`
}

type cloudMessage struct {
	From   string `json:"from"`
	Type   string `json:"type"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
}

// Normalize decodes a webhook body into an Envelope.
func Normalize(body []byte) (Envelope, error) {
	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("decode webhook body: %w", err)
	}
	if msg, ok := firstCloudMessage(raw); ok {
		return fromCloudMessage(msg), nil
	}
	return fromFlat(raw)
}

func firstCloudMessage(raw rawPayload) (cloudMessage, bool) {
	for _, e := range raw.Entry {
		for _, c := range e.Changes {
			if len(c.Value.Messages) > 0 {
				return c.Value.Messages[0], true
			}
		}
	}
	return cloudMessage{}, false
}

func fromCloudMessage(m cloudMessage) Envelope {
	env := Envelope{SenderPhone: strings.TrimSpace(m.From), InteractionType: m.Type}
	switch {
	case m.Type == "button" && m.Button != nil:
		env.InteractionType = InteractionButton
		env.ButtonPayload = firstNonEmpty(m.Button.Payload, m.Button.Text)
	case m.Type == "interactive" && m.Interactive != nil && m.Interactive.Type == "button_reply" && m.Interactive.ButtonReply != nil:
		env.InteractionType = InteractionButton
		env.ButtonPayload = m.Interactive.ButtonReply.ID
	}
	return env
}

func fromFlat(raw rawPayload) (Envelope, error) {
	env := Envelope{SenderPhone: strings.TrimSpace(raw.From), InteractionType: strings.TrimSpace(raw.Type)}

	payload := strings.TrimSpace(raw.Payload)
	if b := bytes.TrimSpace(raw.Button); len(b) > 0 && !bytes.Equal(b, []byte("null")) {
		var code string
		if err := json.Unmarshal(b, &code); err == nil {
			payload = firstNonEmpty(code, payload)
		} else {
			var obj struct {
				Payload string `json:"payload"`
				Text    string `json:"text"`
			}
			if err := json.Unmarshal(b, &obj); err != nil {
				return Envelope{}, fmt.Errorf("decode button: %w", err)
			}
			payload = firstNonEmpty(obj.Payload, obj.Text, payload)
		}
	}

	switch env.InteractionType {
	case "", InteractionButton, "button_reply", "interactive":
		if payload != "" {
			env.InteractionType = InteractionButton
			env.ButtonPayload = payload
		}
	}
	return env, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
