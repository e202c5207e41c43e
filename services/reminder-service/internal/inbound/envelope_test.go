package inbound

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Envelope
	}{
		{
			name: "flat string button",
			body: `{"from":"525512345678","button":"CONFIRM"}`,
			want: Envelope{SenderPhone: "525512345678", InteractionType: InteractionButton, ButtonPayload: "CONFIRM"},
		},
		{
			name: "flat object button",
			body: `{"from":"525512345678","type":"button","button":{"payload":"CANCEL","text":"Cancelar"}}`,
			want: Envelope{SenderPhone: "525512345678", InteractionType: InteractionButton, ButtonPayload: "CANCEL"},
		},
		{
			name: "flat top-level payload",
			body: `{"from":"525512345678","payload":"CONFIRM"}`,
			want: Envelope{SenderPhone: "525512345678", InteractionType: InteractionButton, ButtonPayload: "CONFIRM"},
		},
		{
			name: "flat text message",
			body: `{"from":"525512345678","type":"text"}`,
			want: Envelope{SenderPhone: "525512345678", InteractionType: "text"},
		},
		{
			name: "flat missing sender",
			body: `{"button":"CONFIRM"}`,
			want: Envelope{InteractionType: InteractionButton, ButtonPayload: "CONFIRM"},
		},
		{
			name: "cloud template button",
			body: `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"messaging_product":"whatsapp","messages":[{"from":"525512345678","id":"wamid.X","type":"button","button":{"payload":"CONFIRM","text":"Confirmar"}}]}}]}]}`,
			want: Envelope{SenderPhone: "525512345678", InteractionType: InteractionButton, ButtonPayload: "CONFIRM"},
		},
		{
			name: "cloud interactive button reply",
			body: `{"entry":[{"changes":[{"value":{"messages":[{"from":"525512345678","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"CANCEL","title":"Cancelar"}}}]}}]}]}`,
			want: Envelope{SenderPhone: "525512345678", InteractionType: InteractionButton, ButtonPayload: "CANCEL"},
		},
		{
			name: "cloud text message",
			body: `{"entry":[{"changes":[{"value":{"messages":[{"from":"525512345678","type":"text","text":{"body":"hola"}}]}}]}]}`,
			want: Envelope{SenderPhone: "525512345678", InteractionType: "text"},
		},
		{
			name: "cloud status callback",
			body: `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.X","status":"delivered"}]}}]}]}`,
			want: Envelope{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize([]byte(tc.body))
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestNormalizeRejectsMalformedBody(t *testing.T) {
	for _, body := range []string{`{`, `{"from":"1","button":42}`} {
		if _, err := Normalize([]byte(body)); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}
