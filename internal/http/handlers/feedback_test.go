package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"adaptrix/internal/notify"
)

func TestFeedbackSend(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		mailerErr error
		status    int
		field     string
	}{
		{name: "sent", body: `{"name":"Ana","email":"ana@example.com","message":"Love it","marketing_consent":true}`, status: http.StatusOK},
		{name: "bad email", body: `{"email":"nope","message":"hi"}`, status: http.StatusBadRequest, field: "email"},
		{name: "missing message", body: `{"email":"ana@example.com"}`, status: http.StatusBadRequest, field: "message"},
		{name: "long name", body: `{"name":"` + strings.Repeat("n", 101) + `","email":"ana@example.com","message":"hi"}`, status: http.StatusBadRequest, field: "name"},
		{name: "not configured", body: `{"email":"ana@example.com","message":"hi"}`, mailerErr: notify.ErrNotConfigured, status: http.StatusServiceUnavailable},
		{name: "provider failure", body: `{"email":"ana@example.com","message":"hi"}`, mailerErr: errors.New("sendgrid: 500"), status: http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(newFakeVideos())
			mailer := &fakeMailer{err: tc.mailerErr}
			app.Mailer = mailer
			rec := httptest.NewRecorder()
			app.FeedbackSend(rec, httptest.NewRequest(http.MethodPost, "/v1/feedback", bytes.NewBufferString(tc.body)))

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			out := decode(t, rec)
			if tc.field != "" {
				fields, _ := out["fields"].(map[string]any)
				if _, ok := fields[tc.field]; !ok {
					t.Fatalf("fields = %v, want %q", fields, tc.field)
				}
			}
			if tc.status == http.StatusOK {
				if out["message_id"] != "msg-1" || len(mailer.sent) != 1 || !mailer.sent[0].MarketingConsent {
					t.Fatalf("out=%v sent=%+v", out, mailer.sent)
				}
			}
		})
	}
}
