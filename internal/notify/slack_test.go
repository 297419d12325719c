package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salesfusion/pkg/logging"
)

func TestNewSlackWebhook_EmptyURL(t *testing.T) {
	assert.Nil(t, NewSlackWebhook("  ", nil, nil))
}

func TestSlackWebhook_SendAlert(t *testing.T) {
	var got slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := NewSlackWebhook(srv.URL, srv.Client(), logging.Discard())
	err := hook.SendAlert(context.Background(), LeadAlert{
		SessionID:         "sess-1",
		ProspectName:      "Jordan",
		Company:           "Acme",
		Score:             80,
		PreviousScore:     55,
		QualifiedCriteria: []string{"Budget", "Timeline"},
		ReadyToConnect:    true,
	})
	require.NoError(t, err)

	assert.Contains(t, got.Text, "Ready to connect")
	assert.Contains(t, got.Text, "Jordan (Acme) scored 80")
	require.Len(t, got.Blocks, 2)
	fields := got.Blocks[1].Fields
	require.Len(t, fields, 6)
	assert.Equal(t, "*Email:*\nnot provided", fields[2].Text)
	assert.Equal(t, "*Score:*\n80 (+25)", fields[3].Text)
	assert.Equal(t, "*Qualified:*\nBudget, Timeline", fields[4].Text)
}

func TestSlackWebhook_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	hook := NewSlackWebhook(srv.URL, srv.Client(), logging.Discard())
	err := hook.SendAlert(context.Background(), LeadAlert{SessionID: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestSlackWebhook_NilReceiver(t *testing.T) {
	var hook *SlackWebhook
	assert.Error(t, hook.SendAlert(context.Background(), LeadAlert{}))
}

func TestBuildSlackPayload_Defaults(t *testing.T) {
	p := buildSlackPayload(LeadAlert{Score: 40, PreviousScore: 60})
	assert.Equal(t, "Anonymous prospect (Unknown company) scored 40", p.Text)
	assert.Equal(t, "*Score:*\n40 (-20)", p.Blocks[1].Fields[3].Text)
	assert.Equal(t, "*Qualified:*\nnone yet", p.Blocks[1].Fields[4].Text)
}
