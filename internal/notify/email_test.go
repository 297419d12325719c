package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salesfusion/pkg/logging"
)

func TestNewSendGridSender_RequiresKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{}, nil))

	s := NewSendGridSender(SendGridConfig{APIKey: "SG.test", FromEmail: "bot@example.com"}, logging.Discard())
	require.NotNil(t, s)
	assert.Equal(t, DefaultFromName, s.fromName)
}

func TestRecordingEmailSender(t *testing.T) {
	s := NewRecordingEmailSender(logging.Discard())
	require.NoError(t, s.Send(context.Background(), EmailMessage{To: "sales@example.com", Subject: "hi"}))

	sent := s.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "sales@example.com", sent[0].To)

	sent[0].To = "changed"
	assert.Equal(t, "sales@example.com", s.Sent()[0].To)
}

func TestBuildHandoffEmail(t *testing.T) {
	alert := LeadAlert{
		SessionID:         "sess-9",
		ProspectName:      "Sam <script>",
		Company:           "Initech",
		Score:             82,
		PreviousScore:     70,
		QualifiedCriteria: []string{"Budget"},
	}
	msg := BuildHandoffEmail("sales@example.com", alert, "[2024-01-01T00:00:00Z] Prospect: hello")

	assert.Equal(t, "sales@example.com", msg.To)
	assert.Equal(t, "Ready to connect: Sam <script> (Initech) - score 82", msg.Subject)
	assert.Contains(t, msg.Body, "Email: not provided")
	assert.Contains(t, msg.Body, "Score: 82 (+12)")
	assert.Contains(t, msg.Body, "Prospect: hello")
	assert.Contains(t, msg.HTML, "Sam &lt;script&gt;")
	assert.NotContains(t, msg.HTML, "<script>")
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))

	api := &fakeSES{}
	s := NewSESSender(api, SESConfig{FromEmail: "bot@example.com"}, logging.Discard())
	err := s.Send(context.Background(), EmailMessage{To: "sales@example.com", Subject: "Lead", Body: "text", HTML: "<p>x</p>"})
	require.NoError(t, err)

	require.NotNil(t, api.input)
	assert.Equal(t, "SalesFusion <bot@example.com>", aws.ToString(api.input.FromEmailAddress))
	assert.Equal(t, []string{"sales@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "Lead", aws.ToString(api.input.Content.Simple.Subject.Data))
	assert.Equal(t, "text", aws.ToString(api.input.Content.Simple.Body.Text.Data))
	assert.Equal(t, "<p>x</p>", aws.ToString(api.input.Content.Simple.Body.Html.Data))
}

func TestSESSender_Error(t *testing.T) {
	s := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{FromEmail: "bot@example.com"}, logging.Discard())
	err := s.Send(context.Background(), EmailMessage{To: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
