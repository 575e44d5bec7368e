package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBody(t *testing.T) {
	body, err := renderBody(Message{
		Template: TemplateVerifyEmail,
		Data: map[string]any{
			"Username": "ana",
			"Link":     "https://app.example.com/verify-email?token=abc",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Hi ana")
	assert.Contains(t, body, "https://app.example.com/verify-email?token=abc")
	assert.Contains(t, body, "24 hours")

	body, err = renderBody(Message{
		Template: TemplateResetPassword,
		Data: map[string]any{
			"Username": "ana",
			"Link":     "https://app.example.com/reset-password?token=abc",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, body, "15 minutes")
}

func TestRenderBodyEscapesUsername(t *testing.T) {
	body, err := renderBody(Message{
		Template: TemplateVerifyEmail,
		Data: map[string]any{
			"Username": "<script>alert(1)</script>",
			"Link":     "https://app.example.com/verify-email?token=abc",
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestRenderBodyUnknownTemplate(t *testing.T) {
	_, err := renderBody(Message{Template: "nope"})
	assert.Error(t, err)
}
