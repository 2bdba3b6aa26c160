package utils

import (
	"testing"

	"creatorbook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmailWelcome(t *testing.T) {
	rendered, err := RenderEmail(models.EmailTypeWelcome, TemplateData{
		FirstName:    "Ada",
		DiscountCode: "CREATOR10-DEADBEEF",
	})
	require.NoError(t, err)

	assert.Contains(t, rendered.Subject, "Welcome")
	assert.Contains(t, rendered.HTML, "Ada")
	assert.Contains(t, rendered.HTML, "CREATOR10-DEADBEEF")
	assert.Contains(t, rendered.Text, "Ada")
}

func TestRenderEmailDefaultsFirstName(t *testing.T) {
	rendered, err := RenderEmail(models.EmailTypeWelcome, TemplateData{})
	require.NoError(t, err)
	assert.Contains(t, rendered.Text, "Creator")
}

func TestRenderEmailUnlockCode(t *testing.T) {
	rendered, err := RenderEmail(models.EmailTypeUnlockCode, TemplateData{
		FirstName:   "Ada",
		UnlockCode:  "123456",
		ExpiryHours: 24,
	})
	require.NoError(t, err)
	assert.Contains(t, rendered.HTML, "123456")
	assert.Contains(t, rendered.Text, "123456")
}

func TestRenderEmailMagicLink(t *testing.T) {
	rendered, err := RenderEmail(models.EmailTypeMagicLink, TemplateData{
		LoginURL: "https://example.com/auth/verify?token=abc",
	})
	require.NoError(t, err)
	assert.Contains(t, rendered.HTML, "https://example.com/auth/verify?token=abc")
	assert.Contains(t, rendered.Text, "https://example.com/auth/verify?token=abc")
}

func TestRenderEmailTextPartIsNotEscaped(t *testing.T) {
	rendered, err := RenderEmail(models.EmailTypeWelcome, TemplateData{
		FirstName:   "O'Brien",
		FrontendURL: "https://handbook.example.com/read?ch=1&src=email",
	})
	require.NoError(t, err)

	assert.Contains(t, rendered.Text, "Welcome O'Brien!")
	assert.Contains(t, rendered.Text, "https://handbook.example.com/read?ch=1&src=email")
	assert.NotContains(t, rendered.Text, "&#39;")
	assert.NotContains(t, rendered.Text, "&amp;")
}

func TestRenderEmailMagicLinkTextKeepsQueryString(t *testing.T) {
	rendered, err := RenderEmail(models.EmailTypeMagicLink, TemplateData{
		LoginURL: "https://handbook.example.com/auth/verify?token=abc&src=email",
	})
	require.NoError(t, err)
	assert.Contains(t, rendered.Text, "?token=abc&src=email")
	assert.NotContains(t, rendered.Text, "&amp;")
}

func TestRenderEmailUnknownType(t *testing.T) {
	_, err := RenderEmail("newsletter", TemplateData{})
	assert.Error(t, err)
}

func TestSequenceRenderersCoverAllSteps(t *testing.T) {
	renderers := SequenceRenderers("https://handbook.example.com")

	for _, step := range models.DefaultSequenceSteps() {
		renderer, ok := renderers[step.EmailType]
		require.True(t, ok, "missing renderer for %s", step.EmailType)

		rendered, err := renderer(TemplateData{FirstName: "Ada"})
		require.NoError(t, err)
		assert.NotEmpty(t, rendered.Subject)
		assert.NotEmpty(t, rendered.HTML)
		assert.NotEmpty(t, rendered.Text)
	}
}
