package i18n

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLocale(t *testing.T) {
	cases := map[string]string{
		"":                          "en",
		"de-DE,de;q=0.9,en;q=0.8":   "de",
		"fr-FR, en-US;q=0.7":        "en",
		"en;q=0.3, de;q=0.8":        "de",
		"fr, es":                    "en",
		"de;q=0":                    "en",
		"DE":                        "de",
		"en-GB;q=0.9, de-AT;q=0.9":  "en",
		"de;q=notanumber, en;q=0.1": "en",
	}
	for header, want := range cases {
		assert.Equal(t, want, NormalizeLocale(header), "header %q", header)
	}
}

func TestLocaleFromRequest(t *testing.T) {
	assert.Equal(t, DefaultLocale, LocaleFromRequest(nil))

	r := httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Accept-Language", "de")
	assert.Equal(t, "de", LocaleFromRequest(r))
}

func TestVerificationEmail(t *testing.T) {
	c := VerificationEmail("en", "123456", 24)
	assert.Equal(t, TemplateVerification, c.Template)
	assert.Equal(t, "Verify your email", c.Subject)
	assert.Contains(t, c.Text, "123456")
	assert.Contains(t, c.Text, "24 hours")
	assert.Contains(t, c.HTML, "<strong>123456</strong>")

	de := VerificationEmail("de", "654321", 24)
	assert.Equal(t, "E-Mail verifizieren", de.Subject)
	assert.Contains(t, de.Text, "654321")
}

func TestWelcomeEmail(t *testing.T) {
	c := WelcomeEmail("fr", "Ann")
	assert.Equal(t, TemplateWelcome, c.Template)
	assert.Equal(t, "Welcome aboard", c.Subject)
	assert.Contains(t, c.Text, "Hi Ann,")
	assert.Contains(t, c.HTML, "<p>Hi Ann,</p>")
}

func TestWelcomeEmailEscapesNameInHTML(t *testing.T) {
	name := `<a href="https://evil.example">Reset password</a>`
	c := WelcomeEmail("en", name)

	assert.NotContains(t, c.HTML, "<a ")
	assert.Contains(t, c.HTML, "&lt;a href=&#34;https://evil.example&#34;&gt;Reset password&lt;/a&gt;")
	assert.Contains(t, c.Text, name, "plain text keeps the name as entered")

	de := WelcomeEmail("de", "Tom & <b>Jerry</b>")
	assert.Contains(t, de.HTML, "<p>Hallo Tom &amp; &lt;b&gt;Jerry&lt;/b&gt;,</p>")
}
