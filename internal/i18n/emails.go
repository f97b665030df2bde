package i18n

import (
	"html"
	"strconv"
	"strings"
)

const (
	TemplateVerification = "verification"
	TemplateWelcome      = "welcome"
)

type EmailContent struct {
	Template string
	Subject  string
	Text     string
	HTML     string
}

type emailStrings struct {
	VerificationSubject string
	VerificationText    string
	VerificationHTML    string

	WelcomeSubject string
	WelcomeText    string
	WelcomeHTML    string
}

var emailTranslations = map[string]emailStrings{
	"en": {
		VerificationSubject: "Verify your email",
		VerificationText:    "Your verification code is {code}. It is valid for {hours} hours.",
		VerificationHTML: "<p>Verify your email</p>" +
			"<p>Use the code below to verify your email address.</p>" +
			"<p><strong>{code}</strong></p>" +
			"<p>The code expires in {hours} hours.</p>" +
			"<p>If you did not sign up, you can ignore this email.</p>",

		WelcomeSubject: "Welcome aboard",
		WelcomeText:    "Hi {name},\n\nyour email address is verified and your account is ready to use.",
		WelcomeHTML: "<p>Hi {name},</p>" +
			"<p>Your email address is verified and your account is ready to use.</p>",
	},
	"de": {
		VerificationSubject: "E-Mail verifizieren",
		VerificationText:    "Ihr Verifizierungscode ist {code}. Er ist {hours} Stunden gültig.",
		VerificationHTML: "<p>E-Mail verifizieren</p>" +
			"<p>Verwenden Sie den untenstehenden Code, um Ihre E-Mail zu verifizieren.</p>" +
			"<p><strong>{code}</strong></p>" +
			"<p>Der Code läuft in {hours} Stunden ab.</p>" +
			"<p>Wenn Sie sich nicht registriert haben, können Sie diese E-Mail ignorieren.</p>",

		WelcomeSubject: "Willkommen",
		WelcomeText:    "Hallo {name},\n\nIhre E-Mail-Adresse ist bestätigt und Ihr Konto ist einsatzbereit.",
		WelcomeHTML: "<p>Hallo {name},</p>" +
			"<p>Ihre E-Mail-Adresse ist bestätigt und Ihr Konto ist einsatzbereit.</p>",
	},
}

func emailStringsForLocale(locale string) emailStrings {
	key := NormalizeLocale(locale)
	if val, ok := emailTranslations[key]; ok {
		return val
	}
	return emailTranslations[DefaultLocale]
}

func renderTemplate(tmpl string, values map[string]string) string {
	if tmpl == "" || len(values) == 0 {
		return tmpl
	}

	replacements := make([]string, 0, len(values)*2)
	for key, value := range values {
		replacements = append(replacements, "{"+key+"}", value)
	}
	return strings.NewReplacer(replacements...).Replace(tmpl)
}

// escapeValues returns a copy of values safe to splice into HTML bodies.
func escapeValues(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = html.EscapeString(value)
	}
	return out
}

func VerificationEmail(locale, code string, hours int) EmailContent {
	templates := emailStringsForLocale(locale)
	values := map[string]string{
		"code":  code,
		"hours": strconv.Itoa(hours),
	}
	return EmailContent{
		Template: TemplateVerification,
		Subject:  templates.VerificationSubject,
		Text:     renderTemplate(templates.VerificationText, values),
		HTML:     renderTemplate(templates.VerificationHTML, escapeValues(values)),
	}
}

func WelcomeEmail(locale, name string) EmailContent {
	templates := emailStringsForLocale(locale)
	values := map[string]string{"name": name}
	return EmailContent{
		Template: TemplateWelcome,
		Subject:  templates.WelcomeSubject,
		Text:     renderTemplate(templates.WelcomeText, values),
		HTML:     renderTemplate(templates.WelcomeHTML, escapeValues(values)),
	}
}
