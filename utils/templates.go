package utils

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// TemplateData carries everything a renderer may interpolate
type TemplateData struct {
	FirstName    string
	DiscountCode string
	UnlockCode   string
	ExpiryHours  int
	LoginURL     string
	FrontendURL  string
}

// RenderedEmail is the output of a renderer: ready-to-send content
type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

// EmailRenderer is a pure function from recipient data to email content
type EmailRenderer func(data TemplateData) (*RenderedEmail, error)

type emailTemplate struct {
	subject string
	html    string
	text    string
}

// Embedded email templates, keyed by email type
var emailTemplates = map[string]emailTemplate{
	"welcome": {
		subject: "🎉 Welcome to Creator's Handbook Premium!",
		html: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
    <h1 style="color: #2563eb;">Welcome {{.FirstName}}! 🎉</h1>
    <p>Thank you for joining thousands of content creators who are transforming their content strategy!</p>
    <div style="background: #f3f4f6; padding: 20px; border-radius: 8px;">
        <h2 style="margin-top: 0;">🎁 Your Welcome Package:</h2>
        <ul>
            <li><strong>FREE Access</strong> to the first 7 chapters</li>
            <li><strong>50+ Viral Content Templates</strong></li>
            <li><strong>Platform-specific optimization guides</strong></li>
            {{if .DiscountCode}}<li><strong>10% Discount Code:</strong> <code>{{.DiscountCode}}</code></li>{{end}}
        </ul>
    </div>
    <p><a href="{{.FrontendURL}}">Start Reading Now</a></p>
</div>`,
		text: `Welcome {{.FirstName}}!

Thank you for joining thousands of content creators.

Your welcome package:
- FREE access to the first 7 chapters
- 50+ viral content templates
- Platform-specific optimization guides
{{if .DiscountCode}}- 10% discount code: {{.DiscountCode}}{{end}}

Start reading: {{.FrontendURL}}`,
	},

	"follow_up_day3": {
		subject: "🌟 Success Stories from Fellow Creators",
		html: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
    <h1>Success Stories from Fellow Creators</h1>
    <p>Hi {{.FirstName}},</p>
    <p>It's been a few days since you joined. Here are stories from creators who used the handbook to grow their audience.</p>
    <p><a href="{{.FrontendURL}}">Continue Reading</a></p>
</div>`,
		text: `Success Stories from Fellow Creators

Hi {{.FirstName}},

It's been a few days since you joined. Here are stories from creators who used the handbook to grow their audience.

Continue Reading: {{.FrontendURL}}`,
	},

	"follow_up_day7": {
		subject: "🚀 Advanced Creator Tips + Free Resources",
		html: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
    <h1>Advanced Creator Tips</h1>
    <p>Hi {{.FirstName}},</p>
    <p>Here are some advanced tips to accelerate your creator journey...</p>
    <p><a href="{{.FrontendURL}}">Continue Reading</a></p>
</div>`,
		text: `Advanced Creator Tips

Hi {{.FirstName}},

Here are some advanced tips to accelerate your creator journey...

Continue Reading: {{.FrontendURL}}`,
	},

	"follow_up_day14": {
		subject: "💭 How's your creator journey going?",
		html: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
    <h1>How's Your Creator Journey Going?</h1>
    <p>Hi {{.FirstName}},</p>
    <p>It's been 2 weeks since you started with the Creator's Handbook. How are things going?</p>
    <p>I'd love to hear about your progress and any challenges you're facing.</p>
    <p><a href="mailto:support@creators-handbook.com">Reply and let me know!</a></p>
</div>`,
		text: `How's Your Creator Journey Going?

Hi {{.FirstName}},

It's been 2 weeks since you started with the Creator's Handbook. How are things going?

I'd love to hear about your progress and any challenges you're facing.

Reply and let me know!`,
	},

	"follow_up_day30": {
		subject: "📈 New Content + Exclusive Opportunities",
		html: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
    <h1>New Content + Exclusive Opportunities</h1>
    <p>Hi {{.FirstName}},</p>
    <p>It's been a month since you joined the Creator's Handbook community!</p>
    <ul>
        <li>3 new chapters on advanced monetization</li>
        <li>Updated templates and resources</li>
        <li>Exclusive creator community access</li>
    </ul>
    <p><a href="{{.FrontendURL}}">Check out the updates</a></p>
</div>`,
		text: `New Content + Exclusive Opportunities

Hi {{.FirstName}},

It's been a month since you joined the Creator's Handbook community!

- 3 new chapters on advanced monetization
- Updated templates and resources
- Exclusive creator community access

Check out the updates: {{.FrontendURL}}`,
	},

	"unlock_code": {
		subject: "Your unlock code for Creator's Handbook",
		html: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
    <h1>Your Unlock Code</h1>
    <p>Hi {{.FirstName}},</p>
    <p>Here is your one-time code to unlock all premium chapters:</p>
    <div style="font-size: 32px; font-weight: bold; letter-spacing: 8px; text-align: center; margin: 20px 0;">{{.UnlockCode}}</div>
    <p>This code expires in {{.ExpiryHours}} hours. Don't share it with anyone.</p>
</div>`,
		text: `Your Unlock Code

Hi {{.FirstName}},

Here is your one-time code to unlock all premium chapters:

{{.UnlockCode}}

This code expires in {{.ExpiryHours}} hours. Don't share it with anyone.`,
	},

	"magic_link": {
		subject: "Your login link for Creator's Handbook",
		html: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
    <h1>Log in to Creator's Handbook</h1>
    <p>Hi {{.FirstName}},</p>
    <p>Click the button below to log in. The link is valid for 15 minutes.</p>
    <p style="text-align: center;">
        <a href="{{.LoginURL}}" style="display: inline-block; padding: 12px 24px; background-color: #2563eb; color: white; text-decoration: none; border-radius: 6px;">Log In</a>
    </p>
    <p>Or copy and paste this link into your browser:<br><small>{{.LoginURL}}</small></p>
    <p>If you didn't request this, you can safely ignore this email.</p>
</div>`,
		text: `Log in to Creator's Handbook

Hi {{.FirstName}},

Open this link to log in (valid for 15 minutes):

{{.LoginURL}}

If you didn't request this, you can safely ignore this email.`,
	},
}

// RenderEmail renders the template registered for the given email type
func RenderEmail(emailType string, data TemplateData) (*RenderedEmail, error) {
	tmpl, ok := emailTemplates[emailType]
	if !ok {
		return nil, fmt.Errorf("no template for email type %q", emailType)
	}

	if data.FirstName == "" {
		data.FirstName = "Creator"
	}

	html, err := renderHTML(emailType+"_html", tmpl.html, data)
	if err != nil {
		return nil, err
	}
	text, err := renderText(emailType+"_text", tmpl.text, data)
	if err != nil {
		return nil, err
	}

	return &RenderedEmail{Subject: tmpl.subject, HTML: html, Text: text}, nil
}

// SequenceRenderers returns the renderer registry for the delivery executor,
// one entry per sequence email type. Types absent from the registry are
// rejected as unknown rather than silently skipped.
func SequenceRenderers(frontendURL string) map[string]EmailRenderer {
	renderers := make(map[string]EmailRenderer)
	for _, emailType := range []string{
		"welcome",
		"follow_up_day3",
		"follow_up_day7",
		"follow_up_day14",
		"follow_up_day30",
	} {
		et := emailType
		renderers[et] = func(data TemplateData) (*RenderedEmail, error) {
			data.FrontendURL = frontendURL
			return RenderEmail(et, data)
		}
	}
	return renderers
}

func renderHTML(name, text string, data TemplateData) (string, error) {
	tmpl, err := htmltemplate.New(name).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// The plain-text part must come out verbatim; html/template would
// entity-escape names and break query strings in links.
func renderText(name, text string, data TemplateData) (string, error) {
	tmpl, err := texttemplate.New(name).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
