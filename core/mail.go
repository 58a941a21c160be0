package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var (
	templates   = make(map[string]emailTemplate)
	templatesMu sync.RWMutex
)

type (
	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	EmailMessage struct {
		To      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// RegisterEmailTemplate parses and registers a named text + html email template pair.
// It panics on malformed templates: they are registered at init time.
func RegisterEmailTemplate(name, text, html string) {
	tmpl := emailTemplate{
		text: texttmpl.Must(texttmpl.New(name).Option("missingkey=error").Parse(text)),
		html: htmltmpl.Must(htmltmpl.New(name).Option("missingkey=error").Parse(html)),
	}
	templatesMu.Lock()
	templates[name] = tmpl
	templatesMu.Unlock()
}

func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	templatesMu.RLock()
	tmpl, ok := templates[m.TemplateName]
	templatesMu.RUnlock()
	if !ok {
		return errors.Errorf("email template %q not registered", m.TemplateName)
	}

	var buff bytes.Buffer
	if m.BodyStr == "" {
		if err := tmpl.text.Execute(&buff, m.TemplateData); err != nil {
			return errors.Wrap(err, "rendering text content")
		}
		m.TextContent = buff.String()
		buff.Reset()
	}
	if err := tmpl.html.Execute(&buff, m.TemplateData); err != nil {
		return errors.Wrap(err, "rendering html content")
	}
	m.HTMLContent = buff.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
