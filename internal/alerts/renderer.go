package alerts

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"

	"github.com/yourlook/safeline/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer renders alerts from templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":       titleCase,
		"upper":       strings.ToUpper,
		"lower":       strings.ToLower,
		"formatTime":  formatTime,
		"statusEmoji": statusEmoji,
		"mapsURL":     mapsURL,
		"escapeHTML":  html.EscapeString,
	}

	r := &Renderer{templates: make(map[string]*template.Template)}

	channelTypes := []string{"email", "telegram", "webhook"}
	messageTypes := []string{"alert", "resolved"}

	for _, channel := range channelTypes {
		for _, msg := range messageTypes {
			name := fmt.Sprintf("%s_%s", channel, msg)
			filename := fmt.Sprintf("templates/%s.tmpl", name)

			content, err := templatesFS.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", filename, err)
			}

			tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", name, err)
			}

			r.templates[name] = tmpl
		}
	}

	return r, nil
}

// Render renders an alert payload for the specified channel type.
// Returns subject and body.
func (r *Renderer) Render(channelType domain.ChannelType, payload AlertPayload) (subject, body string, err error) {
	subject = r.renderSubject(payload)

	templateName := fmt.Sprintf("%s_%s", channelType, payload.MessageType)
	tmpl, ok := r.templates[templateName]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", templateName, err)
	}

	body = strings.TrimSpace(buf.String())
	return subject, body, nil
}

// renderSubject generates the alert subject line.
func (r *Renderer) renderSubject(payload AlertPayload) string {
	switch payload.MessageType {
	case MessageTypeResolved:
		return fmt.Sprintf("[Resolved] Emergency reported by %s", payload.Incident.InitiatorName)
	default:
		return fmt.Sprintf("[EMERGENCY] %s needs help", payload.Incident.InitiatorName)
	}
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func statusEmoji(status string) string {
	switch strings.ToLower(status) {
	case "active":
		return "🚨"
	case "acknowledged":
		return "👀"
	case "in-progress":
		return "🚗"
	case "resolved":
		return "✅"
	default:
		return "📋"
	}
}

func mapsURL(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%f,%f", lat, lng)
}
