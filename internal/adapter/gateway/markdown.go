package gateway

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"webchat/internal/domain"
)

const cursorHTML = `<span class="cursor">` + domain.Cursor + `</span>`

// Markdown renders assistant replies to sanitized HTML.
type Markdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewMarkdown creates a renderer with GitHub-flavoured extensions.
func NewMarkdown() *Markdown {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre")
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		policy: policy,
	}
}

// Render converts text to HTML. When cursor is set the streaming cursor is
// appended after the sanitized body.
func (m *Markdown) Render(text string, cursor bool) string {
	var buf bytes.Buffer
	var out string
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		out = "<p>" + html.EscapeString(text) + "</p>"
	} else {
		out = string(m.policy.SanitizeBytes(buf.Bytes()))
	}
	if cursor {
		out = strings.TrimRight(out, "\n") + cursorHTML
	}
	return out
}

// streamSink shows a reply in progress on one client.
type streamSink struct {
	client *Client
	md     *Markdown
}

func newStreamSink(c *Client, md *Markdown) *streamSink {
	return &streamSink{client: c, md: md}
}

// Update shows a reply in progress; text ends with domain.Cursor.
func (s *streamSink) Update(text string) error {
	body := strings.TrimSuffix(text, domain.Cursor)
	return s.client.Emit(EventStreamUpdate, domain.StreamUpdatePayload{
		Text: text,
		HTML: s.md.Render(body, true),
	})
}

// Final shows the finished reply as is.
func (s *streamSink) Final(text string) error {
	return s.client.Emit(EventStreamUpdate, domain.StreamUpdatePayload{
		Text:  text,
		HTML:  s.md.Render(text, false),
		Final: true,
	})
}

var _ domain.FinalSink = (*streamSink)(nil)
