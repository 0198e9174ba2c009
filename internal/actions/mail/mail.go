// Package mail is the gmail integration.
package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	netmail "net/mail"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"spokehub/internal/actions/google"
	"spokehub/internal/spoke"
	"spokehub/internal/utils"
)

const (
	Integration = "gmail"
	service     = "Gmail"
	me          = "me"

	defaultMaxResults = 10
	maxBodyLength     = 8000
)

type Summary struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
}

type Message struct {
	Summary
	To   string `json:"to"`
	Body string `json:"body"`
}

type Handler struct {
	svc *gmail.Service
}

var table = spoke.Table[*Handler]{
	"search_emails": (*Handler).search,
	"get_email":     (*Handler).get,
	"send_email":    (*Handler).send,
}

func NewFactory(clients google.ClientSource, endpoint string) spoke.Factory {
	return spoke.Factory{
		Actions: table.Actions(),
		New: func(ctx context.Context, principal string) (spoke.Handler, error) {
			hc, err := clients.Client(ctx, principal)
			if err != nil {
				return nil, err
			}
			opts := []option.ClientOption{option.WithHTTPClient(hc)}
			if endpoint != "" {
				opts = append(opts, option.WithEndpoint(endpoint))
			}
			svc, err := gmail.NewService(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("gmail service: %w", err)
			}
			return &Handler{svc: svc}, nil
		},
	}
}

func (h *Handler) SupportedActions() []string { return table.Actions() }

func (h *Handler) Execute(ctx context.Context, actionType string, params spoke.Params) spoke.Result {
	return table.Dispatch(h, ctx, actionType, params)
}

func (h *Handler) search(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	query, err := utils.GetStringPayload(p, "query")
	if err != nil {
		return nil, nil, err
	}
	maxResults, err := utils.GetOptionalInt(p, "max_results", defaultMaxResults)
	if err != nil {
		return nil, nil, err
	}

	list, err := h.svc.Users.Messages.List(me).Q(query).MaxResults(int64(maxResults)).Context(ctx).Do()
	if err != nil {
		meta, e := google.APIError(service, err, "")
		return nil, meta, e
	}

	out := make([]Summary, 0, len(list.Messages))
	for _, m := range list.Messages {
		full, err := h.svc.Users.Messages.Get(me, m.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).Do()
		if err != nil {
			meta, e := google.APIError(service, err, "")
			return nil, meta, e
		}
		out = append(out, summarize(full))
	}
	return out, map[string]any{"query": query, "total": len(out)}, nil
}

func (h *Handler) get(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	id, err := utils.GetStringPayload(p, "message_id")
	if err != nil {
		return nil, nil, err
	}
	full, err := h.svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		meta, e := google.APIError(service, err, "Email not found")
		return nil, meta, e
	}
	msg := Message{Summary: summarize(full), To: header(full.Payload, "To")}
	msg.Body = truncate(extractBody(full.Payload), maxBodyLength)
	return msg, nil, nil
}

func (h *Handler) send(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	to, err := utils.GetStringSlicePayload(p, "to")
	if err != nil {
		return nil, nil, err
	}
	if len(to) == 0 {
		return nil, nil, spoke.Invalid("payload is missing required key: 'to'")
	}
	rcpts := make([]*netmail.Address, 0, len(to))
	for _, addr := range to {
		a, err := netmail.ParseAddress(addr)
		if err != nil {
			return nil, nil, spoke.Invalid("invalid recipient %q", addr)
		}
		rcpts = append(rcpts, a)
	}
	subject, err := utils.GetStringPayload(p, "subject")
	if err != nil {
		return nil, nil, err
	}
	if strings.ContainsAny(subject, "\r\n") {
		return nil, nil, spoke.Invalid("payload key 'subject' must be a single line")
	}
	body, err := utils.GetStringPayload(p, "body")
	if err != nil {
		return nil, nil, err
	}

	raw := buildRaw(rcpts, subject, body)
	sent, err := h.svc.Users.Messages.Send(me, &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		meta, e := google.APIError(service, err, "")
		return nil, meta, e
	}
	return map[string]any{"message_id": sent.Id, "thread_id": sent.ThreadId}, map[string]any{"recipients": len(rcpts)}, nil
}

// buildRaw expects a single-line subject; non-ASCII is RFC 2047 encoded.
func buildRaw(to []*netmail.Address, subject, body string) string {
	addrs := make([]string, 0, len(to))
	for _, a := range to {
		addrs = append(addrs, a.String())
	}
	var sb strings.Builder
	sb.WriteString("To: " + strings.Join(addrs, ", ") + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	sb.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(sb.String()))
}

func summarize(m *gmail.Message) Summary {
	return Summary{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		From:     header(m.Payload, "From"),
		Subject:  header(m.Payload, "Subject"),
		Date:     header(m.Payload, "Date"),
		Snippet:  m.Snippet,
	}
}

func header(part *gmail.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody prefers text/plain and falls back to HTML rendered as text.
func extractBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if text := findPart(part, "text/plain"); text != "" {
		return strings.TrimSpace(text)
	}
	if html := findPart(part, "text/html"); html != "" {
		return htmlToText(html)
	}
	return ""
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if strings.HasPrefix(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
			return decoded
		}
	}
	for _, child := range part.Parts {
		if s := findPart(child, mimeType); s != "" {
			return s
		}
	}
	return ""
}

func decodeBase64URL(data string) (string, error) {
	// Gmail sends base64url, with or without padding
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
