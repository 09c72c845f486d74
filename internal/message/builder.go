package message

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
)

const (
	mailerName       = "VashSender 2.0"
	fallbackSender   = "VashSender"
	plainTextMinLen  = 50
	plainTextMaxLen  = 10000
	plainTextPadding = "\r\n\r\n--\r\nSent via VashSender"
)

// Mail is one ready-to-transmit message: the envelope pair plus the full
// signed RFC 5322 byte stream.
type Mail struct {
	From string
	To   string
	Data []byte
}

// Builder assembles MIME messages from campaign and contact data. Output is
// deterministic except for the per-call tracking id and the message id.
type Builder struct {
	trackingBaseURL string
	defaultFrom     string
	signer          Signer
}

func NewBuilder(trackingBaseURL, defaultFrom string, signer Signer) *Builder {
	return &Builder{
		trackingBaseURL: strings.TrimRight(trackingBaseURL, "/"),
		defaultFrom:     defaultFrom,
		signer:          signer,
	}
}

func (b *Builder) Build(campaign *model.Campaign, contact *model.Contact, trackingID string) (*Mail, error) {
	html := b.render(campaign, contact)
	html = sanitizeHTML(html)
	html = wrapFragment(html, campaign.Subject)
	html = b.rewriteLinks(html, trackingID)
	html = b.appendPixel(html, trackingID)

	plain := plainAlternative(html)

	from := b.resolveFrom(campaign.SenderEmail)
	domain := domainOf(from)
	sender := b.senderName(campaign, domain)

	headers := b.headers(campaign, contact, from, sender, domain, trackingID)

	data, err := assemble(headers, plain, html)
	if err != nil {
		return nil, err
	}

	if b.signer != nil {
		signed, err := b.signer.Sign(data, domain)
		if err != nil {
			// Signing is best effort: an unsigned message still delivers.
			logger.Warn("dkim signing failed, sending unsigned", "domain", domain, "error", err)
		} else {
			data = signed
		}
	}

	return &Mail{From: from, To: contact.Email, Data: data}, nil
}

// render substitutes campaign content and contact fields into the template.
// Campaigns without a template send their content directly.
func (b *Builder) render(campaign *model.Campaign, contact *model.Contact) string {
	html := campaign.TemplateHTML
	if strings.TrimSpace(html) == "" {
		html = campaign.Content
	} else {
		html = strings.ReplaceAll(html, "{{content}}", campaign.Content)
	}
	r := strings.NewReplacer(
		"{{name}}", contact.Name,
		"{{email}}", contact.Email,
		"{{subject}}", campaign.Subject,
	)
	return r.Replace(html)
}

var (
	scriptRe  = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	iframeRe  = regexp.MustCompile(`(?is)<iframe\b.*?</iframe\s*>`)
	objectRe  = regexp.MustCompile(`(?is)<object\b.*?</object\s*>`)
	handlerRe = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	jsHrefRe  = regexp.MustCompile(`(?i)(href|src)\s*=\s*("javascript:[^"]*"|'javascript:[^']*')`)
)

func sanitizeHTML(html string) string {
	html = scriptRe.ReplaceAllString(html, "")
	html = iframeRe.ReplaceAllString(html, "")
	html = objectRe.ReplaceAllString(html, "")
	html = handlerRe.ReplaceAllString(html, "")
	html = jsHrefRe.ReplaceAllString(html, `$1="#"`)
	return html
}

// wrapFragment puts a minimal document shell around bare HTML fragments so
// clients that refuse fragment bodies still render the campaign.
func wrapFragment(html, title string) string {
	if strings.Contains(strings.ToLower(html), "<html") {
		return html
	}
	return "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" +
		htmlEscape(title) + "</title></head><body>" + html + "</body></html>"
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

var hrefRe = regexp.MustCompile(`(?i)href\s*=\s*"([^"]+)"`)

// rewriteLinks routes every outbound hyperlink through the click-tracking
// redirect, carrying the tracking id and the original destination.
func (b *Builder) rewriteLinks(html, trackingID string) string {
	return hrefRe.ReplaceAllStringFunc(html, func(match string) string {
		target := hrefRe.FindStringSubmatch(match)[1]
		lower := strings.ToLower(target)
		if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(target, "#") ||
			strings.HasPrefix(target, b.trackingBaseURL) {
			return match
		}
		redirect := fmt.Sprintf("%s/t/c/%s?u=%s", b.trackingBaseURL, trackingID, url.QueryEscape(target))
		return `href="` + redirect + `"`
	})
}

func (b *Builder) appendPixel(html, trackingID string) string {
	pixel := fmt.Sprintf(`<img src="%s/t/o/%s" width="1" height="1" alt="" style="display:none"/>`,
		b.trackingBaseURL, trackingID)
	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx >= 0 {
		return html[:idx] + pixel + html[idx:]
	}
	return html + pixel
}

var (
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// plainAlternative derives the text/plain part: tags stripped, whitespace
// collapsed, padded with a short signature when too thin to pass spam
// heuristics, truncated to a bounded length.
func plainAlternative(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) < plainTextMinLen {
		text += plainTextPadding
	}
	if len(text) > plainTextMaxLen {
		text = text[:plainTextMaxLen]
	}
	return text
}

// resolveFrom collapses malformed double-@ input to the first local@domain
// pair. When no usable pair survives, the configured default address wins.
func (b *Builder) resolveFrom(sender string) string {
	parts := strings.Split(strings.TrimSpace(sender), "@")
	if len(parts) >= 2 {
		local := strings.TrimSpace(parts[0])
		domain := strings.TrimSpace(parts[1])
		if local != "" && domain != "" {
			return local + "@" + domain
		}
	}
	return b.defaultFrom
}

func domainOf(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}

// senderName derives the display name: campaign override, then the
// capitalized sender domain, then a literal fallback.
func (b *Builder) senderName(campaign *model.Campaign, domain string) string {
	if name := sanitizeHeader(campaign.SenderName); name != "" {
		return name
	}
	if domain != "" {
		base := domain
		if i := strings.IndexByte(base, '.'); i > 0 {
			base = base[:i]
		}
		return strings.ToUpper(base[:1]) + base[1:]
	}
	return fallbackSender
}

var headerUnsafeRe = regexp.MustCompile(`[^\x20-\x7e\p{L}\p{N} .,'-]`)

func sanitizeHeader(s string) string {
	s = strings.NewReplacer("\r", "", "\n", "", `"`, "").Replace(s)
	s = headerUnsafeRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func (b *Builder) headers(campaign *model.Campaign, contact *model.Contact, from, sender, domain, trackingID string) []headerField {
	now := time.Now()
	return []headerField{
		{"From", fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", sender), from)},
		{"To", contact.Email},
		{"Subject", mime.QEncoding.Encode("utf-8", campaign.Subject)},
		{"Message-ID", messageID(now, domain)},
		{"Date", now.Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"X-Mailer", mailerName},
		{"List-Unsubscribe", fmt.Sprintf("<%s/unsubscribe/%s>", b.trackingBaseURL, trackingID)},
		{"List-Unsubscribe-Post", "List-Unsubscribe=One-Click"},
		{"Precedence", "bulk"},
		{"X-Report-Abuse", "abuse@" + domain},
	}
}

type headerField struct {
	Name  string
	Value string
}

func messageID(now time.Time, domain string) string {
	suffix := make([]byte, 6)
	_, _ = rand.Read(suffix)
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%d.%s@%s>", now.UnixNano(), hex.EncodeToString(suffix), domain)
}

// assemble writes the multipart/alternative body under the given headers,
// CRLF-terminated throughout, quoted-printable for both parts.
func assemble(headers []headerField, plain, html string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := writePart(mw, "text/plain; charset=utf-8", plain); err != nil {
		return nil, err
	}
	if err := writePart(mw, "text/html; charset=utf-8", html); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&msg, "%s: %s\r\n", h.Name, h.Value)
	}
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func writePart(mw *multipart.Writer, contentType, content string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	qw := quotedprintable.NewWriter(pw)
	if _, err := qw.Write([]byte(content)); err != nil {
		return err
	}
	return qw.Close()
}
