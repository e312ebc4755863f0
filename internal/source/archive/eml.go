package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailbrief/internal/model"
)

var (
	blankRuns  = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)
	spaceRuns  = regexp.MustCompile(`[ \t\r\f\v\x{00a0}]+`)
	msgIDRegex = regexp.MustCompile(`<([^<>]+)>`)
)

// ParseMessage extracts the structured fields of one RFC 5322 message.
// The timestamp comes from the Date header; callers with a more reliable
// receive time overwrite it.
func ParseMessage(raw []byte) (model.MessageRecord, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return model.MessageRecord{}, fmt.Errorf("parsing message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	rec := model.MessageRecord{
		ID:         messageID(h),
		InReplyTo:  firstOf(msgIDList(h, "In-Reply-To")),
		References: msgIDList(h, "References"),
	}

	if subject, err := h.Subject(); err == nil {
		rec.Subject = strings.TrimSpace(subject)
	} else {
		rec.Subject = strings.TrimSpace(h.Get("Subject"))
	}

	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		rec.SenderName = strings.TrimSpace(addrs[0].Name)
		rec.SenderAddress = strings.TrimSpace(addrs[0].Address)
	} else if from := strings.TrimSpace(h.Get("From")); from != "" {
		rec.SenderAddress = from
	}

	if date, err := h.Date(); err == nil {
		rec.Timestamp = date.UTC()
	}

	textBody, htmlBody := readBodies(mr)
	switch {
	case strings.TrimSpace(textBody) != "":
		rec.Body = cleanText(textBody)
	case htmlBody != "":
		rec.Body = htmlToText(htmlBody)
	}

	return rec, nil
}

// readBodies walks the MIME tree and keeps the first text/plain and
// text/html inline parts. Attachments are skipped.
func readBodies(mr *mail.Reader) (textBody string, htmlBody string) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && textBody == "":
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		case contentType == "" && textBody == "":
			textBody = string(body)
		}
	}
	return textBody, htmlBody
}

func messageID(h mail.Header) string {
	if id, err := h.MessageID(); err == nil && id != "" {
		return id
	}
	return strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
}

func msgIDList(h mail.Header, key string) []string {
	if ids, err := h.MsgIDList(key); err == nil && len(ids) > 0 {
		return ids
	}

	// Some senders emit ids the strict parser rejects; fall back to the
	// bracketed tokens.
	var ids []string
	for _, m := range msgIDRegex.FindAllStringSubmatch(h.Get(key), -1) {
		if id := strings.TrimSpace(m[1]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func firstOf(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// htmlToText renders an HTML body as plain text: scripts and styles are
// dropped, block elements become line breaks and entities are decoded.
func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return cleanText(doc.Text())
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRuns.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}
