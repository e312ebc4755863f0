package classify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nhle/mailbrief/internal/model"
)

// buildContext renders what the service sees for one item. Threads are
// sent in full, oldest first, each message framed with sender and date.
func buildContext(it Item, maxBody int) model.ItemContext {
	g := it.Group
	latest := g.Latest()

	ctx := model.ItemContext{
		Key:      it.Key,
		IsThread: g.IsThread,
		Subject:  g.Subject,
		Sender:   formatSender(latest),
	}

	var sb strings.Builder
	if !g.IsThread {
		fmt.Fprintf(&sb, "From: %s\n", formatSender(latest))
		fmt.Fprintf(&sb, "Date: %s\n", latest.Timestamp.Format("Mon, 02 Jan 2006 15:04"))
		fmt.Fprintf(&sb, "Subject: %s\n", latest.Subject)
		sb.WriteString("Body:\n")
		sb.WriteString(truncate(latest.Body, maxBody))
		ctx.Text = sb.String()
		return ctx
	}

	fmt.Fprintf(&sb, "Participants: %s\n", strings.Join(g.Participants, ", "))
	for i, m := range g.Messages {
		fmt.Fprintf(&sb, "\n--- Message %d of %d ---\n", i+1, len(g.Messages))
		fmt.Fprintf(&sb, "From: %s\n", formatSender(m))
		fmt.Fprintf(&sb, "Date: %s\n", m.Timestamp.Format("Mon, 02 Jan 2006 15:04"))
		sb.WriteString(truncate(m.Body, maxBody))
		sb.WriteString("\n")
	}
	ctx.Text = sb.String()
	return ctx
}

func formatSender(m model.MessageRecord) string {
	if m.SenderName != "" && m.SenderAddress != "" {
		return fmt.Sprintf("%s <%s>", m.SenderName, m.SenderAddress)
	}
	return m.Sender()
}

// truncate cuts s to at most n runes. n <= 0 means no limit.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
