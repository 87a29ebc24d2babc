package main

import (
	"fmt"
	"strings"

	"github.com/ashureev/shsh-chat/internal/domain"
)

// formatMessage renders a message and its attachment as plain text.
func formatMessage(m domain.Message) string {
	who := "you"
	if m.Sender == domain.SenderAssistant {
		who = "assistant"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s: %s", m.ID, who, m.Content)

	a := m.Attachment
	if len(a) == 0 {
		return b.String()
	}
	if c := a.Caption(); c != "" && c != m.Content {
		fmt.Fprintf(&b, "\n      %s", c)
	}
	if tags := a.Hashtags(); len(tags) > 0 {
		for i, tag := range tags {
			tags[i] = "#" + strings.TrimPrefix(tag, "#")
		}
		fmt.Fprintf(&b, "\n      %s", strings.Join(tags, " "))
	}
	if u := a.ImageURL(); u != "" {
		fmt.Fprintf(&b, "\n      image: %s", u)
	}
	if u := a.VideoURL(); u != "" {
		fmt.Fprintf(&b, "\n      video: %s", u)
	}
	return b.String()
}
