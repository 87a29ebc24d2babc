package backend

import (
	"strings"

	"github.com/ashureev/shsh-chat/internal/domain"
)

const postPrefix = "/post "

// Reply builds the assistant content for a user message. Text starting with
// "/post " becomes a structured social media post; anything else is echoed.
func Reply(text string) any {
	if body, ok := strings.CutPrefix(text, postPrefix); ok {
		return post(body)
	}
	return "You said: " + text
}

// post splits body into a caption and its #hashtags.
func post(body string) map[string]any {
	var words []string
	tags := []string{}
	for _, f := range strings.Fields(body) {
		if tag, ok := strings.CutPrefix(f, "#"); ok && tag != "" {
			tags = append(tags, tag)
			continue
		}
		words = append(words, f)
	}
	caption := strings.Join(words, " ")
	return map[string]any{
		domain.AttachmentText:     caption,
		domain.AttachmentCaption:  caption,
		domain.AttachmentHashtags: tags,
	}
}
