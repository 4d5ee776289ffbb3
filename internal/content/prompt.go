package content

import (
	"fmt"
	"strings"

	"github.com/khanasif1/twooter/internal/models"
)

const (
	maxPromptChars   = 2000
	maxSummaryChars  = 300
	maxTrendingChars = 150
	maxTrendingPosts = 5
)

// Article is the press material a prompt is built from.
type Article struct {
	Title   string
	Summary string
	URL     string
}

// Persona carries the campaign details mixed into every prompt.
type Persona struct {
	Candidate string
	Themes    []string
	Hashtags  []string
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

func (p Persona) write(sb *strings.Builder) {
	if len(p.Themes) > 0 {
		label := "Campaign themes"
		if p.Candidate != "" {
			label = p.Candidate + " campaign themes"
		}
		fmt.Fprintf(sb, "\n\n%s:", label)
		for _, t := range p.Themes {
			fmt.Fprintf(sb, "\n- %s", strings.TrimSpace(t))
		}
	}
	if len(p.Hashtags) > 0 {
		fmt.Fprintf(sb, "\n\nEnd the post with: %s", strings.Join(p.Hashtags, " "))
	}
}

func writeTrending(sb *strings.Builder, trending []models.Twoot) {
	sb.WriteString("\n\nTrending Social Media Posts:")
	if len(trending) == 0 {
		sb.WriteString("\nNo trending posts available.")
		return
	}
	for i, post := range trending {
		if i == maxTrendingPosts {
			break
		}
		author := post.AuthorName()
		if author == "" {
			author = "unknown"
		}
		fmt.Fprintf(sb, "\n%d. @%s: %s", i+1, author, clip(post.Content, maxTrendingChars))
	}
}

func finish(sb *strings.Builder) string {
	out := sb.String()
	if r := []rune(out); len(r) > maxPromptChars {
		return string(r[:maxPromptChars]) + ellipsis
	}
	return out
}

// PressPrompt combines one article with the trending conversation.
func PressPrompt(a Article, trending []models.Twoot, p Persona) string {
	var sb strings.Builder
	if p.Candidate != "" {
		fmt.Fprintf(&sb, "%s Press Release:", p.Candidate)
	} else {
		sb.WriteString("Press Release:")
	}
	fmt.Fprintf(&sb, "\nTitle: %s", strings.TrimSpace(a.Title))
	fmt.Fprintf(&sb, "\nSummary: %s", clip(a.Summary, maxSummaryChars))

	writeTrending(&sb, trending)
	p.write(&sb)
	return finish(&sb)
}

// ReplyPrompt asks for a reply to one post in the context of a hashtag.
func ReplyPrompt(post models.Twoot, tag string, p Persona) string {
	var sb strings.Builder
	sb.WriteString("Write a reply to this post")
	if tag != "" {
		fmt.Fprintf(&sb, " trending under #%s", strings.TrimPrefix(tag, "#"))
	}
	author := post.AuthorName()
	if author == "" {
		author = "unknown"
	}
	fmt.Fprintf(&sb, ":\n@%s: %s", author, clip(post.Content, maxSummaryChars))
	p.write(&sb)
	return finish(&sb)
}

// MentionPrompt asks for a supportive reply to a post that mentions handle,
// carrying over the post's own hashtags.
func MentionPrompt(post models.Twoot, handle string, p Persona) string {
	var sb strings.Builder
	author := post.AuthorName()
	if author == "" {
		author = "unknown"
	}
	fmt.Fprintf(&sb, "Original post by @%s (ID: %d):\n%s", author, post.ID, clip(post.Content, maxSummaryChars))

	tags := make([]string, 0, len(post.Tags))
	for _, t := range post.Tags {
		if name := strings.TrimPrefix(strings.TrimSpace(t.Name), "#"); name != "" {
			tags = append(tags, "#"+name)
		}
	}
	if len(tags) > 0 {
		fmt.Fprintf(&sb, "\n\nOriginal tags: %s", strings.Join(tags, " "))
	} else {
		sb.WriteString("\n\nOriginal tags: none")
	}

	fmt.Fprintf(&sb, "\n\nWrite a supportive, conversational reply that mentions @%s and includes the original tags.", strings.TrimPrefix(handle, "@"))
	p.write(&sb)
	return finish(&sb)
}
