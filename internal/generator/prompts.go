package generator

import (
	"fmt"
	"strings"
)

func buildPrompt(req Request) (string, int, error) {
	switch req.Kind {
	case KindReply:
		return fmt.Sprintf(`Generate a thoughtful, engaging reply to this post. Keep it under %d characters.

Original post: "%s"

Context: %s

Requirements:
- Relevant and engaging
- Professional but conversational
- Not controversial or offensive
- Add value to the conversation

Reply:`, MaxTweetLength, req.SourceText, req.Context), 100, nil

	case KindQuote:
		return fmt.Sprintf(`Generate a quote comment for this post. Keep it under %d characters.

Original post: "%s"

Context: %s

Requirements:
- Add value or insight
- Be concise and impactful
- Encourage engagement
- Complement, don't repeat the original

Quote comment:`, MaxQuoteLength, req.SourceText, req.Context), 80, nil

	case KindThread:
		n := req.Segments
		if n <= 0 {
			n = DefaultThreadSegments
		}
		return fmt.Sprintf(`Generate a thread about: %s

Create %d connected posts, each under %d characters.

Requirements:
- Educational or insightful
- Each post flows to the next
- Professional tone
- Include relevant hashtags
- Number each post (1/%d, 2/%d, etc.)

Format each post on a new line starting with the number.

Thread:`, req.SourceText, n, MaxTweetLength, n, n), 120 * n, nil

	case KindStandalone:
		return fmt.Sprintf(`Generate an engaging post about: %s

Requirements:
- Under %d characters
- Engaging and thought-provoking
- Include relevant hashtags (2-3 max)
- Professional but conversational
- End with a call to action or question

Post:`, strings.TrimSpace(req.SourceText), MaxTweetLength), 100, nil

	default:
		return "", 0, fmt.Errorf("unknown content kind %q", req.Kind)
	}
}
