package discord

import "strings"

// MessageLimit is Discord's maximum message length in characters.
const MessageLimit = 2000

// SplitMessage breaks text into chunks of at most limit runes. It cuts at
// the last newline of a window unless that would leave a chunk shorter
// than a third of the limit.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	rs := []rune(text)
	if len(rs) <= limit {
		return []string{text}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
		start = end
	}
	return out
}
