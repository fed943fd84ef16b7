package relay

import "strings"

// MaxReplyChars is the longest message the chat transport accepts.
const MaxReplyChars = 4096

// SplitMessage cuts text into chunks of at most max characters, preferring
// the last newline, then the last space, inside each chunk. Leading
// whitespace of every following chunk is dropped.
func SplitMessage(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= max {
			chunks = append(chunks, string(runes))
			break
		}
		cut := lastIndex(runes[:max], '\n')
		if cut <= 0 {
			cut = lastIndex(runes[:max], ' ')
		}
		if cut <= 0 {
			cut = max
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \t\r\n"))
	}
	return chunks
}

func lastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
