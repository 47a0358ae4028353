package utils

// CountTokens estimates the number of tokens in text using the rough
// 1 token ~= 4 characters heuristic. Non-empty text is at least 1 token.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateRunes cuts text to at most limit runes. The second return value
// reports whether anything was cut.
func TruncateRunes(text string, limit int) (string, bool) {
	if limit <= 0 {
		return "", text != ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	return string(runes[:limit]), true
}
