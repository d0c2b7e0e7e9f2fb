package pipeline

import "strings"

// SentenceBuffer accumulates streamed tokens and yields complete sentences
// as soon as a boundary appears, so synthesis can start before generation
// finishes.
type SentenceBuffer struct {
	buf strings.Builder
}

// Add appends a token and returns any complete sentence ready for synthesis,
// or "" when no boundary has been reached yet.
func (s *SentenceBuffer) Add(token string) string {
	s.buf.WriteString(token)
	complete, remainder := splitAtSentence(s.buf.String())
	if complete == "" {
		return ""
	}
	s.buf.Reset()
	s.buf.WriteString(remainder)
	return complete
}

// Flush returns whatever text remains in the buffer.
func (s *SentenceBuffer) Flush() string {
	text := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return text
}

// SplitSentences breaks a finished response into sentences for per-sentence
// synthesis. Text without any boundary comes back as a single element.
func SplitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		cur.WriteRune(r)
		if !isSentenceEnder(r) {
			continue
		}
		if i < len(runes)-1 && !isBoundaryGap(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isBoundaryGap(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}

// Sentence boundaries cover Latin punctuation plus CJK full stops, since
// responses come back in whichever language the conversation targets.
func isSentenceEnder(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// splitAtSentence finds the last boundary in text: an ender rune followed by
// whitespace. Returns (completeSentences, remainder); ("", text) when no
// boundary exists.
func splitAtSentence(text string) (string, string) {
	lastIdx := -1
	runes := []rune(text)
	byteIdx := 0
	for i := 0; i < len(runes)-1; i++ {
		if isSentenceEnder(runes[i]) && isBoundaryGap(runes[i+1]) {
			lastIdx = byteIdx + len(string(runes[i]))
		}
		byteIdx += len(string(runes[i]))
	}
	if lastIdx < 0 {
		return "", text
	}
	return strings.TrimSpace(text[:lastIdx]), text[lastIdx:]
}
