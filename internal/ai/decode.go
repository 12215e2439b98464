package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// StripFences removes a surrounding markdown code fence (```json ... ```), if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractJSON returns the first balanced JSON object or array found in s.
func ExtractJSON(s string) (string, error) {
	start := strings.IndexAny(s, "{[")
	for start >= 0 {
		if end := matchBalanced(s, start); end > 0 {
			return s[start:end], nil
		}
		next := strings.IndexAny(s[start+1:], "{[")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", fmt.Errorf("%w: no JSON value in response", ErrInvalidResponse)
}

// matchBalanced returns the index just past the value that opens at start, or -1.
func matchBalanced(s string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// DecodeJSON parses a provider answer into v. Fenced blocks and prose around
// the JSON value are tolerated. Failures wrap ErrInvalidResponse.
func DecodeJSON(text string, v any) error {
	body := StripFences(text)
	if err := json.Unmarshal([]byte(body), v); err == nil {
		return nil
	}
	raw, err := ExtractJSON(body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

var answerKeyToken = regexp.MustCompile(`(?i)\[\s*(?:answer[ _-]?key|gabarito)\s*:\s*([^\]]*)\]`)

// ExtractAnswerKey finds the last bracketed answer-key token in text and
// returns the text without it plus the raw key list. ok is false when the
// text carries no token.
func ExtractAnswerKey(text string) (body, rawKey string, ok bool) {
	text = StripFences(text)
	locs := answerKeyToken.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(text), "", false
	}
	last := locs[len(locs)-1]
	rawKey = strings.TrimSpace(text[last[2]:last[3]])
	body = strings.TrimSpace(text[:last[0]] + text[last[1]:])
	return body, rawKey, true
}
