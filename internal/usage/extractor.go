package usage

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// Tokens is one extracted usage measurement.
type Tokens struct {
	Input  int64 // Prompt/input token count.
	Cached int64 // Cached input tokens, always within [0, Input].
	Output int64 // Completion/output token count.
	Total  int64 // Total tokens; recomputed as Input+Output when absent.
}

// Extract parses an upstream response body and returns its token usage.
// Both the chat-completions shape (prompt_tokens/completion_tokens with
// prompt_tokens_details.cached_tokens) and the responses shape
// (input_tokens/output_tokens with input_tokens_details.cached_tokens) are
// supported; the usage object may live at the top level or under "response".
// The second return value is false when no usage object is present.
func Extract(body []byte) (Tokens, bool) {
	obj := gjson.GetBytes(body, "usage")
	if !obj.IsObject() {
		obj = gjson.GetBytes(body, "response.usage")
	}
	if !obj.IsObject() {
		return Tokens{}, false
	}
	return extractFromUsage(obj)
}

func extractFromUsage(obj gjson.Result) (Tokens, bool) {
	if obj.Get("prompt_tokens").Exists() || obj.Get("completion_tokens").Exists() {
		prompt := obj.Get("prompt_tokens").Int()
		completion := obj.Get("completion_tokens").Int()
		total := obj.Get("total_tokens").Int()
		cached := obj.Get("prompt_tokens_details.cached_tokens").Int()

		output := completion
		if total > 0 {
			output = max64(total-prompt, 0)
		}
		if total <= 0 {
			total = prompt + output
		}
		return Tokens{
			Input:  prompt,
			Cached: clamp64(cached, 0, max64(prompt, 0)),
			Output: output,
			Total:  total,
		}, true
	}

	if obj.Get("input_tokens").Exists() || obj.Get("output_tokens").Exists() {
		input := obj.Get("input_tokens").Int()
		output := obj.Get("output_tokens").Int()
		total := obj.Get("total_tokens").Int()
		cached := obj.Get("input_tokens_details.cached_tokens").Int()

		if output <= 0 && total > 0 {
			output = max64(total-input, 0)
		}
		if total <= 0 {
			total = input + output
		}
		return Tokens{
			Input:  input,
			Cached: clamp64(cached, 0, max64(input, 0)),
			Output: output,
			Total:  total,
		}, true
	}

	return Tokens{}, false
}

// StreamExtractor accumulates Server-Sent-Events bytes and tracks the last
// usage object seen in the stream. Later data frames overwrite token counts
// set by earlier ones; malformed frames are skipped silently.
type StreamExtractor struct {
	buf    bytes.Buffer
	tokens Tokens
	seen   bool
}

var (
	ssePrefix  = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Feed consumes one chunk of SSE bytes and processes any complete lines.
func (s *StreamExtractor) Feed(chunk []byte) {
	s.buf.Write(chunk)
	for {
		raw := s.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			return
		}
		line := bytes.TrimSpace(bytes.TrimSuffix(raw[:idx], []byte("\r")))
		s.buf.Next(idx + 1)

		if !bytes.HasPrefix(line, ssePrefix) {
			continue
		}
		data := bytes.TrimSpace(line[len(ssePrefix):])
		if len(data) == 0 || bytes.Equal(data, doneMarker) {
			continue
		}
		if !gjson.ValidBytes(data) {
			continue
		}
		if tokens, ok := Extract(data); ok {
			s.tokens = tokens
			s.seen = true
		}
	}
}

// Tokens returns the last usage seen so far; ok is false when the stream has
// produced no usage object yet.
func (s *StreamExtractor) Tokens() (Tokens, bool) {
	return s.tokens, s.seen
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func clamp64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
