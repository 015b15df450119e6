package usage

import "testing"

func TestExtractChatCompletionsShape(t *testing.T) {
	body := []byte(`{"usage":{"prompt_tokens":1000,"completion_tokens":200,"total_tokens":1200,"prompt_tokens_details":{"cached_tokens":400}}}`)
	tokens, ok := Extract(body)
	if !ok {
		t.Fatal("usage not found")
	}
	want := Tokens{Input: 1000, Cached: 400, Output: 200, Total: 1200}
	if tokens != want {
		t.Fatalf("tokens = %+v, want %+v", tokens, want)
	}
}

func TestExtractResponsesShape(t *testing.T) {
	body := []byte(`{"usage":{"input_tokens":1000,"output_tokens":200,"total_tokens":1200,"input_tokens_details":{"cached_tokens":400}}}`)
	tokens, ok := Extract(body)
	if !ok {
		t.Fatal("usage not found")
	}
	want := Tokens{Input: 1000, Cached: 400, Output: 200, Total: 1200}
	if tokens != want {
		t.Fatalf("tokens = %+v, want %+v", tokens, want)
	}
}

func TestExtractSchemaEquivalence(t *testing.T) {
	chat := []byte(`{"usage":{"prompt_tokens":321,"completion_tokens":123,"prompt_tokens_details":{"cached_tokens":21}}}`)
	responses := []byte(`{"usage":{"input_tokens":321,"output_tokens":123,"input_tokens_details":{"cached_tokens":21}}}`)

	fromChat, okChat := Extract(chat)
	fromResponses, okResponses := Extract(responses)
	if !okChat || !okResponses {
		t.Fatal("usage not found in one of the shapes")
	}
	if fromChat != fromResponses {
		t.Fatalf("chat %+v != responses %+v", fromChat, fromResponses)
	}
}

func TestExtractNestedResponseUsage(t *testing.T) {
	body := []byte(`{"response":{"usage":{"input_tokens":10,"output_tokens":5}}}`)
	tokens, ok := Extract(body)
	if !ok {
		t.Fatal("nested usage not found")
	}
	if tokens.Input != 10 || tokens.Output != 5 || tokens.Total != 15 {
		t.Fatalf("tokens = %+v", tokens)
	}
}

func TestExtractDerivations(t *testing.T) {
	// Missing total: recomputed from input+output.
	tokens, ok := Extract([]byte(`{"usage":{"prompt_tokens":7,"completion_tokens":3}}`))
	if !ok || tokens.Total != 10 {
		t.Fatalf("derived total = %+v, ok=%v", tokens, ok)
	}

	// Total present but completion missing: output derived from the difference.
	tokens, ok = Extract([]byte(`{"usage":{"prompt_tokens":7,"total_tokens":10}}`))
	if !ok || tokens.Output != 3 {
		t.Fatalf("derived output = %+v, ok=%v", tokens, ok)
	}

	// Cached above input clamps to input.
	tokens, ok = Extract([]byte(`{"usage":{"prompt_tokens":5,"completion_tokens":1,"prompt_tokens_details":{"cached_tokens":50}}}`))
	if !ok || tokens.Cached != 5 {
		t.Fatalf("clamped cached = %+v, ok=%v", tokens, ok)
	}
}

func TestExtractNoUsage(t *testing.T) {
	if _, ok := Extract([]byte(`{"choices":[]}`)); ok {
		t.Fatal("found usage where none exists")
	}
	if _, ok := Extract([]byte(`{"usage":{"something_else":1}}`)); ok {
		t.Fatal("unrecognized usage keys treated as usage")
	}
	if _, ok := Extract([]byte(`not json`)); ok {
		t.Fatal("found usage in garbage")
	}
}

func TestStreamExtractorLastWriteWins(t *testing.T) {
	var stream StreamExtractor
	stream.Feed([]byte("data: {\"usage\":{\"prompt_tokens\":60,\"completion_tokens\":40,\"total_tokens\":100}}\n\n"))
	stream.Feed([]byte("data: {\"usage\":{\"prompt_tokens\":90,\"completion_tokens\":60,\"total_tokens\":150}}\n\n"))
	stream.Feed([]byte("data: [DONE]\n\n"))

	tokens, ok := stream.Tokens()
	if !ok {
		t.Fatal("no usage extracted from stream")
	}
	if tokens.Total != 150 || tokens.Input != 90 {
		t.Fatalf("tokens = %+v, want the final frame", tokens)
	}
}

func TestStreamExtractorSplitChunks(t *testing.T) {
	var stream StreamExtractor
	frame := "data: {\"usage\":{\"input_tokens\":12,\"output_tokens\":8}}\n"
	// Feed the frame byte by byte to exercise line buffering.
	for i := 0; i < len(frame); i++ {
		stream.Feed([]byte{frame[i]})
	}

	tokens, ok := stream.Tokens()
	if !ok {
		t.Fatal("no usage extracted from split stream")
	}
	if tokens.Input != 12 || tokens.Output != 8 || tokens.Total != 20 {
		t.Fatalf("tokens = %+v", tokens)
	}
}

func TestStreamExtractorSkipsMalformedFrames(t *testing.T) {
	var stream StreamExtractor
	stream.Feed([]byte("data: {not valid json\n"))
	stream.Feed([]byte(": keepalive comment\n"))
	stream.Feed([]byte("event: ping\n"))
	if _, ok := stream.Tokens(); ok {
		t.Fatal("malformed frames produced usage")
	}

	stream.Feed([]byte("data: {\"usage\":{\"input_tokens\":1,\"output_tokens\":1}}\n"))
	if _, ok := stream.Tokens(); !ok {
		t.Fatal("valid frame after garbage not extracted")
	}
}
