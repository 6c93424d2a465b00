package fake

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
	"github.com/voxalabs/agents-go/pkg/stream"
)

func readAll(t *testing.T, s llm.ChatStream) []*llm.ChatChunk {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var chunks []*llm.ChatChunk
	for {
		c, err := s.Read(ctx)
		if err == stream.ErrDone {
			return chunks
		}
		if err != nil {
			t.Fatal(err)
		}
		chunks = append(chunks, c)
	}
}

func content(chunks []*llm.ChatChunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Delta.Content)
	}
	return b.String()
}

func TestFakeLLM_StreamsScriptedTurns(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	l := New([]Turn{{Content: "first reply"}, {Content: "second reply"}})

	s, err := l.Chat(ctx, llm.ChatRequest{})
	is.NoErr(err)
	is.Equal(content(readAll(t, s)), "first reply")

	s, err = l.Chat(ctx, llm.ChatRequest{})
	is.NoErr(err)
	is.Equal(content(readAll(t, s)), "second reply")
}

func TestFakeLLM_EchoesWhenScriptExhausted(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	chatCtx := llm.NewChatContext()
	chatCtx.AddMessage(llm.RoleUser, "hello there")

	s, err := New(nil).Chat(ctx, llm.ChatRequest{ChatCtx: chatCtx})
	is.NoErr(err)
	is.Equal(content(readAll(t, s)), "you said: hello there")
}

func TestFakeLLM_EmitsToolCallsAndUsage(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	l := New([]Turn{{
		Content:   "checking",
		ToolCalls: []llm.ToolCallDelta{{Name: "get_weather", Arguments: `{"city":"Oslo"}`}},
	}})

	s, err := l.Chat(ctx, llm.ChatRequest{})
	is.NoErr(err)
	chunks := readAll(t, s)

	var calls []llm.ToolCallDelta
	var usage *llm.Usage
	for _, c := range chunks {
		calls = append(calls, c.Delta.ToolCalls...)
		if c.Usage != nil {
			usage = c.Usage
		}
	}
	is.Equal(len(calls), 1)
	is.Equal(calls[0].Name, "get_weather")
	is.True(calls[0].ID != "") // ids are filled in
	is.True(usage != nil)
	is.True(usage.CompletionTokens > 0)
}

func TestFakeLLM_CloseStopsStream(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	l := New([]Turn{{Content: strings.Repeat("word ", 100)}}, WithChunkDelay(10*time.Millisecond))
	s, err := l.Chat(ctx, llm.ChatRequest{})
	is.NoErr(err)

	// Read a couple of chunks, then abandon the stream.
	_, err = s.Read(ctx)
	is.NoErr(err)
	_, err = s.Read(ctx)
	is.NoErr(err)
	is.NoErr(s.Close())

	_, err = s.Read(ctx)
	is.True(err == stream.ErrDone || err == nil) // at most buffered chunks remain
}

func TestFakeLLM_RecordsRequests(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	l := New(nil)
	chatCtx := llm.NewChatContext()
	chatCtx.AddMessage(llm.RoleSystem, "be brief")

	s, err := l.Chat(ctx, llm.ChatRequest{ChatCtx: chatCtx, ToolChoice: llm.ToolChoiceNone})
	is.NoErr(err)
	readAll(t, s)

	reqs := l.Requests()
	is.Equal(len(reqs), 1)
	is.Equal(reqs[0].ToolChoice, llm.ToolChoiceNone)
	is.Equal(reqs[0].ChatCtx.Items()[0].Content, "be brief")
}
