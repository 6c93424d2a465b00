package tokenize

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/voxalabs/agents-go/pkg/stream"
)

func TestSentenceTokenizer_Tokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "two sentences",
			in:   "Hello there. How are you today?",
			want: []string{"Hello there.", "How are you today?"},
		},
		{
			name: "trailing fragment flushed",
			in:   "First sentence is done. And then it trails",
			want: []string{"First sentence is done.", "And then it trails"},
		},
		{
			name: "exclamation and question",
			in:   "Watch out for that! Did you see it? Wow",
			want: []string{"Watch out for that!", "Did you see it?", "Wow"},
		},
		{
			name: "newline is a boundary",
			in:   "line one\nline two",
			want: []string{"line one", "line two"},
		},
		{
			name: "abbreviation early in sentence survives",
			in:   "Dr. Smith arrived late. He apologized",
			want: []string{"Dr. Smith arrived late.", "He apologized"},
		},
		{
			name: "empty input",
			in:   "",
			want: nil,
		},
		{
			name: "whitespace only",
			in:   "   ",
			want: nil,
		},
	}

	tok := NewSentenceTokenizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(tok.Tokenize(tt.in), tt.want)
		})
	}
}

func TestSentenceStream_EmitsAcrossPushBoundaries(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s := NewSentenceTokenizer().NewStream()

	// Token-sized pushes, the way an LLM delivers them.
	for _, tok := range []string{"Once ", "upon ", "a ", "time. ", "The ", "end"} {
		is.NoErr(s.PushText(tok))
	}

	first, err := s.Read(ctx)
	is.NoErr(err)
	is.Equal(first, "Once upon a time.") // emitted before EndInput

	is.NoErr(s.EndInput())
	second, err := s.Read(ctx)
	is.NoErr(err)
	is.Equal(second, "The end")

	_, err = s.Read(ctx)
	is.Equal(err, stream.ErrDone)
}

func TestSentenceStream_FlushEmitsPartial(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s := NewSentenceTokenizer().NewStream()
	is.NoErr(s.PushText("half a thought"))
	is.NoErr(s.Flush())

	got, err := s.Read(ctx)
	is.NoErr(err)
	is.Equal(got, "half a thought")
}

func TestSentenceStream_PushAfterEndInputFails(t *testing.T) {
	is := is.New(t)

	s := NewSentenceTokenizer().NewStream()
	is.NoErr(s.EndInput())
	is.NoErr(s.EndInput()) // idempotent
	is.Equal(s.PushText("late"), stream.ErrClosed)
}

func TestSentenceStream_CloseUnblocksFullProducer(t *testing.T) {
	is := is.New(t)

	s := NewSentenceTokenizer().NewStream()

	// Far more sentences than the output buffers; with no consumer the
	// producer parks mid-emit.
	var text string
	for range 100 {
		text += "All right then. "
	}

	pushed := make(chan error, 1)
	go func() {
		pushed <- s.PushText(text)
	}()

	select {
	case err := <-pushed:
		t.Fatalf("push returned before close: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	s.Close()
	select {
	case err := <-pushed:
		is.Equal(err, stream.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("producer still blocked after close")
	}
}

func TestSplitWords(t *testing.T) {
	is := is.New(t)

	is.Equal(SplitWords("  a  quick\nbrown fox "), []string{"a", "quick", "brown", "fox"})
	is.Equal(len(SplitWords("")), 0)
}
