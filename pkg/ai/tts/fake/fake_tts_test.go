package fake

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/voxalabs/agents-go/pkg/ai/tts"
	"github.com/voxalabs/agents-go/pkg/stream"
)

func drain(t *testing.T, r interface {
	Read(ctx context.Context) (*tts.SynthesizedAudio, error)
}) []*tts.SynthesizedAudio {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var out []*tts.SynthesizedAudio
	for {
		a, err := r.Read(ctx)
		if err == stream.ErrDone {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, a)
	}
}

func totalDuration(chunks []*tts.SynthesizedAudio) time.Duration {
	var d time.Duration
	for _, c := range chunks {
		if c.Frame != nil {
			d += c.Frame.Duration()
		}
	}
	return d
}

func TestFakeTTS_DurationProportionalToText(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	ft := New(WithDurationPerChar(10 * time.Millisecond))
	cs, err := ft.Synthesize(ctx, "hello") // 5 chars -> 50ms
	is.NoErr(err)

	chunks := drain(t, cs)
	is.Equal(totalDuration(chunks), 50*time.Millisecond)
	is.True(chunks[len(chunks)-1].Final)
}

func TestFakeTTS_ExactlyOneFinalPerSegment(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, err := New().NewStream(ctx)
	is.NoErr(err)
	is.NoErr(s.PushText("first sentence"))
	is.NoErr(s.Flush())
	is.NoErr(s.PushText("second"))
	is.NoErr(s.EndInput())

	chunks := drain(t, s)

	finals := map[string]int{}
	segments := map[string]bool{}
	for _, c := range chunks {
		segments[c.SegmentID] = true
		if c.Final {
			finals[c.SegmentID]++
		}
	}
	is.Equal(len(segments), 2)
	for seg := range segments {
		is.Equal(finals[seg], 1) // one final marker per segment
	}
}

func TestFakeTTS_SubFrameRemainderIsEmitted(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	ft := New(WithDurationPerChar(3 * time.Millisecond))
	cs, err := ft.Synthesize(ctx, "abcd") // 12ms: one 10ms frame + 2ms tail
	is.NoErr(err)

	chunks := drain(t, cs)
	is.Equal(totalDuration(chunks), 12*time.Millisecond)
}

func TestFakeTTS_PushAfterEndInputFails(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, err := New().NewStream(ctx)
	is.NoErr(err)
	is.NoErr(s.EndInput())
	is.Equal(s.PushText("late"), stream.ErrClosed)
}

func TestFakeTTS_SampleRateConfigurable(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	ft := New(WithSampleRate(16000))
	is.Equal(ft.SampleRate(), 16000)

	cs, err := ft.Synthesize(ctx, "hi")
	is.NoErr(err)
	chunks := drain(t, cs)
	for _, c := range chunks {
		if c.Frame != nil {
			is.Equal(c.Frame.SampleRate, 16000)
		}
	}
}
