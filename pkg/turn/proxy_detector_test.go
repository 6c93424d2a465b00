package turn

import (
	"context"
	"testing"

	"github.com/matryer/is"
)

// loopbackInvoker serves proxied requests with a local detector, the way the
// worker process does for its job children.
type loopbackInvoker struct {
	detector Detector
	method   string
}

func (l *loopbackInvoker) Inference(ctx context.Context, method string, data []byte) ([]byte, error) {
	l.method = method
	return ServeInference(ctx, l.detector, data)
}

func TestProxyDetector_RoundTripsThroughInvoker(t *testing.T) {
	is := is.New(t)

	inv := &loopbackInvoker{detector: &stubDetector{probability: 0.33}}
	d := NewProxyDetector(inv, map[string]float64{"en": 0.5})

	p, err := d.PredictEndOfTurn(context.Background(), chatWith("so anyway"))
	is.NoErr(err)
	is.Equal(p, 0.33)
	is.Equal(inv.method, InferenceMethod)
}

func TestProxyDetector_ThresholdsAreLocalConfig(t *testing.T) {
	is := is.New(t)

	d := NewProxyDetector(nil, map[string]float64{"en": 0.5, "de": 0.6})

	th, err := d.UnlikelyThreshold("en-US") // locale collapses to language
	is.NoErr(err)
	is.Equal(th, 0.5)

	is.True(d.SupportsLanguage("de"))
	is.True(!d.SupportsLanguage("fr"))

	_, err = d.UnlikelyThreshold("fr-FR")
	is.True(err != nil)
}

func TestNormalizeLanguage(t *testing.T) {
	is := is.New(t)

	is.Equal(normalizeLanguage("en-US"), "en")
	is.Equal(normalizeLanguage("pt_BR"), "pt")
	is.Equal(normalizeLanguage("ja"), "ja")
}

func TestNewDetector_RejectsUnknownModel(t *testing.T) {
	is := is.New(t)

	_, err := NewDetector(DetectorConfig{Model: "gigantic"})
	is.True(err != nil)
}

func TestFormatChat_SkipsToolItemsAndBoundsContext(t *testing.T) {
	is := is.New(t)

	ctx := chatWith("still typing")
	formatted := formatChat(ctx.Items)
	is.Equal(formatted,
		"<|im_start|><|assistant|>how can I help?<|im_end|>"+
			"<|im_start|><|user|>still typing<|im_end|>")
}
