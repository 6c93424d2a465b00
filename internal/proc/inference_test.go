package proc

import (
	"context"
	"testing"

	"github.com/matryer/is"
)

func TestInferenceRunner_DispatchesByMethod(t *testing.T) {
	is := is.New(t)

	r := NewInferenceRunner()
	is.NoErr(r.Register("eou_detection", func(ctx context.Context, data []byte) ([]byte, error) {
		return append([]byte("scored:"), data...), nil
	}))

	out, err := r.Run(context.Background(), "eou_detection", []byte("hi"))
	is.NoErr(err)
	is.Equal(string(out), "scored:hi")
}

func TestInferenceRunner_UnknownMethod(t *testing.T) {
	is := is.New(t)

	r := NewInferenceRunner()
	_, err := r.Run(context.Background(), "nope", nil)
	is.True(err != nil)
}

func TestInferenceRunner_RejectsDuplicateRegistration(t *testing.T) {
	is := is.New(t)

	r := NewInferenceRunner()
	h := func(ctx context.Context, data []byte) ([]byte, error) { return nil, nil }
	is.NoErr(r.Register("m", h))
	is.True(r.Register("m", h) != nil)
	is.True(r.Register("", h) != nil)
	is.Equal(len(r.Methods()), 1)
}
