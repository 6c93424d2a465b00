package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"
)

func TestToolContext_RejectsDuplicateNames(t *testing.T) {
	is := is.New(t)

	weather := &Tool{Name: "get_weather"}
	_, err := NewToolContext(weather, &Tool{Name: "get_weather"})
	is.True(err != nil)

	tc, err := NewToolContext(weather, &Tool{Name: "get_time"})
	is.NoErr(err)
	is.Equal(len(tc.Tools()), 2)

	got, ok := tc.Get("get_weather")
	is.True(ok)
	is.True(got == weather)

	_, ok = tc.Get("missing")
	is.True(!ok)
}

func TestToolContext_RejectsEmptyName(t *testing.T) {
	is := is.New(t)

	_, err := NewToolContext(&Tool{})
	is.True(err != nil)
}

func TestToolError_IsModelVisible(t *testing.T) {
	is := is.New(t)

	tool := &Tool{
		Name: "lookup",
		Handler: func(ctx context.Context, args string, info ToolInfo) (any, error) {
			return nil, NewToolError("no record for id %d", 7)
		},
	}
	_, err := tool.Handler(context.Background(), "{}", ToolInfo{CallID: "call_1"})

	var te *ToolError
	is.True(errors.As(err, &te))
	is.Equal(te.Msg, "no record for id 7")
}
