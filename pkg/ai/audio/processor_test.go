package audio

import (
	"testing"

	"github.com/matryer/is"
)

func TestDefaultProcessorConfig(t *testing.T) {
	is := is.New(t)

	config := DefaultProcessorConfig()
	is.True(config.EchoCancellation)
	is.True(config.NoiseSuppression)
	is.True(config.HighPassFilter)
	is.True(config.AutoGainControl)

	is.Equal(DisabledProcessorConfig(), ProcessorConfig{})
}

func TestProcessorConfigChaining(t *testing.T) {
	is := is.New(t)

	config := DefaultProcessorConfig().
		WithEchoCancellation(false).
		WithHighPassFilter(false)

	is.True(!config.EchoCancellation)
	is.True(config.NoiseSuppression)
	is.True(!config.HighPassFilter)
	is.True(config.AutoGainControl)
}

func TestProcessorConfigCopies(t *testing.T) {
	is := is.New(t)

	original := DefaultProcessorConfig()
	modified := original.WithEchoCancellation(false)

	is.True(original.EchoCancellation)
	is.True(!modified.EchoCancellation)
}
