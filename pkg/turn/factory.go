package turn

import (
	"fmt"
	"os"
)

// DetectorConfig selects and locates a turn-detector model.
type DetectorConfig struct {
	Model     string // "english" (default) or "multilingual"
	ModelPath string // model cache directory; default cache when empty
	RemoteURL string // remote inference endpoint; local when empty
}

// NewDetector builds a detector from config. With a remote URL (from config
// or VOXA_REMOTE_EOT_URL) the local detector becomes the fallback.
func NewDetector(config DetectorConfig) (Detector, error) {
	remoteURL := config.RemoteURL
	if remoteURL == "" {
		remoteURL = os.Getenv("VOXA_REMOTE_EOT_URL")
	}

	if config.Model == "" {
		config.Model = "english"
	}
	switch config.Model {
	case "english", "multilingual":
	default:
		return nil, fmt.Errorf("invalid turn-detector model %q (supported: english|multilingual)", config.Model)
	}

	local, err := NewONNXDetector(config.Model, config.ModelPath)
	if err != nil {
		return nil, err
	}

	if remoteURL != "" {
		return NewRemoteDetector(remoteURL, local), nil
	}
	return local, nil
}

// NewDefaultDetector builds the English local detector.
func NewDefaultDetector() (Detector, error) {
	return NewDetector(DetectorConfig{Model: "english"})
}
