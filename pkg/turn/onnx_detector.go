package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
	"github.com/voxalabs/agents-go/pkg/turn/internal"
)

const (
	// modelFileRel is the ONNX file's path inside a model revision directory.
	modelFileRel = "onnx/model_q8.onnx"

	// maxContextTokens is the model's input window; longer chats are
	// left-truncated so the most recent turns survive.
	maxContextTokens = 128

	// maxContextItems bounds how many chat items are formatted at all.
	maxContextItems = 6
)

// ONNXDetector runs the quantized turn-detector model locally through
// onnxruntime. Model, tokenizer, and language thresholds are loaded lazily so
// constructing a detector is cheap.
type ONNXDetector struct {
	modelInfo internal.ModelInfo
	modelPath string
	logger    *slog.Logger

	sessionOnce sync.Once
	session     *ort.DynamicAdvancedSession
	sessionErr  error

	tokenizerOnce sync.Once
	tokenizer     *tokenizer.Tokenizer
	tokenizerErr  error

	languagesOnce sync.Once
	languages     map[string]float64
	languagesErr  error
}

// NewONNXDetector creates a local detector for the named model
// ("english" or "multilingual"). An empty modelPath uses the default cache.
func NewONNXDetector(modelName, modelPath string) (*ONNXDetector, error) {
	var modelInfo internal.ModelInfo
	found := false
	for _, model := range internal.AllModels {
		if model.Name == modelName {
			modelInfo = model
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown turn-detector model: %s", modelName)
	}

	if modelPath == "" {
		modelPath = DefaultModelPath()
	}
	return &ONNXDetector{
		modelInfo: modelInfo,
		modelPath: modelPath,
		logger:    slog.Default().With("component", "turn-detector"),
	}, nil
}

func (d *ONNXDetector) UnlikelyThreshold(language string) (float64, error) {
	if err := d.loadLanguages(); err != nil {
		return 0, err
	}
	threshold, ok := d.languages[normalizeLanguage(language)]
	if !ok {
		return 0, fmt.Errorf("unsupported language: %s", language)
	}
	return threshold, nil
}

func (d *ONNXDetector) SupportsLanguage(language string) bool {
	if err := d.loadLanguages(); err != nil {
		return false
	}
	_, ok := d.languages[normalizeLanguage(language)]
	return ok
}

// normalizeLanguage maps locale codes ("en-US") onto the bare language keys
// used in languages.json.
func normalizeLanguage(language string) string {
	for i := 0; i < len(language); i++ {
		if language[i] == '-' || language[i] == '_' {
			return language[:i]
		}
	}
	return language
}

func (d *ONNXDetector) PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error) {
	start := time.Now()

	if err := d.loadSession(); err != nil {
		return 0, fmt.Errorf("load session: %w", err)
	}
	if err := d.loadTokenizer(); err != nil {
		return 0, fmt.Errorf("load tokenizer: %w", err)
	}

	tokens, err := d.tokenizeChat(chatCtx)
	if err != nil {
		return 0, fmt.Errorf("tokenize: %w", err)
	}

	probability, err := d.runInference(ctx, tokens)
	if err != nil {
		return 0, fmt.Errorf("inference: %w", err)
	}

	if latency := time.Since(start); latency > 25*time.Millisecond {
		d.logger.Warn("slow turn-detector inference", "latency", latency)
	}
	return probability, nil
}

func (d *ONNXDetector) loadSession() error {
	d.sessionOnce.Do(func() {
		modelFile := internal.GetModelFilePath(d.modelPath, d.modelInfo.Revision, modelFileRel)
		if _, err := os.Stat(modelFile); os.IsNotExist(err) {
			d.sessionErr = fmt.Errorf("model file not found: %s (run 'voxa turn download-models' first)", modelFile)
			return
		}

		if err := ensureOrtEnv(); err != nil {
			d.sessionErr = fmt.Errorf("initialize onnxruntime: %w", err)
			return
		}

		options, err := ort.NewSessionOptions()
		if err != nil {
			d.sessionErr = err
			return
		}
		defer options.Destroy()

		if err := options.SetIntraOpNumThreads(max(1, runtime.NumCPU()/2)); err != nil {
			d.sessionErr = err
			return
		}
		if err := options.SetInterOpNumThreads(1); err != nil {
			d.sessionErr = err
			return
		}
		if err := options.AddSessionConfigEntry("session.dynamic_block_base", "4"); err != nil {
			d.sessionErr = err
			return
		}

		d.session, d.sessionErr = ort.NewDynamicAdvancedSession(
			modelFile,
			[]string{"input_ids"},
			[]string{"logits"},
			options,
		)
	})
	return d.sessionErr
}

func (d *ONNXDetector) loadTokenizer() error {
	d.tokenizerOnce.Do(func() {
		tokenizerFile := internal.GetModelFilePath(d.modelPath, d.modelInfo.Revision, "tokenizer.json")
		if _, err := os.Stat(tokenizerFile); os.IsNotExist(err) {
			d.tokenizerErr = fmt.Errorf("tokenizer file not found: %s (run 'voxa turn download-models' first)", tokenizerFile)
			return
		}
		d.tokenizer, d.tokenizerErr = pretrained.FromFile(tokenizerFile)
	})
	return d.tokenizerErr
}

func (d *ONNXDetector) loadLanguages() error {
	d.languagesOnce.Do(func() {
		langFile := internal.GetModelFilePath(d.modelPath, d.modelInfo.Revision, "languages.json")
		file, err := os.Open(langFile)
		if err != nil {
			d.languagesErr = fmt.Errorf("open languages.json: %w", err)
			return
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(&d.languages); err != nil {
			d.languagesErr = fmt.Errorf("decode languages.json: %w", err)
		}
	})
	return d.languagesErr
}

func (d *ONNXDetector) tokenizeChat(chatCtx ChatContext) ([]int64, error) {
	encoding, err := d.tokenizer.EncodeSingle(formatChat(chatCtx.Items), false)
	if err != nil {
		return nil, err
	}

	ids := encoding.GetIds()
	if len(ids) > maxContextTokens {
		ids = ids[len(ids)-maxContextTokens:]
	}

	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out, nil
}

// formatChat renders items with the model's chat template:
// <|im_start|><|role|>content<|im_end|> per message. Tool items are skipped;
// the model was trained on user/assistant/system turns only.
func formatChat(items []*llm.ChatItem) string {
	var msgs []*llm.ChatItem
	for _, it := range items {
		switch it.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
			msgs = append(msgs, it)
		}
	}
	if len(msgs) > maxContextItems {
		msgs = msgs[len(msgs)-maxContextItems:]
	}

	var formatted string
	for _, msg := range msgs {
		formatted += fmt.Sprintf("<|im_start|><|%s|>%s<|im_end|>", string(msg.Role), msg.Content)
	}
	return formatted
}

func (d *ONNXDetector) runInference(ctx context.Context, tokens []int64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0.5, nil // neutral for empty input
	}

	inputShape := ort.NewShape(1, int64(len(tokens)))
	inputTensor, err := ort.NewTensor(inputShape, tokens)
	if err != nil {
		return 0, err
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil} // let the runtime allocate the logits tensor
	if err := d.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return 0, err
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	data := logits.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("empty output tensor")
	}

	prob := float64(data[0])
	if prob < 0 {
		prob = 0
	} else if prob > 1 {
		prob = 1
	}
	return prob, nil
}

// DefaultModelPath returns where model revisions are cached.
func DefaultModelPath() string {
	if path := os.Getenv("VOXA_MODEL_PATH"); path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "voxa-models")
	}
	return filepath.Join(homeDir, ".voxa", "models")
}
