package turn

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/voxalabs/agents-go/pkg/turn/internal"
)

// Downloader fetches turn-detector model revisions from the Hugging Face hub
// into the local model cache, verifying hashes where known.
type Downloader struct {
	modelPath string
	client    *http.Client
	logger    *slog.Logger
}

func NewDownloader(modelPath string) *Downloader {
	if modelPath == "" {
		modelPath = DefaultModelPath()
	}
	return &Downloader{
		modelPath: modelPath,
		client:    &http.Client{},
		logger:    slog.Default().With("component", "model-downloader"),
	}
}

// DownloadAll downloads every known model.
func (d *Downloader) DownloadAll() error {
	for _, model := range internal.AllModels {
		if err := d.DownloadModel(model); err != nil {
			return fmt.Errorf("download model %s: %w", model.Name, err)
		}
	}
	return nil
}

// DownloadModel downloads one model revision and its support files.
func (d *Downloader) DownloadModel(model internal.ModelInfo) error {
	modelDir := internal.GetModelPath(d.modelPath, model.Revision)
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	for _, filename := range model.Files {
		filePath := filepath.Join(modelDir, filename)
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return fmt.Errorf("create directories for %s: %w", filename, err)
		}

		if d.isValidFile(filePath, filename) {
			d.logger.Info("model file already cached", "file", filename)
			continue
		}

		d.logger.Info("downloading model file", "file", filename, "model", model.Name)
		if err := d.downloadFile(model, filename, filePath); err != nil {
			os.Remove(filePath) // drop the partial download
			return fmt.Errorf("download %s: %w", filename, err)
		}
	}

	d.logger.Info("model ready", "model", model.Name, "revision", model.Revision)
	return nil
}

func (d *Downloader) downloadFile(model internal.ModelInfo, filename, destination string) error {
	url := fmt.Sprintf("https://huggingface.co/%s/resolve/%s/%s",
		model.Repo, model.Revision, filename)

	resp, err := d.client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	file, err := os.Create(destination)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, resp.Body)
	return err
}

func (d *Downloader) isValidFile(filePath, filename string) bool {
	info, err := os.Stat(filePath)
	if err != nil || info.Size() == 0 {
		return false
	}

	expected := internal.FileHashes[filename]
	if expected == "" {
		return true
	}
	return d.verifyFileHash(filePath, expected)
}

func (d *Downloader) verifyFileHash(filePath, expectedHash string) bool {
	file, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return false
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)) == expectedHash
}

// Status reports, per model, whether all files are cached and valid.
func (d *Downloader) Status() map[string]bool {
	status := make(map[string]bool)
	for _, model := range internal.AllModels {
		complete := true
		for _, filename := range model.Files {
			filePath := internal.GetModelFilePath(d.modelPath, model.Revision, filename)
			if !d.isValidFile(filePath, filename) {
				complete = false
				break
			}
		}
		status[model.Name] = complete
	}
	return status
}
