// Package wav reads and writes PCM WAV files and buffers. It exists for the
// dev tooling (feeding recorded audio into a session, dumping synthesized
// speech) and for providers that take whole audio clips.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/voxalabs/agents-go/pkg/rtc"
)

const (
	riffHeaderSize = 44
	pcmFormat      = 1
)

var ErrNotWAV = errors.New("wav: not a RIFF/WAVE stream")

// Encode serializes PCM frames into an in-memory 16-bit WAV buffer. All
// frames must share a sample rate and channel count.
func Encode(frames []*rtc.AudioFrame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, errors.New("wav: no frames to encode")
	}
	rate := frames[0].SampleRate
	channels := frames[0].NumChannels

	var pcm bytes.Buffer
	for _, f := range frames {
		if f.SampleRate != rate || f.NumChannels != channels {
			return nil, fmt.Errorf("wav: mixed formats: %dHz/%dch and %dHz/%dch",
				rate, channels, f.SampleRate, f.NumChannels)
		}
		pcm.Write(f.Data)
	}

	var out bytes.Buffer
	out.Grow(riffHeaderSize + pcm.Len())
	writeHeader(&out, rate, channels, pcm.Len())
	pcm.WriteTo(&out)
	return out.Bytes(), nil
}

// Decode parses a 16-bit PCM WAV stream into a single frame.
func Decode(r io.Reader) (*rtc.AudioFrame, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("wav: reading header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		rate     int
		channels int
		bits     int
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return nil, fmt.Errorf("wav: reading chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			fmtData := make([]byte, size)
			if _, err := io.ReadFull(r, fmtData); err != nil {
				return nil, fmt.Errorf("wav: reading fmt chunk: %w", err)
			}
			if format := binary.LittleEndian.Uint16(fmtData[0:2]); format != pcmFormat {
				return nil, fmt.Errorf("wav: unsupported format code %d, want PCM", format)
			}
			channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			rate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bits = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			if bits != 16 {
				return nil, fmt.Errorf("wav: unsupported bit depth %d, want 16", bits)
			}
		case "data":
			if rate == 0 {
				return nil, errors.New("wav: data chunk before fmt chunk")
			}
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("wav: reading data chunk: %w", err)
			}
			return rtc.NewAudioFrame(data, rate, channels)
		default:
			// Skip LIST, fact, and other metadata chunks.
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, fmt.Errorf("wav: skipping %q chunk: %w", id, err)
			}
		}
	}
}

// ReadFile loads a WAV file as one frame.
func ReadFile(path string) (*rtc.AudioFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile writes frames to a WAV file.
func WriteFile(path string, frames []*rtc.AudioFrame) error {
	buf, err := Encode(frames)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

// Split cuts a frame into chunks of at most d, preserving format. Useful for
// feeding file audio through paths tuned for capture-sized frames.
func Split(frame *rtc.AudioFrame, d time.Duration) []*rtc.AudioFrame {
	stride := frame.NumChannels * 2
	chunkBytes := int(time.Duration(frame.SampleRate)*d/time.Second) * stride
	if chunkBytes <= 0 {
		return []*rtc.AudioFrame{frame}
	}
	var out []*rtc.AudioFrame
	for off := 0; off < len(frame.Data); off += chunkBytes {
		end := min(off+chunkBytes, len(frame.Data))
		chunk, err := rtc.NewAudioFrame(frame.Data[off:end], frame.SampleRate, frame.NumChannels)
		if err != nil {
			break
		}
		out = append(out, chunk)
	}
	return out
}

func writeHeader(w *bytes.Buffer, rate, channels, dataLen int) {
	byteRate := rate * channels * 2
	blockAlign := channels * 2

	w.WriteString("RIFF")
	binary.Write(w, binary.LittleEndian, uint32(36+dataLen))
	w.WriteString("WAVE")
	w.WriteString("fmt ")
	binary.Write(w, binary.LittleEndian, uint32(16))
	binary.Write(w, binary.LittleEndian, uint16(pcmFormat))
	binary.Write(w, binary.LittleEndian, uint16(channels))
	binary.Write(w, binary.LittleEndian, uint32(rate))
	binary.Write(w, binary.LittleEndian, uint32(byteRate))
	binary.Write(w, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w, binary.LittleEndian, uint16(16))
	w.WriteString("data")
	binary.Write(w, binary.LittleEndian, uint32(dataLen))
}
