// Package intake turns Telegram attachments into plain text the classifiers
// can work with.
package intake

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// FileDownloader fetches an attachment by its Telegram file id and reports
// the server-side file name alongside the content.
type FileDownloader interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}

// AudioTranscriber produces a verbatim transcript of an audio payload.
type AudioTranscriber interface {
	TranscribeAudio(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Extractor extracts plain text from uploaded documents. Only text-like
// formats are handled in-process; binary formats are rejected so the user
// can paste the content instead.
type Extractor struct {
	files  FileDownloader
	logger *zap.Logger
}

func NewExtractor(files FileDownloader, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{files: files, logger: logger}
}

// ExtractText downloads the document and returns its text content.
func (e *Extractor) ExtractText(ctx context.Context, fileID string) (string, error) {
	data, name, err := e.files.DownloadFile(ctx, fileID)
	if err != nil {
		return "", err
	}

	text, err := decode(name, data)
	if err != nil {
		return "", err
	}

	e.logger.Debug("document extracted",
		zap.String("file_id", fileID),
		zap.String("name", name),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

func decode(name string, data []byte) (string, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".txt"),
		strings.HasSuffix(lower, ".md"),
		strings.HasSuffix(lower, ".text"):
		// Trusted text extensions go straight through.
	default:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("file %q is not a text document", name)
		}
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("file %q contains no text", name)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("file %q is not valid UTF-8", name)
	}
	return text, nil
}

// Transcriber downloads a voice note and hands it to the audio model.
type Transcriber struct {
	files  FileDownloader
	audio  AudioTranscriber
	logger *zap.Logger
}

func NewTranscriber(files FileDownloader, audio AudioTranscriber, logger *zap.Logger) *Transcriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcriber{files: files, audio: audio, logger: logger}
}

// Transcribe fetches the voice note and returns its transcript.
func (t *Transcriber) Transcribe(ctx context.Context, fileID string) (string, error) {
	data, name, err := t.files.DownloadFile(ctx, fileID)
	if err != nil {
		return "", err
	}

	transcript, err := t.audio.TranscribeAudio(ctx, data, mimeTypeFor(name))
	if err != nil {
		return "", err
	}

	t.logger.Debug("voice transcribed",
		zap.String("file_id", fileID),
		zap.Int("chars", len(transcript)),
	)
	return transcript, nil
}

func mimeTypeFor(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".mp3"):
		return "audio/mp3"
	case strings.HasSuffix(lower, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(lower, ".m4a"):
		return "audio/aac"
	default:
		// Telegram voice notes are OGG/Opus.
		return "audio/ogg"
	}
}
