package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const transcribePrompt = "Transcribe this voice message verbatim. Keep the original language. Return only the transcript text, nothing else."

// TranscribeAudio sends a voice note to Gemini and returns the plain
// transcript. An empty transcript is an error; silence is not an answer.
func (g *Generator) TranscribeAudio(ctx context.Context, data []byte, mimeType string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini generator is not initialized")
	}
	if len(data) == 0 {
		return "", errors.New("audio payload is empty")
	}
	if mimeType = strings.TrimSpace(mimeType); mimeType == "" {
		mimeType = "audio/ogg"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}

	transcript := strings.TrimSpace(resp.Text())
	if transcript == "" {
		return "", errors.New("gemini api returned empty transcript")
	}

	return transcript, nil
}
