package services

import (
	"context"
	"path/filepath"

	openai "github.com/sashabaranov/go-openai"

	"nurse-handover/backend/internal/errs"
)

// TranscriptionClient is the speech-to-text half of *openai.Client.
type TranscriptionClient interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAITranscriber sends stored recordings to Whisper. It makes a single
// attempt; retries belong to the caller.
type OpenAITranscriber struct {
	client TranscriptionClient
	store  AudioStore
	model  string
}

func NewOpenAITranscriber(client TranscriptionClient, store AudioStore, model string) *OpenAITranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{client: client, store: store, model: model}
}

// NewOpenAIClient builds the client shared by the transcriber and reporter.
// An empty baseURL keeps the public API endpoint.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// Transcribe returns the transcript of the artifact at handle verbatim.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, handle string) (string, error) {
	audio, err := t.store.Open(ctx, handle)
	if err != nil {
		return "", errs.Transcription(err)
	}
	defer audio.Close()

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filepath.Base(handle),
		Reader:   audio,
	})
	if err != nil {
		return "", errs.Transcription(err)
	}
	return resp.Text, nil
}
