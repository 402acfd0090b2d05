package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIConfig configures the OpenAI transcription backend.
type OpenAIConfig struct {
	Key        KeyFunc
	Model      string
	Language   string // empty or "auto" lets the service detect it
	Prompt     string
	BaseURL    string // for OpenAI-compatible servers
	HTTPClient *http.Client
}

// OpenAI calls the audio transcription endpoint through openai-go.
type OpenAI struct {
	cfg OpenAIConfig
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Key == nil {
		cfg.Key = func() string { return "" }
	}
	return &OpenAI{cfg: cfg}
}

func (o *OpenAI) client(apiKey string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if o.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.cfg.BaseURL))
	}
	if o.cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(o.cfg.HTTPClient))
	}
	return openai.NewClient(opts...)
}

func (o *OpenAI) Transcribe(ctx context.Context, wavPath string) (string, error) {
	apiKey := o.cfg.Key()
	if apiKey == "" {
		return "", &Error{Kind: KindAuth, Err: ErrNoAPIKey}
	}

	f, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("failed to open clip: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(o.cfg.Model),
	}
	if o.cfg.Language != "" && o.cfg.Language != "auto" {
		params.Language = openai.String(o.cfg.Language)
	}
	if o.cfg.Prompt != "" {
		params.Prompt = openai.String(o.cfg.Prompt)
	}

	slog.Debug("Sending clip to OpenAI", "model", o.cfg.Model, "file", wavPath)

	client := o.client(apiKey)
	resp, err := client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAI(ctx, err)
	}
	return CleanText(resp.Text), nil
}

func classifyOpenAI(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, err)
	}
	if ctx.Err() != nil {
		return networkError(ctx.Err())
	}
	return networkError(err)
}
