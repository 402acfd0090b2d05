package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const DefaultTextPath = "text"

// HTTPConfig configures a generic multipart transcription endpoint.
type HTTPConfig struct {
	Endpoint   string
	Key        KeyFunc
	Model      string
	Language   string
	Prompt     string
	TextPath   string // gjson path, "results[0].text" style indexes are accepted
	HTTPClient *http.Client
}

// HTTP uploads the clip as multipart/form-data to any Whisper-style endpoint
// and reads the text out of the JSON reply.
type HTTP struct {
	cfg    HTTPConfig
	client *resty.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.TextPath == "" {
		cfg.TextPath = DefaultTextPath
	}
	if cfg.Key == nil {
		cfg.Key = func() string { return "" }
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout, false, false)
	}

	client := resty.NewWithClient(httpClient).
		SetHeader("User-Agent", "dictate/1.0").
		SetHeader("Accept", "application/json")

	return &HTTP{
		cfg:    cfg,
		client: client,
	}
}

func (h *HTTP) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if h.cfg.Endpoint == "" {
		return "", &Error{Kind: KindResponse, Err: errors.New("API endpoint is empty")}
	}

	form := map[string]string{}
	if h.cfg.Model != "" {
		form["model"] = h.cfg.Model
	}
	if h.cfg.Language != "" && h.cfg.Language != "auto" {
		form["language"] = h.cfg.Language
	}
	if h.cfg.Prompt != "" {
		form["prompt"] = h.cfg.Prompt
	}

	req := h.client.R().
		SetContext(ctx).
		SetFile("file", wavPath).
		SetFormData(form)
	if key := h.cfg.Key(); key != "" {
		req.SetAuthToken(key)
	}

	start := time.Now()
	resp, err := req.Post(h.cfg.Endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return "", networkError(ctx.Err())
		}
		return "", networkError(err)
	}

	slog.Debug("Upload finished",
		"endpoint", h.cfg.Endpoint,
		"status", resp.StatusCode(),
		"duration", time.Since(start))

	if resp.StatusCode() != http.StatusOK {
		return "", classifyStatus(resp.StatusCode(), fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 200)))
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return "", &Error{Kind: KindResponse, Status: resp.StatusCode(), Err: errors.New("response is not JSON")}
	}
	result := gjson.GetBytes(body, gjsonPath(h.cfg.TextPath))
	if !result.Exists() {
		return "", &Error{Kind: KindResponse, Status: resp.StatusCode(), Err: fmt.Errorf("no value at %q", h.cfg.TextPath)}
	}
	return CleanText(result.String()), nil
}

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// gjsonPath rewrites "a.b[0].c" into gjson's "a.b.0.c".
func gjsonPath(path string) string {
	return indexPattern.ReplaceAllString(path, ".$1")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
