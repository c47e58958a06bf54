package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"adaptrix/internal/infra/credentials"
)

// ErrMissingKey is returned when no OpenAI key is configured.
var ErrMissingKey = errors.New("whisper: API key is missing")

// ErrNoAudio is returned for an empty clip.
var ErrNoAudio = errors.New("whisper: no audio data provided")

const previewRunes = 100

type WhisperOptions struct {
	BaseURL    string
	Model      string
	Key        credentials.KeyFunc
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxTries   uint
}

// WhisperClient detects the spoken language of a short audio clip using the
// OpenAI transcription endpoint.
type WhisperClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	key        credentials.KeyFunc
	maxTries   uint
}

func NewWhisperClient(opts WhisperOptions) *WhisperClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "whisper-1"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	tries := opts.MaxTries
	if tries == 0 {
		tries = 3
	}
	return &WhisperClient{
		httpClient: client,
		baseURL:    base,
		model:      model,
		key:        opts.Key,
		maxTries:   tries,
	}
}

// Detection is the result of a language detection call.
type Detection struct {
	Language string `json:"detected_language"`
	Text     string `json:"text"`
}

type whisperResp struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Error    *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Detect transcribes a WAV clip and returns its language code (default "en")
// with the first 100 characters of the transcript. 5xx and 429 responses are
// retried with exponential backoff.
func (c *WhisperClient) Detect(ctx context.Context, audio []byte) (Detection, error) {
	if c == nil {
		return Detection{}, errors.New("whisper client not configured")
	}
	if len(audio) == 0 {
		return Detection{}, ErrNoAudio
	}
	token := ""
	if c.key != nil {
		var err error
		if token, err = c.key(ctx); err != nil {
			return Detection{}, fmt.Errorf("whisper: resolve key: %w", err)
		}
	}
	if strings.TrimSpace(token) == "" {
		return Detection{}, ErrMissingKey
	}

	body, contentType, err := c.form(audio)
	if err != nil {
		return Detection{}, err
	}
	out, err := backoff.Retry(ctx, func() (whisperResp, error) {
		return c.post(ctx, token, body, contentType)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		return Detection{}, err
	}

	lang := languageCode(out.Language)
	if lang == "" {
		lang = "en"
	}
	return Detection{Language: lang, Text: truncateRunes(out.Text, previewRunes)}, nil
}

func (c *WhisperClient) form(audio []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("model", c.model); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func (c *WhisperClient) post(ctx context.Context, token string, body []byte, contentType string) (whisperResp, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", bytes.NewReader(body))
	if err != nil {
		return whisperResp{}, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return whisperResp{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return whisperResp{}, err
	}
	var out whisperResp
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode >= http.StatusBadRequest {
		statusErr := fmt.Errorf("whisper: http %d", resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			statusErr = fmt.Errorf("whisper error: %s (%d)", out.Error.Message, resp.StatusCode)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return whisperResp{}, statusErr
		}
		return whisperResp{}, backoff.Permanent(statusErr)
	}
	if decodeErr != nil {
		return whisperResp{}, backoff.Permanent(fmt.Errorf("whisper: decode response: %w", decodeErr))
	}
	return out, nil
}

// Whisper's verbose output names the language ("english") instead of a code.
var languageNames = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"japanese":   "ja",
	"german":     "de",
	"portuguese": "pt",
	"italian":    "it",
	"chinese":    "zh",
	"korean":     "ko",
	"indonesian": "id",
	"hindi":      "hi",
	"arabic":     "ar",
	"russian":    "ru",
	"dutch":      "nl",
}

func languageCode(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if code, ok := languageNames[name]; ok {
		return code
	}
	return name
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
