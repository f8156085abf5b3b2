package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config carries the judge endpoint settings. Credentials are injected
// here at construction, never read from the environment per call.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible multimodal endpoint. The judge is
// asked a single closed question about the claimed identity and must
// answer in JSON.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a judge client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("vision_client"),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type judgeAnswer struct {
	Plausible  bool    `json:"plausible"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Evaluate sends the face crop and returns the parsed verdict. Every
// failure mode folds into ErrUnavailable so the caller's policy stays
// local-only.
func (c *Client) Evaluate(ctx context.Context, faceJPEG []byte, claimedIdentity string) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"You are reviewing a facility access attempt. The submitted face crop is attached. "+
			"Does this image plausibly depict the enrolled appearance of identity %q? "+
			"Respond with only a JSON object: {\"plausible\": bool, \"confidence\": number between 0 and 1, \"rationale\": string}.",
		claimedIdentity,
	)

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{
						URL: fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(faceJPEG)),
					}},
				},
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("vision judge returned non-200", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("%w: judge error: %s", ErrUnavailable, chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	answer, err := parseAnswer(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Verdict{
		Plausible:  answer.Plausible,
		Confidence: answer.Confidence,
		Rationale:  answer.Rationale,
	}, nil
}

// parseAnswer tolerates models wrapping the JSON object in a markdown
// code fence.
func parseAnswer(content string) (*judgeAnswer, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var answer judgeAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return nil, fmt.Errorf("malformed verdict content: %v", err)
	}
	if answer.Confidence < 0 || answer.Confidence > 1 {
		return nil, fmt.Errorf("verdict confidence %.2f outside [0, 1]", answer.Confidence)
	}
	return &answer, nil
}
