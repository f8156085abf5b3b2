package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func chatReply(content string) string {
	reply := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	}
	payload, _ := json.Marshal(reply)
	return string(payload)
}

func TestClientEvaluateParsesVerdict(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatReply(`{"plausible": true, "confidence": 0.82, "rationale": "matches enrolled appearance"}`)))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "key-123", Model: "judge-v1"}, zap.NewNop())
	verdict, err := client.Evaluate(context.Background(), []byte("fake-jpeg"), "alice")
	if err != nil {
		t.Fatalf("expected verdict, got %v", err)
	}

	if !verdict.Plausible || verdict.Confidence != 0.82 {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer key-123" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody.Model != "judge-v1" {
		t.Fatalf("unexpected model %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 1 || len(gotBody.Messages[0].Content) != 2 {
		t.Fatalf("unexpected message shape %+v", gotBody.Messages)
	}
	if !strings.Contains(gotBody.Messages[0].Content[0].Text, `"alice"`) {
		t.Fatal("prompt does not name the claimed identity")
	}
	if img := gotBody.Messages[0].Content[1].ImageURL; img == nil || !strings.HasPrefix(img.URL, "data:image/jpeg;base64,") {
		t.Fatal("request does not attach the face crop as a data URL")
	}
}

func TestClientEvaluateNon200IsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
	if _, err := client.Evaluate(context.Background(), []byte("x"), "alice"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientEvaluateTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	// Unblock the handler before Close waits on it.
	defer server.Close()
	defer close(release)

	client := NewClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, zap.NewNop())
	if _, err := client.Evaluate(context.Background(), []byte("x"), "alice"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientEvaluateMalformedContentIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatReply("I cannot answer that.")))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
	if _, err := client.Evaluate(context.Background(), []byte("x"), "alice"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientEvaluateJudgeErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key", "type": "auth"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
	if _, err := client.Evaluate(context.Background(), []byte("x"), "alice"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestParseAnswerToleratesCodeFences(t *testing.T) {
	answer, err := parseAnswer("```json\n{\"plausible\": false, \"confidence\": 0.3, \"rationale\": \"different person\"}\n```")
	if err != nil {
		t.Fatalf("expected parsed answer, got %v", err)
	}
	if answer.Plausible || answer.Confidence != 0.3 {
		t.Fatalf("unexpected answer %+v", answer)
	}
}

func TestParseAnswerRejectsOutOfRangeConfidence(t *testing.T) {
	if _, err := parseAnswer(`{"plausible": true, "confidence": 1.5}`); err == nil {
		t.Fatal("expected error for confidence above 1")
	}
	if _, err := parseAnswer(`{"plausible": true, "confidence": -0.1}`); err == nil {
		t.Fatal("expected error for negative confidence")
	}
}
