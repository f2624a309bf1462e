package openrouter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/randomtoy/tarot-reading/internal/adapters/llm/openrouter"
	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
)

func testInput() ports.GenerateInput {
	return ports.GenerateInput{
		Request: domain.ReadingRequest{
			Question: "What lies ahead?",
			Cards: []domain.DrawnCard{
				{Position: "Past", Name: "The Fool", Orientation: domain.Upright},
				{Position: "Present", Name: "The Magician", Orientation: domain.Reversed},
				{Position: "Future", Name: "The Star", Orientation: domain.Upright},
			},
		},
		Spread: domain.SpreadDef{Key: "threeCard", Name: "Past, Present, Future"},
		State:  &ports.PromptState{},
	}
}

func chatServer(t *testing.T, handle func(req map[string]any) (int, string)) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)

		status, content := handle(req)
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		resp := map[string]any{
			"model": req["model"],
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 80},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestBackend_Generate_Success(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("bad content-type: %s", r.Header.Get("Content-Type"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "test-model",
			"choices": []map[string]any{{"message": map[string]any{"content": "  A thoughtful reading.  "}}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 20},
		})
	}))
	defer srv.Close()

	client := openrouter.NewClient(srv.Client(), "test-key", srv.URL, slog.Default())
	b := openrouter.NewBackend(client, "test-model", nil, slog.Default())

	out, err := b.Generate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "A thoughtful reading." {
		t.Errorf("unexpected text: %q", out.Text)
	}
	if out.Model != "test-model" {
		t.Errorf("unexpected model: %s", out.Model)
	}
	if out.Usage != (domain.TokenUsage{Input: 10, Output: 20}) {
		t.Errorf("unexpected usage: %+v", out.Usage)
	}
	if !strings.Contains(out.Prompts.User, "The Magician (reversed)") {
		t.Errorf("user prompt missing card: %s", out.Prompts.User)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("bad auth header: %s", gotAuth)
	}
}

func TestBackend_Generate_FallbackModel(t *testing.T) {
	srv, calls := chatServer(t, func(req map[string]any) (int, string) {
		if req["model"] == "primary" {
			return http.StatusTooManyRequests, ""
		}
		return http.StatusOK, "From the fallback model."
	})

	client := openrouter.NewClient(srv.Client(), "key", srv.URL, slog.Default())
	b := openrouter.NewBackend(client, "primary", []string{"secondary"}, slog.Default())

	out, err := b.Generate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *calls != 2 {
		t.Errorf("expected 2 calls, got %d", *calls)
	}
	if out.Model != "secondary" {
		t.Errorf("unexpected model: %s", out.Model)
	}
}

func TestBackend_Generate_UpstreamError(t *testing.T) {
	srv, _ := chatServer(t, func(map[string]any) (int, string) { return http.StatusInternalServerError, "" })

	client := openrouter.NewClient(srv.Client(), "key", srv.URL, slog.Default())
	b := openrouter.NewBackend(client, "model", nil, slog.Default())

	_, err := b.Generate(context.Background(), testInput())
	if !errors.Is(err, domain.ErrUpstreamLLM) {
		t.Fatalf("expected ErrUpstreamLLM, got %v", err)
	}
}

func TestBackend_Configured(t *testing.T) {
	client := openrouter.NewClient(http.DefaultClient, "", "http://localhost", slog.Default())
	b := openrouter.NewBackend(client, "model", nil, slog.Default())
	if b.Configured() {
		t.Error("backend without API key must not be configured")
	}
	if _, err := b.Generate(context.Background(), testInput()); !errors.Is(err, domain.ErrBackendDisabled) {
		t.Errorf("expected ErrBackendDisabled, got %v", err)
	}
}

func evalInput() ports.EvalInput {
	in := testInput()
	return ports.EvalInput{RequestID: "r1", Request: in.Request, Narrative: "**Past: The Fool**\nA reading."}
}

func TestEvaluator_Evaluate_Success(t *testing.T) {
	srv, _ := chatServer(t, func(req map[string]any) (int, string) {
		if req["temperature"] != 0.0 {
			t.Errorf("expected temperature 0, got %v", req["temperature"])
		}
		return http.StatusOK, "```json\n{\"safety\": 5, \"tone\": 4, \"personalization\": 9, \"coherence\": 4, \"overall\": 4, \"safety_flag\": false, \"notes\": \"fine\"}\n```"
	})

	client := openrouter.NewClient(srv.Client(), "key", srv.URL, slog.Default())
	ev, err := openrouter.NewEvaluator(client, "judge", slog.Default()).Evaluate(context.Background(), evalInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Mode != domain.EvalModeModel || ev.Model != "judge" {
		t.Errorf("unexpected mode/model: %s/%s", ev.Mode, ev.Model)
	}
	if ev.Scores.Personalization != 5 {
		t.Errorf("scores must be clamped to 5, got %d", ev.Scores.Personalization)
	}
	if !ev.Passed || ev.SafetyFlag {
		t.Errorf("expected passing evaluation: %+v", ev)
	}
}

func TestEvaluator_Evaluate_BadJSON_Retry_Success(t *testing.T) {
	callCount := 0
	srv, _ := chatServer(t, func(map[string]any) (int, string) {
		callCount++
		if callCount == 1 {
			return http.StatusOK, "this is not json at all"
		}
		return http.StatusOK, `{"safety": 2, "tone": 4, "personalization": 3, "coherence": 3, "overall": 3, "safety_flag": true, "notes": "medical directive"}`
	})

	client := openrouter.NewClient(srv.Client(), "key", srv.URL, slog.Default())
	ev, err := openrouter.NewEvaluator(client, "judge", slog.Default()).Evaluate(context.Background(), evalInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls (original + retry), got %d", callCount)
	}
	if !ev.SafetyFlag || ev.Passed {
		t.Errorf("expected flagged evaluation: %+v", ev)
	}
}

func TestEvaluator_Evaluate_LowScoresFailWithoutFlag(t *testing.T) {
	srv, _ := chatServer(t, func(map[string]any) (int, string) {
		return http.StatusOK, `{"safety": 1, "tone": 4, "personalization": 3, "coherence": 3, "overall": 2, "safety_flag": false, "notes": "fatalistic"}`
	})

	client := openrouter.NewClient(srv.Client(), "key", srv.URL, slog.Default())
	ev, err := openrouter.NewEvaluator(client, "judge", slog.Default()).Evaluate(context.Background(), evalInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Passed {
		t.Errorf("safety score 1 must not pass: %+v", ev)
	}
}

func TestEvaluator_Evaluate_MissingScoresAreInvalid(t *testing.T) {
	srv, calls := chatServer(t, func(map[string]any) (int, string) { return http.StatusOK, `{}` })

	client := openrouter.NewClient(srv.Client(), "key", srv.URL, slog.Default())
	_, err := openrouter.NewEvaluator(client, "judge", slog.Default()).Evaluate(context.Background(), evalInput())
	if !errors.Is(err, domain.ErrInvalidLLMJSON) {
		t.Fatalf("expected ErrInvalidLLMJSON, got %v", err)
	}
	if *calls != 2 {
		t.Errorf("expected 2 calls, got %d", *calls)
	}
}

func TestEvaluator_Evaluate_BadJSON_Retry_Failure(t *testing.T) {
	srv, calls := chatServer(t, func(map[string]any) (int, string) { return http.StatusOK, "still not json" })

	client := openrouter.NewClient(srv.Client(), "key", srv.URL, slog.Default())
	_, err := openrouter.NewEvaluator(client, "judge", slog.Default()).Evaluate(context.Background(), evalInput())
	if !errors.Is(err, domain.ErrInvalidLLMJSON) {
		t.Fatalf("expected ErrInvalidLLMJSON, got %v", err)
	}
	if *calls != 2 {
		t.Errorf("expected 2 calls, got %d", *calls)
	}
}
