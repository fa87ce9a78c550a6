package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/config"
)

type fakeTools struct {
	searched string
	read     string
}

func (f *fakeTools) ReadDoc(relPath string) string {
	f.read = relPath
	return "doc content"
}

func (f *fakeTools) ListDocs(relPath string) string { return "AGENT.md" }

func (f *fakeTools) SearchDocs(ctx context.Context, query string) string {
	f.searched = query
	return "--- plans/rollout.md ---\nship on Friday"
}

func (f *fakeTools) EntryPointContext() string { return "Top level guide" }
func (f *fakeTools) Root() string              { return "/library" }

func (f *fakeTools) BuildContext(transcript string) string { return "" }

func answerTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeTools) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		AnthropicAPIKey: "test",
		AnswerModel:     "test-model",
	}
	tools := &fakeTools{}
	c := NewClient(cfg, tools, zerolog.Nop())
	c.baseURL = srv.URL
	return c, tools
}

func TestAnswerRunsToolLoop(t *testing.T) {
	var requests []messagesRequest
	c, tools := answerTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		requests = append(requests, req)

		w.Header().Set("Content-Type", "application/json")
		if len(requests) == 1 {
			fmt.Fprint(w, `{
				"content": [{"type": "tool_use", "id": "tu_1", "name": "search_files", "input": {"query": "rollout"}}],
				"stop_reason": "tool_use"
			}`)
			return
		}
		fmt.Fprint(w, `{
			"content": [{"type": "text", "text": "The rollout ships on Friday."}],
			"stop_reason": "end_turn"
		}`)
	})

	got, err := c.Answer(context.Background(), "when is the rollout?", "[00:00:01] planning talk")
	if err != nil {
		t.Fatal(err)
	}
	if got != "The rollout ships on Friday." {
		t.Errorf("answer = %q", got)
	}
	if tools.searched != "rollout" {
		t.Errorf("searched = %q", tools.searched)
	}

	if len(requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(requests))
	}
	if len(requests[0].Tools) == 0 {
		t.Error("first request declared no tools")
	}
	// The follow-up carries the assistant's tool call and our result.
	body, _ := json.Marshal(requests[1].Messages)
	for _, want := range []string{"tool_use", "tu_1", "tool_result", "ship on Friday"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("follow-up messages missing %q:\n%s", want, body)
		}
	}
}

func TestAnswerGivesUpAfterToolIterations(t *testing.T) {
	calls := 0
	c, _ := answerTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"content": [{"type": "tool_use", "id": "tu_1", "name": "list_directory", "input": {}}],
			"stop_reason": "tool_use"
		}`)
	})

	got, err := c.Answer(context.Background(), "what files exist?", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != stuckAnswer {
		t.Errorf("answer = %q, want the stuck fallback", got)
	}
	if calls != maxToolIterations {
		t.Errorf("calls = %d, want %d", calls, maxToolIterations)
	}
}

func TestExecuteToolDispatch(t *testing.T) {
	tools := &fakeTools{}
	ctx := context.Background()

	if got := executeTool(ctx, tools, "read_file", json.RawMessage(`{"path":"plans/rollout.md"}`)); got != "doc content" {
		t.Errorf("read_file = %q", got)
	}
	if tools.read != "plans/rollout.md" {
		t.Errorf("read path = %q", tools.read)
	}

	if got := executeTool(ctx, tools, "list_directory", json.RawMessage(`{}`)); got != "AGENT.md" {
		t.Errorf("list_directory = %q", got)
	}

	if got := executeTool(ctx, tools, "nope", json.RawMessage(`{}`)); !strings.Contains(got, "Unknown tool") {
		t.Errorf("unknown tool = %q", got)
	}
}
