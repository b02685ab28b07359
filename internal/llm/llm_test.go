package llm

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	lastRequest openai.ChatCompletionRequest
	response    openai.ChatCompletionResponse
	err         error
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastRequest = req
	return f.response, f.err
}

func completionWith(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

func TestReplyCarriesSystemPromptAndFullHistory(t *testing.T) {
	completer := &fakeCompleter{response: completionWith("Tss, encore toi.")}
	history := NewHistory(0)
	responder := NewResponder(completer, history, zap.NewNop())

	// Three prior turns in the channel, then the mention itself.
	responder.Record("chan-1", "salut")
	history.Append("chan-1", openai.ChatMessageRoleAssistant, "Quoi encore?")
	responder.Record("chan-1", "rien")
	responder.Record("chan-1", "@bot un tournoi ce week-end?")

	reply := responder.Reply(context.Background(), "chan-1")
	if reply != "Tss, encore toi." {
		t.Fatalf("unexpected reply %q", reply)
	}

	msgs := completer.lastRequest.Messages
	if len(msgs) != 5 {
		t.Fatalf("expected 1 system + 4 history turns, got %d messages", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("first message role = %q, want system", msgs[0].Role)
	}
	if msgs[4].Content != "@bot un tournoi ce week-end?" {
		t.Fatalf("last message = %q, want the mention", msgs[4].Content)
	}

	if completer.lastRequest.Model != openai.GPT4 {
		t.Fatalf("model = %q, want %q", completer.lastRequest.Model, openai.GPT4)
	}
	if completer.lastRequest.MaxTokens != 512 {
		t.Fatalf("max tokens = %d, want 512", completer.lastRequest.MaxTokens)
	}

	// The assistant turn joins the history: 4 prior + 1 reply.
	if got := history.Len("chan-1"); got != 5 {
		t.Fatalf("history length after reply = %d, want 5", got)
	}
}

func TestReplyAPIFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("rate limited")}
	history := NewHistory(0)
	responder := NewResponder(completer, history, zap.NewNop())

	responder.Record("chan-1", "@bot hello")
	if got := responder.Reply(context.Background(), "chan-1"); got != replyNoResponse {
		t.Fatalf("reply = %q, want %q", got, replyNoResponse)
	}
	if history.Len("chan-1") != 1 {
		t.Fatal("a failed completion must not grow the history")
	}
}

func TestReplyNoChoices(t *testing.T) {
	completer := &fakeCompleter{response: openai.ChatCompletionResponse{}}
	responder := NewResponder(completer, NewHistory(0), zap.NewNop())

	responder.Record("chan-1", "@bot hello")
	if got := responder.Reply(context.Background(), "chan-1"); got != replyNoResponse {
		t.Fatalf("reply = %q, want %q", got, replyNoResponse)
	}
}

func TestReplyEmptyContent(t *testing.T) {
	completer := &fakeCompleter{response: completionWith("")}
	history := NewHistory(0)
	responder := NewResponder(completer, history, zap.NewNop())

	responder.Record("chan-1", "@bot hello")
	if got := responder.Reply(context.Background(), "chan-1"); got != replyEmpty {
		t.Fatalf("reply = %q, want %q", got, replyEmpty)
	}
	if history.Len("chan-1") != 1 {
		t.Fatal("an empty completion must not grow the history")
	}
}

func TestHistoryUnboundedByDefault(t *testing.T) {
	// With no cap configured the history grows without limit until process
	// restart. Known gap; the per-channel cap is the opt-in fix.
	history := NewHistory(0)
	for i := 0; i < 500; i++ {
		history.Append("chan-1", openai.ChatMessageRoleUser, "message")
	}
	if got := history.Len("chan-1"); got != 500 {
		t.Fatalf("expected 500 turns retained, got %d", got)
	}
}

func TestHistoryCapEvictsOldestTurns(t *testing.T) {
	history := NewHistory(4)
	for _, content := range []string{"one", "two", "three", "four", "five", "six"} {
		history.Append("chan-1", openai.ChatMessageRoleUser, content)
	}

	turns := history.Turns("chan-1")
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns retained, got %d", len(turns))
	}
	if turns[0].Content != "three" || turns[3].Content != "six" {
		t.Fatalf("expected oldest turns evicted, got %+v", turns)
	}
}

func TestHistoryIsPerChannel(t *testing.T) {
	history := NewHistory(0)
	history.Append("chan-1", openai.ChatMessageRoleUser, "a")
	history.Append("chan-2", openai.ChatMessageRoleUser, "b")

	if history.Len("chan-1") != 1 || history.Len("chan-2") != 1 {
		t.Fatal("histories must be keyed by channel")
	}
	if history.Turns("chan-1")[0].Content != "a" {
		t.Fatal("channel histories must not mix")
	}
}
