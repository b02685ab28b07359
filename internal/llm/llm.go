package llm

import (
	"context"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// systemPrompt is the fixed persona prepended to every completion request.
const systemPrompt = "Locator-Bot, tu es un Pokemon Motisma coincé dans un GPS dédié au jeu de carte a collectioner Pokemon pour trouver des Cup et des Challenges a proximité, sarcastique et aigri. Que ce soit sur les règles, les cartes rares ou les stratégies de jeu, ou les decrire les joueurs, n'oublie pas d'ajouter ta touche personnelle de sarcasme et de dédain."

const (
	replyEmpty      = "Sorry, I couldn't come up with a response."
	replyNoResponse = "No response from the AI."
)

// Sampling parameters are fixed; the model never varies at runtime.
const (
	completionModel       = openai.GPT4
	completionTemperature = 0.5
	completionMaxTokens   = 512
	completionTopP        = 1
)

// Turn is one conversation turn kept in a channel's history.
type Turn struct {
	Role    string
	Content string
}

// History holds per-channel conversation turns. Discord dispatches message
// handlers on separate goroutines, so access is mutex-guarded. maxTurns
// caps each channel's history, evicting oldest turns first; zero means
// unbounded.
type History struct {
	mu       sync.Mutex
	maxTurns int
	turns    map[string][]Turn
}

func NewHistory(maxTurns int) *History {
	return &History{
		maxTurns: maxTurns,
		turns:    make(map[string][]Turn),
	}
}

// Append records a turn for a channel, evicting the oldest turns when the
// channel exceeds the configured cap.
func (h *History) Append(channelID, role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	turns := append(h.turns[channelID], Turn{Role: role, Content: content})
	if h.maxTurns > 0 && len(turns) > h.maxTurns {
		turns = turns[len(turns)-h.maxTurns:]
	}
	h.turns[channelID] = turns
}

// Turns returns a copy of a channel's history in order.
func (h *History) Turns(channelID string) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	turns := h.turns[channelID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Len reports the number of turns recorded for a channel.
func (h *History) Len(channelID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns[channelID])
}

// ChatCompleter is the slice of the OpenAI client the responder consumes.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Responder relays mentions to the OpenAI chat API, keeping the per-channel
// conversation history current.
type Responder struct {
	client  ChatCompleter
	history *History
	logger  *zap.Logger
}

func NewResponder(client ChatCompleter, history *History, logger *zap.Logger) *Responder {
	return &Responder{
		client:  client,
		history: history,
		logger:  logger,
	}
}

// Record appends a user message to the channel's history. Every non-bot
// message is recorded, mention or not, so later mentions carry the channel's
// recent context.
func (r *Responder) Record(channelID, content string) {
	r.history.Append(channelID, openai.ChatMessageRoleUser, content)
}

// Reply sends the system prompt plus the channel's full history to the chat
// API and returns the assistant's reply. Failures never propagate as errors
// to the chat surface: they degrade to fixed apology strings, and only a
// usable completion is appended to the history.
func (r *Responder) Reply(ctx context.Context, channelID string) string {
	turns := r.history.Turns(channelID)

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, turn := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       completionModel,
		Messages:    messages,
		Temperature: completionTemperature,
		MaxTokens:   completionMaxTokens,
		TopP:        completionTopP,
	})
	if err != nil {
		r.logger.Error("OpenAI request failed",
			zap.String("channel_id", channelID),
			zap.Error(err))
		return replyNoResponse
	}

	if len(resp.Choices) == 0 {
		return replyNoResponse
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return replyEmpty
	}

	r.history.Append(channelID, openai.ChatMessageRoleAssistant, content)
	return content
}
