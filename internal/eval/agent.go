package eval

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// goalCompleteMarker is the simulated user's stop token.
const goalCompleteMarker = "GOAL_COMPLETE"

// qaIntents are the intents that, with a substantive response, satisfy a
// question-answering goal.
var qaIntents = []string{"nutrition_qa", "general_qa", "faq_answer"}

// ConversationTurn is one side of one exchange.
type ConversationTurn struct {
	Role    string   `json:"role"`
	Message string   `json:"message"`
	Intents []string `json:"intents,omitempty"`
}

// ConversationResult is the finished multi-turn conversation.
type ConversationResult struct {
	Turns             []ConversationTurn `json:"turns"`
	TotalTurns        int                `json:"totalTurns"`
	GoalAchieved      bool               `json:"goalAchieved"`
	AbandonmentReason string             `json:"abandonmentReason,omitempty"`
}

// Transcript renders the conversation as "User:"/"Bot:" lines for judging.
func (r ConversationResult) Transcript() string {
	var b strings.Builder
	for i, t := range r.Turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		if t.Role == "user" {
			b.WriteString("User: ")
		} else {
			b.WriteString("Bot: ")
		}
		b.WriteString(t.Message)
	}
	return b.String()
}

// ConversationAgent drives a simulated user against the external chat API.
type ConversationAgent struct {
	chat      domain.ChatAPI
	llm       domain.LLMClient
	prompts   *PromptSource
	probe     domain.CancelProbe
	jobID     string
	maxTurns  int
	turnDelay time.Duration
}

// NewConversationAgent builds an agent for one job.
func NewConversationAgent(chat domain.ChatAPI, llm domain.LLMClient, prompts *PromptSource, probe domain.CancelProbe, jobID string, maxTurns int, turnDelay time.Duration) *ConversationAgent {
	if maxTurns < 1 {
		maxTurns = 5
	}
	return &ConversationAgent{
		chat:      chat,
		llm:       llm,
		prompts:   prompts,
		probe:     probe,
		jobID:     jobID,
		maxTurns:  maxTurns,
		turnDelay: turnDelay,
	}
}

// Run plays the test case to completion: goal met, turns exhausted, the
// simulated user stopping, or the chat API failing (abandonment).
func (a *ConversationAgent) Run(ctx domain.Context, tc TestCase) (ConversationResult, error) {
	state := domain.NewKairaSessionState("adv-" + uuid.New().String())
	var result ConversationResult
	message := tc.OpeningMessage

	for turn := 0; turn < a.maxTurns; turn++ {
		if turn > 0 && a.turnDelay > 0 {
			if a.cancelled(ctx) {
				return result, domain.ErrJobCancelled
			}
			select {
			case <-ctx.Done():
				return result, domain.ErrJobCancelled
			case <-time.After(a.turnDelay):
			}
		}
		if a.cancelled(ctx) {
			return result, domain.ErrJobCancelled
		}

		payload, err := state.BuildPayload(message)
		if err != nil {
			return result, fmt.Errorf("op=agent.run: %w", err)
		}
		chunks, err := a.chat.Send(ctx, payload)
		if err != nil {
			result.AbandonmentReason = err.Error()
			return result, nil
		}

		resp := reduceStream(state, chunks)
		result.Turns = append(result.Turns,
			ConversationTurn{Role: "user", Message: message},
			ConversationTurn{Role: "bot", Message: resp.FullMessage, Intents: resp.Intents},
		)
		result.TotalTurns = turn + 1

		if goalMet(tc, resp) {
			result.GoalAchieved = true
			return result, nil
		}
		if turn == a.maxTurns-1 {
			break
		}

		if a.cancelled(ctx) {
			return result, domain.ErrJobCancelled
		}
		next, err := a.nextUserTurn(ctx, tc, result)
		if err != nil {
			result.AbandonmentReason = err.Error()
			return result, nil
		}
		if next == "" || strings.Contains(next, goalCompleteMarker) {
			return result, nil
		}
		message = next
	}
	return result, nil
}

func (a *ConversationAgent) cancelled(ctx domain.Context) bool {
	return a.probe != nil && a.jobID != "" && a.probe.IsCancelled(ctx, a.jobID)
}

// reduceStream folds the frames into session state and aggregates the turn.
func reduceStream(state *domain.KairaSessionState, chunks []domain.KairaChunk) domain.KairaStreamResponse {
	var resp domain.KairaStreamResponse
	var full strings.Builder
	for _, c := range chunks {
		state.ApplyChunk(c)
		if c.Intent != "" {
			resp.Intents = append(resp.Intents, c.Intent)
		}
		if c.Type == domain.ChunkAgentResponse && c.Message != "" {
			resp.AgentResponses = append(resp.AgentResponses, c.Message)
			full.WriteString(c.Message)
		}
	}
	resp.FullMessage = full.String()
	return resp
}

// goalMet checks completion by intent, by the QA intent set with a
// substantive response, or by the goal text appearing in the response.
func goalMet(tc TestCase, resp domain.KairaStreamResponse) bool {
	if resp.HasIntent("meal_confirmation") {
		return true
	}
	for _, intent := range qaIntents {
		if resp.HasIntent(intent) && len(resp.FullMessage) >= 50 {
			return true
		}
	}
	goal := strings.ToLower(strings.TrimSpace(tc.Goal))
	if goal != "" && strings.Contains(strings.ToLower(resp.FullMessage), goal) {
		return true
	}
	return false
}

// nextUserTurn asks the LLM, in-role, for the simulated user's next message.
func (a *ConversationAgent) nextUserTurn(ctx domain.Context, tc TestCase, result ConversationResult) (string, error) {
	prompt := fill(a.prompts.Get(ctx, PromptUserSimulation), map[string]string{
		"goal":       tc.Goal,
		"difficulty": tc.Difficulty,
		"transcript": result.Transcript(),
	})
	text, err := a.llm.Generate(ctx, prompt, domain.GenerateOpts{})
	if err != nil {
		return "", fmt.Errorf("op=agent.next_turn: %w", err)
	}
	return strings.TrimSpace(text), nil
}
