package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	answerMaxTokens   = 400
	maxToolIterations = 5
)

const conversationSystem = `You are Plus One, a genius-level AI teammate participating in a meeting via phone.

When someone addresses you ("plus one" / "+1"), answer their question clearly and concisely.
You have tools to read files from the knowledge library. Use them to look up decisions, specs, build plans, tasks, and any other project documents.

Guidelines:
- Keep responses to 2-4 sentences for voice delivery. Be concise but ALWAYS give real information.
- NEVER give meta-answers like "that's the project being asked about". Always describe what something IS, its status, and key details.
- Answer from the pre-loaded context below when possible. Use tools for deeper details not in the context.
- If you don't know or can't find the answer, say so honestly.
- You're speaking out loud in a meeting. Be natural, not robotic.

The knowledge library is at: %s

== Pre-loaded Library Context ==

%s`

const stuckAnswer = "Sorry, I got stuck looking things up. Could you ask again?"

// Answer runs a conversational question through the reasoning service with
// retrieval tool access and returns the spoken-form reply. transcriptText
// gives the model the meeting so far.
func (c *Client) Answer(ctx context.Context, question, transcriptText string) (string, error) {
	var system string
	var tools []toolDefinition
	if c.tools != nil {
		system = fmt.Sprintf(conversationSystem, c.tools.Root(), c.tools.EntryPointContext())
		tools = libraryToolDefs
	} else {
		system = fmt.Sprintf(conversationSystem, "(not configured)", "(no library configured; answer from the transcript alone)")
	}

	userMsg := fmt.Sprintf(
		"Here is the current meeting transcript:\n\n%s\n\n---\n\nSomeone just asked you: %q\n\nAnswer their question. Use tools to look up any files you need.",
		transcriptText, question,
	)
	messages := []message{{Role: "user", Content: userMsg}}

	started := time.Now()
	for i := 0; i < maxToolIterations; i++ {
		var resp *messagesResponse
		err := c.breaker.Call(func() error {
			var sendErr error
			resp, sendErr = c.send(ctx, messagesRequest{
				Model:     c.cfg.AnswerModel,
				MaxTokens: answerMaxTokens,
				System:    system,
				Tools:     tools,
				Messages:  messages,
			})
			return sendErr
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrAnswerFailed, err)
		}

		if resp.StopReason == "tool_use" && c.tools != nil {
			var results []toolResult
			for _, block := range resp.Content {
				if block.Type != "tool_use" {
					continue
				}
				c.logger.Debug().Str("tool", block.Name).Msg("Tool call")
				results = append(results, toolResult{
					Type:      "tool_result",
					ToolUseID: block.ID,
					Content:   executeTool(ctx, c.tools, block.Name, block.Input),
				})
			}
			messages = append(messages,
				message{Role: "assistant", Content: resp.Content},
				message{Role: "user", Content: results},
			)
			continue
		}

		var parts []string
		for _, block := range resp.Content {
			if block.Type == "text" && block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
		answer := strings.TrimSpace(strings.Join(parts, " "))
		if answer == "" {
			return "", fmt.Errorf("%w: empty answer", ErrAnswerFailed)
		}

		c.logger.Debug().
			Dur("took", time.Since(started)).
			Int("tool_rounds", i).
			Msg("Answer completed")
		return answer, nil
	}

	return stuckAnswer, nil
}
