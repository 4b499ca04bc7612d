package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/loom/internal/gateway"
	"github.com/ShayCichocki/loom/pkg/models"
)

const workerSystemPrompt = `You are a worker executing one subtask of a larger plan.
You may only modify resources inside your declared claims; calls outside them are denied.
Work step by step with the available tools. When the subtask is done, reply with a short
summary of what you produced and stop calling tools.`

// StreamEvent is one progress notification during a worker conversation.
type StreamEvent struct {
	Type    string // "text", "tool_use", "tool_result", "done", "error"
	Content string
	Tool    string
	Input   json.RawMessage
}

// WorkerRunner drives the tool-use conversation for one subtask. It satisfies
// the orchestrator's Runner interface; every tool invocation goes through the
// worker's gateway handle, so rules, hooks, and the claim guard all apply.
type WorkerRunner struct {
	client   *Client
	maxTurns int
	onStream func(StreamEvent)
}

// NewWorkerRunner creates a runner. maxTurns bounds API calls per subtask;
// zero means the default of 50.
func NewWorkerRunner(client *Client, maxTurns int) *WorkerRunner {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	return &WorkerRunner{client: client, maxTurns: maxTurns}
}

// SetStreamHandler sets a callback for streaming events during execution.
func (r *WorkerRunner) SetStreamHandler(fn func(StreamEvent)) {
	r.onStream = fn
}

func (r *WorkerRunner) emit(ev StreamEvent) {
	if r.onStream != nil {
		r.onStream(ev)
	}
}

// Run executes the subtask conversation and returns the worker's artifacts.
// The final assistant text becomes the "summary" artifact.
func (r *WorkerRunner) Run(ctx context.Context, subtask models.Subtask, handle *gateway.WorkerHandle, contextSnapshot string) (map[string]string, error) {
	userPrompt := buildWorkerPrompt(subtask, contextSnapshot)
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	for turn := 0; turn < r.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := r.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
			Model:     r.client.Model(),
			MaxTokens: 8192,
			System: []anthropic.TextBlockParam{
				{Text: workerSystemPrompt},
			},
			Messages: messages,
			Tools:    ToolDefinitions(),
		})
		if err != nil {
			r.emit(StreamEvent{Type: "error", Content: err.Error()})
			return nil, fmt.Errorf("API call failed: %w", err)
		}
		r.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var textOutput string

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				textOutput += variant.Text
				r.emit(StreamEvent{Type: "text", Content: variant.Text})
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				r.emit(StreamEvent{Type: "tool_use", Tool: variant.Name, Input: variant.Input})
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				input, err := decodeToolInput(variant.Input)
				var toolResult models.ToolResult
				if err != nil {
					toolResult = models.ToolResult{Content: "malformed tool input: " + err.Error(), IsError: true}
				} else {
					toolResult = handle.Call(ctx, variant.Name, input)
				}
				r.emit(StreamEvent{Type: "tool_result", Tool: variant.Name, Content: truncateForDisplay(toolResult.Content)})

				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, toolResult.Content, toolResult.IsError))
			}
		}

		if resp.StopReason == anthropic.StopReasonEndTurn {
			r.emit(StreamEvent{Type: "done"})
			return map[string]string{"summary": strings.TrimSpace(textOutput)}, nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	return nil, fmt.Errorf("subtask %s: max turns (%d) reached without completion", subtask.ID, r.maxTurns)
}

func buildWorkerPrompt(subtask models.Subtask, contextSnapshot string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subtask %s", subtask.ID)
	if subtask.Type != "" {
		fmt.Fprintf(&b, " (%s)", subtask.Type)
	}
	fmt.Fprintf(&b, ":\n%s\n", subtask.Description)
	if len(subtask.ResourceClaims) > 0 {
		fmt.Fprintf(&b, "\nYour resource claims (the only resources you may modify):\n")
		for _, claim := range subtask.ResourceClaims {
			fmt.Fprintf(&b, "  - %s\n", claim)
		}
	}
	if len(subtask.DependsOn) > 0 {
		fmt.Fprintf(&b, "\nCompleted dependencies (fetch their artifacts via MemoryGet):\n")
		for _, dep := range subtask.DependsOn {
			fmt.Fprintf(&b, "  - artifact:%s:summary\n", dep)
		}
	}
	if contextSnapshot != "" {
		fmt.Fprintf(&b, "\nSession context:\n%s\n", contextSnapshot)
	}
	return b.String()
}

func decodeToolInput(raw json.RawMessage) (map[string]any, error) {
	var input map[string]any
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	return input, nil
}

func truncateForDisplay(s string) string {
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
