package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/message"
)

// Tool executes one named tool call against some side-effecting backend.
// The tool sandbox itself is an out-of-scope collaborator (§1's
// non-goals); Tool is the seam a real implementation plugs into.
type Tool interface {
	Name() string
	Execute(ctx context.Context, input string) (string, error)
}

// EchoTool is the default Tool: it performs no real side effect and just
// reports what it would have run, so the fabric is runnable end to end
// without a configured sandbox.
type EchoTool struct{}

func (EchoTool) Name() string { return "echo" }

func (EchoTool) Execute(ctx context.Context, input string) (string, error) {
	return fmt.Sprintf("echo: %s", input), nil
}

// ToolExecutor implements agentrt.ToolResponseHandler: it receives
// intent=tool_execute requests on its own channel, runs the matching
// Tool, and replies to the requesting agent with the result carried on
// another intent=tool_execute message (§4.4's dispatch table routes both
// directions of tool_execute traffic to the same handler shape).
type ToolExecutor struct {
	name   string
	bus    bus.Bus
	tools  map[string]Tool
	logger *slog.Logger
}

// NewToolExecutor builds a ToolExecutor over the given tool set, keyed by
// Tool.Name(). When tools is empty, EchoTool is registered so the agent
// always has something to run.
func NewToolExecutor(name string, b bus.Bus, tools []Tool, logger *slog.Logger) *ToolExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	reg := make(map[string]Tool, len(tools))
	for _, t := range tools {
		reg[t.Name()] = t
	}
	if len(reg) == 0 {
		reg[EchoTool{}.Name()] = EchoTool{}
	}
	return &ToolExecutor{name: name, bus: b, tools: reg, logger: logger}
}

func (t *ToolExecutor) GetNotes(ctx context.Context) string {
	return fmt.Sprintf("%s ready with %d tool(s)", t.name, len(t.tools))
}

// OnToolResponse implements agentrt.ToolResponseHandler. The tool name is
// carried as the message content's leading token ("<tool> <input>");
// unknown tools fall back to EchoTool so a request is never silently
// dropped.
//
// The completion is published directly as a bare Message (intent
// tool_execute) to the requester's own channel, rather than returned as
// an agentrt.Response: the dispatch table routes an inbound
// intent=tool_execute Message — not a Task — back to this same handler
// on the requester's side, so the wire shape must stay a Message.
func (t *ToolExecutor) OnToolResponse(ctx context.Context, msg message.Message) (*agentrt.Response, error) {
	toolName, input := splitToolRequest(msg.Content)
	tool, ok := t.tools[toolName]
	if !ok {
		tool = EchoTool{}
		input = msg.Content
	}

	result, err := tool.Execute(ctx, input)
	if err != nil {
		result = fmt.Sprintf("tool %q failed: %v", toolName, err)
	}

	reply := message.Message{
		TaskID:    msg.TaskID,
		Agent:     t.name,
		Content:   result,
		Intent:    message.IntentToolExecute,
		Timestamp: time.Now().UTC(),
	}
	data, err := message.Encode(reply)
	if err != nil {
		return nil, err
	}
	if err := t.bus.Publish(ctx, agentrt.Channel(msg.Agent), data); err != nil {
		t.logger.WarnContext(ctx, "failed to publish tool completion", "tool_executor", t.name, "error", err)
		return nil, err
	}
	return nil, nil
}

// splitToolRequest parses "<tool> <input>" content into its tool name and
// remaining input, defaulting to the echo tool when no space is present.
func splitToolRequest(content string) (tool, input string) {
	for i, r := range content {
		if r == ' ' {
			return content[:i], content[i+1:]
		}
	}
	return "echo", content
}
