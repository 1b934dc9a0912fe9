package collab

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/uuid"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
)

// BedrockLLM implements LLM against an Anthropic Claude model on Bedrock
// using its native tool-use Messages API, grounded on the teacher's
// BedrockLLMClient (pkg/embedding/expansion/bedrock_llm_client.go) but
// upgraded from that file's legacy completion format to the Messages API,
// since the agent runtime's tool-call loop (spec §4.8) needs Claude to
// return structured tool_use blocks rather than free-text completions.
type BedrockLLM struct {
	client    bedrockRuntimeClient
	modelID   string
	maxTokens int
}

func NewBedrockLLM(client *bedrockruntime.Client, modelID string, maxTokens int) *BedrockLLM {
	if modelID == "" {
		modelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &BedrockLLM{client: client, modelID: modelID, maxTokens: maxTokens}
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
	Tools            []claudeTool    `json:"tools,omitempty"`
}

type claudeContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type claudeResponse struct {
	Content    []claudeContentBlock `json:"content"`
	StopReason string               `json:"stop_reason"`
}

// Chat implements LLM. The system message in messages[0] (if Role=="system")
// is hoisted into the request's top-level "system" field, since Claude's
// Messages API does not accept a system role inline with the turn history.
func (l *BedrockLLM) Chat(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (ChatResponse, error) {
	const op = "collab.BedrockLLM.Chat"

	var system string
	turns := make([]claudeMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		role := m.Role
		if role == "tool" {
			role = "user"
		}
		turns = append(turns, claudeMessage{Role: role, Content: m.Content})
	}

	claudeTools := make([]claudeTool, 0, len(tools))
	for _, t := range tools {
		claudeTools = append(claudeTools, claudeTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}

	reqBody, err := json.Marshal(claudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        l.maxTokens,
		System:           system,
		Messages:         turns,
		Tools:            claudeTools,
	})
	if err != nil {
		return ChatResponse{}, apperr.Wrap(apperr.Internal, op, err)
	}

	resp, err := l.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(l.modelID),
		ContentType: aws.String("application/json"),
		Body:        reqBody,
	})
	if err != nil {
		return ChatResponse{}, apperr.Wrap(apperr.BackendTransient, op, err)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return ChatResponse{}, apperr.Wrap(apperr.BackendTransient, op, err)
	}

	var out ChatResponse
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        firstNonEmpty(block.ID, uuid.NewString()),
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	return out, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
