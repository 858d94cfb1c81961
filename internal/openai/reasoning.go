package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
)

// DefaultReasoningModel is the chat model used to adjust allocations.
const DefaultReasoningModel = openai.GPT4oMini

// ErrEmptyCompletion is returned when the chat API returns no choices.
var ErrEmptyCompletion = errors.New("no completion returned")

// allocationRubric is the fixed instruction set for adjusting baseline
// allocations. The model must return the same partners in the same order.
const allocationRubric = `You are reviewing proposed allocations of donated medical supplies among partner organizations in Haiti.

You will receive a JSON document with items. Each item has a total quantity that must be fully allocated and a list of partner requests. Each request carries the partner's original requested quantity, a proportional baseline allocation, and the partner's aggregate position across the whole batch (globalShare, globalRequestCount).

Adjust the baseline quantities according to this rubric, in order of importance:
1. Partner tier: established, higher-tier partners take priority.
2. Population and need alignment: favor partners serving larger or more vulnerable populations.
3. Declared request priority: respect how urgently a partner flagged its request.
4. Intra-offer equity: partners requesting the same item should be treated consistently.
5. Breadth over monopoly: avoid any single partner capturing every item in the batch.
6. Cross-item compensation: a partner reduced on one item may be favored on another.

Respond with JSON only, in exactly this shape:
{"items": [{"requests": [{"partnerId": number, "quantity": number}]}]}

Keep items and requests in the same order as the input, include every partner, and use integer quantities.`

// ChatAPI defines the interface for chat completion calls
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ReasoningClient submits allocation batches to a chat model for heuristic
// adjustment.
type ReasoningClient struct {
	api   ChatAPI
	model string
}

// NewReasoningClient creates a ReasoningClient for the given API key and model.
func NewReasoningClient(apiKey, model string) *ReasoningClient {
	if model == "" {
		model = DefaultReasoningModel
	}
	return &ReasoningClient{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// AdjustAllocations sends the payload and parses the strict response schema.
func (c *ReasoningClient) AdjustAllocations(ctx context.Context, payload domain.AdjustmentPayload) (*domain.AdjustmentResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal adjustment payload: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: allocationRubric},
			{Role: openai.ChatMessageRoleUser, Content: string(body)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	var adjusted domain.AdjustmentResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &adjusted); err != nil {
		return nil, fmt.Errorf("failed to parse adjustment response: %w", err)
	}

	return &adjusted, nil
}
