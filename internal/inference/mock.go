package inference

import (
	"context"
	"encoding/json"
)

// Mock satisfies Client for testing.
type Mock struct {
	GenerateTextFunc  func(ctx context.Context, model, prompt string, params map[string]any) (json.RawMessage, error)
	GenerateImageFunc func(ctx context.Context, model, prompt string, params map[string]any) (json.RawMessage, error)
}

func (m *Mock) GenerateText(ctx context.Context, model, prompt string, params map[string]any) (json.RawMessage, error) {
	if m.GenerateTextFunc != nil {
		return m.GenerateTextFunc(ctx, model, prompt, params)
	}
	return json.RawMessage(`"mock text"`), nil
}

func (m *Mock) GenerateImage(ctx context.Context, model, prompt string, params map[string]any) (json.RawMessage, error) {
	if m.GenerateImageFunc != nil {
		return m.GenerateImageFunc(ctx, model, prompt, params)
	}
	return json.RawMessage(`"data:image/png;base64,bW9jaw=="`), nil
}

// Compile-time check that Mock implements Client.
var _ Client = (*Mock)(nil)
