package llm

import (
	"context"
	"strings"

	"github.com/example/rationale-probe/internal/codec"
	"github.com/example/rationale-probe/internal/models"
)

// MockClient answers without calling any provider. It is used for dry runs
// and returns canned text in the shape each task expects.
type MockClient struct{}

func (m *MockClient) Complete(ctx context.Context, in models.Prompt, opts models.Options) (string, error) {
	for _, stop := range opts.StopTokens {
		if stop == codec.StopToken {
			return codec.Encode([]string{"Is this a mock item?", "Is this another mock item?"}), nil
		}
	}
	question := in.Text()
	msgs := in.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleUser {
			question = msgs[i].Content
			break
		}
	}
	if i := strings.LastIndex(question, "Q: "); i >= 0 {
		question = question[i:]
	}
	if strings.Contains(question, "what are some benefits") {
		return codec.Encode([]string{"it is quick", "it is cheap"}), nil
	}
	return "No. This is a mock rationale.", nil
}
