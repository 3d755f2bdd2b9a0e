package llm

import (
	"strings"

	"github.com/example/rationale-probe/internal/models"
)

// convTemplate renders a prompt into the single string a local model was
// fine-tuned on.
type convTemplate struct {
	system string
	roles  [2]string
	seps   [2]string
}

var (
	vicunaTemplate = convTemplate{
		system: "A chat between a curious user and an artificial intelligence assistant. " +
			"The assistant gives helpful, detailed, and polite answers to the user's questions.",
		roles: [2]string{"USER", "ASSISTANT"},
		seps:  [2]string{" ", "</s>"},
	}
	alpacaTemplate = convTemplate{
		system: "Below is an instruction that describes a task. " +
			"Write a response that appropriately completes the request.",
		roles: [2]string{"### Instruction", "### Response"},
		seps:  [2]string{"\n\n", "</s>"},
	}
)

// render alternates turns between the two roles and leaves the assistant
// turn open. Chat input keeps its non-system messages in order; the
// template's own preamble replaces any system instruction. Text input
// becomes one instruction turn.
func (t convTemplate) render(in models.Prompt) string {
	var turns []string
	if in.IsChat() {
		for _, m := range in.Messages() {
			if m.Role != models.RoleSystem {
				turns = append(turns, m.Content)
			}
		}
	} else {
		turns = []string{in.Text()}
	}

	var sb strings.Builder
	sb.WriteString(t.system)
	sb.WriteString(t.seps[0])
	for i, turn := range turns {
		sb.WriteString(t.roles[i%2])
		sb.WriteString(": ")
		sb.WriteString(turn)
		sb.WriteString(t.seps[i%2])
	}
	sb.WriteString(t.roles[len(turns)%2])
	sb.WriteString(":")
	return sb.String()
}
