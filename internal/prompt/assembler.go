// Package prompt builds few-shot prompts for every pipeline task, either as a
// single text-completion string or as a chat message sequence.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/example/rationale-probe/internal/codec"
	"github.com/example/rationale-probe/internal/models"
)

var ErrUnknownTask = errors.New("unknown prompt task")

type Task string

const (
	TaskContextBootstrap Task = "context_bootstrap"
	TaskAdviceBootstrap  Task = "advice_bootstrap"
	TaskParaphrase       Task = "paraphrase"
	TaskBenefits         Task = "benefits"
	TaskAdversarial      Task = "adversarial"
	// TaskAdversarialZeroShot is the hinted question without demonstrations.
	TaskAdversarialZeroShot Task = "adversarial_zero_shot"
	TaskRationale           Task = "rationale"
)

// Query carries the fields a template renders. Rationale prompts use
// Scenario verbatim; every other task renders from Context and Advice.
type Query struct {
	Context   string
	Advice    string
	Knowledge string
	Scenario  string
}

type taskSpec struct {
	file     string
	question func(Query) string
	demoQ    func(Demonstration) string
	demoA    func(Demonstration) string
	system   string
	zeroShot bool
}

func itemized(items []string) string { return codec.Encode(items) + codec.StopToken }

var tasks = map[Task]taskSpec{
	TaskContextBootstrap: {
		file:     "bootstrap",
		question: func(q Query) string { return contextQuestion(q.Context, q.Advice) },
		demoQ:    func(d Demonstration) string { return contextQuestion(d.Context, d.Advice) },
		demoA:    func(d Demonstration) string { return itemized(d.NewContext) },
	},
	TaskAdviceBootstrap: {
		file:     "bootstrap",
		question: func(q Query) string { return adviceQuestion(q.Context, q.Advice) },
		demoQ:    func(d Demonstration) string { return adviceQuestion(d.Context, d.Advice) },
		demoA:    func(d Demonstration) string { return itemized(d.NewAdvice) },
	},
	TaskParaphrase: {
		file:     "paraphrase",
		question: func(q Query) string { return paraphraseQuestion(q.Context, q.Advice) },
		demoQ:    func(d Demonstration) string { return paraphraseQuestion(d.Context, d.Advice) },
		demoA:    func(d Demonstration) string { return itemized(d.Paraphrase) },
		system:   paraphraseInstruction,
	},
	TaskBenefits: {
		file:     "adversarial",
		question: func(q Query) string { return benefitsQuestion(q.Context, q.Advice) },
		demoQ:    func(d Demonstration) string { return benefitsQuestion(d.Context, d.Advice) },
		demoA:    func(d Demonstration) string { return itemized(d.Benefits) },
		system:   benefitsInstruction,
	},
	TaskAdversarial: {
		file:     "adversarial",
		question: func(q Query) string { return adversarialQuestion(q.Context, q.Advice, q.Knowledge) },
		demoQ:    func(d Demonstration) string { return adversarialQuestion(d.Context, d.Advice, d.Hint) },
		demoA:    func(d Demonstration) string { return d.Rationale },
		system:   rationaleInstruction,
	},
	TaskAdversarialZeroShot: {
		question: func(q Query) string { return adversarialQuestion(q.Context, q.Advice, q.Knowledge) },
		system:   rationaleInstruction,
		zeroShot: true,
	},
	TaskRationale: {
		file:     "rationalize",
		question: func(q Query) string { return q.Scenario },
		demoQ:    func(d Demonstration) string { return Scenario(d.Prompt, d.Advice) },
		demoA:    func(d Demonstration) string { return d.Rationale },
		system:   rationaleInstruction,
	},
}

// demoSet holds both renderings of one exemplar list.
type demoSet struct {
	text     string
	messages []models.Message
}

// Assembler renders prompts. Demonstrations are loaded from the Source on
// first use of each task and kept for the life of the Assembler.
type Assembler struct {
	source Source

	mu    sync.Mutex
	demos map[Task]*demoSet
}

func NewAssembler(source Source) *Assembler {
	return &Assembler{source: source, demos: map[Task]*demoSet{}}
}

// Build returns the prompt for task. chat selects the message-sequence form
// and must agree with the target model's IsChat.
func (a *Assembler) Build(task Task, q Query, chat bool) (models.Prompt, error) {
	spec, ok := tasks[task]
	if !ok {
		return models.Prompt{}, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	question := spec.question(q)

	demos := &demoSet{}
	if !spec.zeroShot {
		var err error
		if demos, err = a.demonstrations(task, spec); err != nil {
			return models.Prompt{}, err
		}
	}

	if chat {
		msgs := make([]models.Message, 0, len(demos.messages)+2)
		msgs = append(msgs, demos.messages...)
		msgs = append(msgs, models.Message{Role: models.RoleUser, Content: "Q: " + question})
		if spec.system != "" {
			msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: spec.system})
		}
		return models.ChatPrompt(msgs), nil
	}

	if spec.zeroShot {
		return models.TextPrompt(fmt.Sprintf("Q: %s\nA:", question)), nil
	}
	return models.TextPrompt(fmt.Sprintf("%s\n\nQ: %s\nA:", demos.text, question)), nil
}

func (a *Assembler) demonstrations(task Task, spec taskSpec) (*demoSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if set, ok := a.demos[task]; ok {
		return set, nil
	}
	examples, err := a.source.Load(spec.file)
	if err != nil {
		return nil, fmt.Errorf("load %s demonstrations: %w", task, err)
	}
	set := &demoSet{messages: make([]models.Message, 0, 2*len(examples))}
	blocks := make([]string, 0, len(examples))
	for _, ex := range examples {
		q, ans := spec.demoQ(ex), spec.demoA(ex)
		blocks = append(blocks, fmt.Sprintf("Q: %s\nA: %s", q, ans))
		set.messages = append(set.messages,
			models.Message{Role: models.RoleUser, Content: q},
			models.Message{Role: models.RoleAssistant, Content: ans},
		)
	}
	set.text = strings.Join(blocks, "\n\n")
	a.demos[task] = set
	return set, nil
}
