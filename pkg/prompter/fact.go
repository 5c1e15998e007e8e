package prompter

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

const FactName = "fact"

func init() {
	Register(FactName, func() Prompter { return &FactPrompter{} })
}

const factSystem = `Generate short and simple numbered sentences describing this PARAGRAPH.
Generate as few sentences as possible.
Only generate sentences that help answer the QUESTION.
Each sentence must contain a single piece of information.
The sentences must not contain any reference to a document, a paragraph, a source or a page.
Do not generate any redundant sentence.`

// FactPrompter turns the human-validated answer into a numbered list of
// atomic facts.
type FactPrompter struct{}

func (p *FactPrompter) Name() string { return FactName }

func (p *FactPrompter) BuildPrompt(in Inputs) (*expe.Prompt, error) {
	if in.Question == nil || in.Answer == nil {
		return nil, fmt.Errorf("prompter %s: question and answer required", p.Name())
	}
	return &expe.Prompt{
		User:   fmt.Sprintf("PARAGRAPH: %s\nQUESTION: %s", in.Answer.Text, in.Question.Text),
		System: factSystem,
	}, nil
}

var leadingNumber = regexp.MustCompile(`^\d{1,2}\.`)

// PostProcess splits the completion into one Fact per line. Blank lines
// and fragments of two characters or less are dropped; a line that does
// not already carry a 1-2 digit "N." prefix gets one from its position
// in the kept list.
func (p *FactPrompter) PostProcess(qa *expe.QA, target expe.WithLLMAnswer) {
	facts, ok := target.(*expe.Facts)
	if !ok || facts.LLMAnswer == nil {
		slog.Error("nothing to post-process, facts have no completion")
		return
	}
	var items []*expe.Fact
	i := 0
	for _, line := range strings.Split(facts.LLMAnswer.Text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 2 {
			continue
		}
		i++
		if !leadingNumber.MatchString(line) {
			line = fmt.Sprintf("%d. %s", i, line)
		}
		items = append(items, &expe.Fact{Text: line, Meta: expe.Meta{}})
	}
	facts.Items = items
}
