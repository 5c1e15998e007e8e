package prompter

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

const EvalName = "eval"

func init() {
	Register(EvalName, func() Prompter { return &EvalPrompter{} })
}

const evalSystem = `You must compare a numbered list of FACTS with an ANSWER.
You must reproduce the ANSWER exactly, inserting into the text the number of the FACT matching each passage or sentence.
If a passage matches several FACTS, put them between parentheses.
A FACT must not be inserted if it contradicts the passage or sentence.
If a passage or sentence in the ANSWER matches no FACT, put a question mark between parentheses (?),
unless the passage refers to a location in the document, in which case nothing must be inserted.`

// EvalPrompter asks the model to annotate the answer with the fact
// numbers it supports, then scores the annotation.
type EvalPrompter struct{}

func (p *EvalPrompter) Name() string { return EvalName }

func (p *EvalPrompter) BuildPrompt(in Inputs) (*expe.Prompt, error) {
	if in.Answer == nil || in.Facts == nil {
		return nil, fmt.Errorf("prompter %s: answer and facts required", p.Name())
	}
	texts := make([]string, 0, len(in.Facts.Items))
	for _, f := range in.Facts.Items {
		texts = append(texts, f.Text)
	}
	return &expe.Prompt{
		User:   fmt.Sprintf("-- FACTS --\n%s\n\n-- ANSWER --\n%s", strings.Join(texts, "\n"), in.Answer.Text),
		System: evalSystem,
	}, nil
}

var (
	citedGroup  = regexp.MustCompile(`\(([\d,\s]+)\)`)
	unsupported = regexp.MustCompile(`\(\?\)`)
)

// PostProcess computes precision/recall/F1 over the cited fact numbers.
// Cited = integers in parenthesized groups of the annotated answer,
// true = leading numbers of the QA's facts, extra = (?) marks.
func (p *EvalPrompter) PostProcess(qa *expe.QA, target expe.WithLLMAnswer) {
	ev, ok := target.(*expe.Eval)
	if !ok || ev.LLMAnswer == nil {
		slog.Error("nothing to post-process, eval has no completion")
		return
	}
	answer := ev.LLMAnswer.Text
	if answer == "[]" {
		answer = ""
	}
	// Some models write the fact word before the number.
	answer = strings.ReplaceAll(answer, "(FACT ", "(")
	answer = strings.ReplaceAll(answer, "(FAIT ", "(")

	cited := map[int]bool{}
	for _, group := range citedGroup.FindAllStringSubmatch(answer, -1) {
		for _, s := range strings.Split(group[1], ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				cited[n] = true
			}
		}
	}

	truth := map[int]bool{}
	for _, f := range qa.Facts.Items {
		if m := leadingNumber.FindString(f.Text); m != "" {
			n, _ := strconv.Atoi(strings.TrimSuffix(m, "."))
			truth[n] = true
		}
	}

	tp := 0
	for n := range cited {
		if truth[n] {
			tp++
		}
	}
	missing := []int{}
	for n := range truth {
		if !cited[n] {
			missing = append(missing, n)
		}
	}
	sort.Ints(missing)
	citedList := make([]int, 0, len(cited))
	for n := range cited {
		citedList = append(citedList, n)
	}
	sort.Ints(citedList)

	extra := len(unsupported.FindAllString(answer, -1))
	precision := div0(tp, len(cited)+extra)
	recall := div0(tp, len(truth))

	ev.Meta["precision"] = precision
	ev.Meta["recall"] = recall
	ev.Meta["extra"] = extra
	ev.Meta["missing"] = missing
	ev.Meta["facts_in_ans"] = citedList

	auto := 0.0
	if precision+recall > 0 {
		auto = 2 * precision * recall / (precision + recall)
	}
	ev.Auto = &auto
	ev.Text = answer
}

// div0 is a zero-tolerant ratio: 0/0 scores 0, not NaN.
func div0(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
