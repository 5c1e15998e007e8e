package prompter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

const (
	AnswerBaseName          = "answer_base"
	AnswerWithRetrieverName = "answer_with_retriever"
)

// JSON fields the retrieval-aware prompter asks the model to fill.
const (
	fldQuestionOK = "q_ok"
	fldChunksOK   = "chunks_ok"
	fldAnswer     = "answer"
)

func init() {
	Register(AnswerBaseName, func() Prompter { return &AnswerBase{} })
	Register(AnswerWithRetrieverName, func() Prompter { return &AnswerWithRetriever{} })
}

// AnswerBase sends the question as is and copies the raw completion
// through as the answer text.
type AnswerBase struct{}

func (p *AnswerBase) Name() string { return AnswerBaseName }

func (p *AnswerBase) BuildPrompt(in Inputs) (*expe.Prompt, error) {
	if in.Question == nil {
		return nil, fmt.Errorf("prompter %s: no question", p.Name())
	}
	return &expe.Prompt{User: in.Question.Text}, nil
}

func (p *AnswerBase) PostProcess(qa *expe.QA, target expe.WithLLMAnswer) {
	ans, ok := target.(*expe.Answer)
	if !ok || ans.LLMAnswer == nil {
		slog.Error("nothing to post-process, answer has no completion")
		return
	}
	ans.Text = ans.LLMAnswer.Text
}

const answerWithRetrieverSystem = `You are an expert who must answer questions using the paragraphs provided to you.
Your reply must use the following JSON format:
- "` + fldQuestionOK + `": 1 if the question makes sense, 0 otherwise
- "` + fldChunksOK + `": 1 if the provided paragraphs are sufficient to answer, 0 otherwise
- "` + fldAnswer + `": the answer, with the titles and pages of the documents

The paragraphs are presented like this:
- Title (p. X)
Content`

// AnswerWithRetriever includes the retrieved chunks in the prompt and
// asks for a JSON reply. Post-processing recovers the structured answer
// even from slightly broken JSON and detects which source documents the
// answer cites.
type AnswerWithRetriever struct{}

func (p *AnswerWithRetriever) Name() string { return AnswerWithRetrieverName }

func (p *AnswerWithRetriever) BuildPrompt(in Inputs) (*expe.Prompt, error) {
	if in.Question == nil {
		return nil, fmt.Errorf("prompter %s: no question", p.Name())
	}
	var chunks []string
	if in.Chunks != nil {
		for _, c := range in.Chunks.Items {
			chunks = append(chunks, fmt.Sprintf("- %v (p. %v)\n%s",
				c.Meta[expe.MetaDisplayName], c.Meta[expe.MetaPageNumber], c.Text))
		}
	}
	return &expe.Prompt{
		User:   fmt.Sprintf("%s\n\nQuestion: %s", strings.Join(chunks, "\n\n"), in.Question.Text),
		System: answerWithRetrieverSystem,
	}, nil
}

func (p *AnswerWithRetriever) PostProcess(qa *expe.QA, target expe.WithLLMAnswer) {
	ans, ok := target.(*expe.Answer)
	if !ok || ans.LLMAnswer == nil {
		slog.Error("nothing to post-process, answer has no completion")
		return
	}
	raw := ans.LLMAnswer.Text
	ans.Text = raw

	parsed, jsonOK := parseModelJSON(raw)
	ans.Meta["json_ok"] = jsonOK
	if jsonOK {
		ans.Meta["question_ok"] = truthy(parsed[fldQuestionOK])
		ans.Meta["chunks_ok"] = truthy(parsed[fldChunksOK])
		if s, ok := parsed[fldAnswer].(string); ok {
			ans.Text = s
		}
	} else {
		ans.Meta["question_ok"] = nil
		ans.Meta["chunks_ok"] = nil
	}

	info := whatlanggo.Detect(raw)
	if code := info.Lang.Iso6391(); code != "" {
		ans.Meta["lang"] = code
	} else {
		ans.Meta["lang"] = nil
	}

	// Doc citations are detected on the raw text, so a broken JSON
	// reply still counts its sources.
	normalized := normalizeDocRef(raw)
	docs := []string{}
	docsAndPages := []string{}
	seen := map[string]bool{}
	for _, c := range qa.Chunks.Items {
		title := fmt.Sprintf("%v", c.Meta[expe.MetaDisplayName])
		if title == "" || title == "<nil>" {
			continue
		}
		pageKey := fmt.Sprintf("%s p.%v", title, c.Meta[expe.MetaPageNumber])
		if !seen[title] && strings.Contains(normalized, normalizeDocRef(title)) {
			docs = append(docs, title)
			seen[title] = true
		}
		if !seen[pageKey] && strings.Contains(normalized, normalizeDocRef(pageKey)) {
			docsAndPages = append(docsAndPages, pageKey)
			seen[pageKey] = true
		}
	}
	ans.Meta["docs_in_ans"] = docs
	ans.Meta["docs_and_page_in_ans"] = docsAndPages
}

// parseModelJSON parses the model reply strictly, then retries once on
// a repaired copy: the first {...} span with newlines and backslashes
// stripped, triple spaces collapsed, '} fixed to "}, and any stray
// double quotes inside the answer value demoted to single quotes.
func parseModelJSON(raw string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err == nil {
		return m, true
	}

	start := strings.Index(raw, "{")
	end := strings.Index(raw, "}")
	if start < 0 || end < start {
		return nil, false
	}
	s := raw[start : end+1]
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\\", "")
	s = strings.ReplaceAll(s, "   ", " ")
	s = strings.ReplaceAll(s, "'}", `"}`)
	if i := strings.Index(s, `"`+fldAnswer+`"`); i >= 0 {
		p1 := i + len(`"`+fldAnswer+`": "`)
		p2 := strings.LastIndex(s, `"`)
		if p2 > p1 && p1 <= len(s) {
			s = s[:p1] + strings.ReplaceAll(s[p1:p2], `"`, "'") + s[p2:]
		}
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, false
	}
	return m, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "0"
	default:
		return false
	}
}

// docRefReplacements unify the many ways a model spells out a document
// page reference. Order matters: page wording collapses to "p" before
// spaces and punctuation go away.
var docRefReplacements = []struct{ old, new string }{
	{"at page", "p"},
	{"on page", "p"},
	{"pages", "p"},
	{"page", "p"},
	{" ", ""},
	{".pdf", ""},
	{".pptx", ""},
	{".", ""},
	{"'", ""},
	{`"`, ""},
	{"(", ""},
	{")", ""},
	{",", ""},
	{"-", ""},
}

// normalizeDocRef reduces a title or answer text to a comparable form:
// accents stripped, lowercased, page wording and punctuation unified.
func normalizeDocRef(s string) string {
	result := strings.ToLower(stripAccents(s))
	for _, r := range docRefReplacements {
		result = strings.ReplaceAll(result, r.old, r.new)
	}
	return result
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
