package exporters

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

const HTMLName = "html"

func init() {
	Register(HTMLName, func(opts map[string]any) (Exporter, error) {
		o, err := decodeOptions(opts)
		if err != nil {
			return nil, err
		}
		var cfg struct {
			ShowChunks bool `mapstructure:"show_chunks"`
		}
		if err := decodeInto(opts, &cfg); err != nil {
			return nil, err
		}
		return &HTML{Options: o, ShowChunks: cfg.ShowChunks}, nil
	})
}

// HTML renders a self-contained report for human review.
type HTML struct {
	Options
	ShowChunks bool
}

func (x *HTML) Name() string { return HTMLName }

type htmlReport struct {
	Title      string
	Stats      expe.Stats
	Items      []*expe.QA
	ShowChunks bool
}

func (x *HTML) Save(e *expe.Expe, folder, fileName string) (string, error) {
	out, err := e.PrepareWrite(filepath.Join(folder, fileName), x.Overwrite, x.addSuffix(), ".html")
	if err != nil {
		return "", err
	}
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("exporters: creating %q: %w", out, err)
	}
	defer f.Close()

	report := htmlReport{
		Title:      fileName,
		Stats:      e.Stats(),
		Items:      e.Items,
		ShowChunks: x.ShowChunks,
	}
	if err := reportTemplate.Execute(f, report); err != nil {
		return "", fmt.Errorf("exporters: rendering html: %w", err)
	}
	return out, nil
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"score": func(f *float64) string { return fmt.Sprintf("%.2f", *f) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; max-width: 60em; }
h2 { border-bottom: 1px solid #ccc; padding-top: 1em; }
.chunk { background: #f4f4f4; padding: 0.5em; margin: 0.5em 0; }
.chunk .src { color: #666; font-size: 0.85em; }
.answer { border-left: 3px solid #8ab; padding-left: 0.75em; margin: 0.75em 0; }
.model { font-weight: bold; }
.score { color: #286; }
.eval { color: #666; font-size: 0.9em; white-space: pre-wrap; }
ol.facts li { margin: 0.2em 0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Stats.Questions}} questions, {{.Stats.Facts}} facts, {{.Stats.Answers}} answers,
{{.Stats.HumanEvals}} human evals, {{.Stats.AutoEvals}} auto evals</p>
{{range $i, $qa := .Items}}
<h2>{{$qa.Question.Text}}</h2>
{{if $.ShowChunks}}{{range $qa.Chunks.Items}}
<div class="chunk"><span class="src">{{index .Meta "display_name"}} (p. {{index .Meta "page_number"}})</span><br>{{.Text}}</div>
{{end}}{{end}}
{{if $qa.Facts.Items}}<ol class="facts">
{{range $qa.Facts.Items}}<li>{{.Text}}</li>
{{end}}</ol>{{end}}
{{range $qa.Answers.Items}}
<div class="answer">
<span class="model">{{if .LLMAnswer}}{{.LLMAnswer.Name}}{{else}}(human){{end}}</span>
{{if .Eval}}{{with .Eval.Human}} <span class="score">human: {{score .}}</span>{{end}}{{with .Eval.Auto}} <span class="score">auto: {{score .}}</span>{{end}}{{end}}
<p>{{.Text}}</p>
{{if .Eval}}{{if .Eval.Text}}<div class="eval">{{.Eval.Text}}</div>{{end}}{{end}}
</div>
{{end}}
{{end}}
</body>
</html>
`))
