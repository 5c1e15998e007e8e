package exporters

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

const SpreadsheetName = "spreadsheet"

func init() {
	Register(SpreadsheetName, func(opts map[string]any) (Exporter, error) {
		o, err := decodeOptions(opts)
		if err != nil {
			return nil, err
		}
		return &Spreadsheet{Options: o}, nil
	})
}

// Spreadsheet writes an xlsx workbook: one row per answer on the main
// sheet and a summary sheet with the record's stats.
type Spreadsheet struct {
	Options
}

func (x *Spreadsheet) Name() string { return SpreadsheetName }

var sheetHeader = []any{
	"#", "Question", "Facts", "Model", "Answer", "Human", "Auto",
	"Precision", "Recall", "Eval",
}

func (x *Spreadsheet) Save(e *expe.Expe, folder, fileName string) (string, error) {
	out, err := e.PrepareWrite(filepath.Join(folder, fileName), x.Overwrite, x.addSuffix(), ".xlsx")
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "QA"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return "", fmt.Errorf("exporters: naming sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &sheetHeader); err != nil {
		return "", fmt.Errorf("exporters: writing header: %w", err)
	}

	row := 2
	for i, qa := range e.Items {
		facts := make([]string, 0, len(qa.Facts.Items))
		for _, fact := range qa.Facts.Items {
			facts = append(facts, fact.Text)
		}
		factsCell := strings.Join(facts, "\n")

		answers := qa.Answers.Items
		if len(answers) == 0 {
			cells := []any{i + 1, qa.Question.Text, factsCell, "", "", nil, nil, nil, nil, ""}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &cells); err != nil {
				return "", fmt.Errorf("exporters: writing row: %w", err)
			}
			row++
			continue
		}
		for _, a := range answers {
			model := ""
			if a.LLMAnswer != nil {
				model = a.LLMAnswer.Name
			}
			var human, auto, precision, recall any
			evalText := ""
			if a.Eval != nil {
				if a.Eval.Human != nil {
					human = *a.Eval.Human
				}
				if a.Eval.Auto != nil {
					auto = *a.Eval.Auto
				}
				precision = a.Eval.Meta["precision"]
				recall = a.Eval.Meta["recall"]
				evalText = a.Eval.Text
			}
			cells := []any{i + 1, qa.Question.Text, factsCell, model, a.Text, human, auto, precision, recall, evalText}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &cells); err != nil {
				return "", fmt.Errorf("exporters: writing row: %w", err)
			}
			row++
		}
	}

	stats := e.Stats()
	if _, err := f.NewSheet("Stats"); err != nil {
		return "", fmt.Errorf("exporters: adding stats sheet: %w", err)
	}
	statRows := [][]any{
		{"Questions", stats.Questions},
		{"Chunks", stats.Chunks},
		{"Facts", stats.Facts},
		{"Models", stats.Models},
		{"Answers", stats.Answers},
		{"Human evals", stats.HumanEvals},
		{"Auto evals", stats.AutoEvals},
	}
	for i, cells := range statRows {
		if err := f.SetSheetRow("Stats", fmt.Sprintf("A%d", i+1), &cells); err != nil {
			return "", fmt.Errorf("exporters: writing stats: %w", err)
		}
	}

	if err := f.SaveAs(out); err != nil {
		return "", fmt.Errorf("exporters: saving %q: %w", out, err)
	}
	return out, nil
}
