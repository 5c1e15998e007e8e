package llm

import "fmt"

// StartFrom names the resume point of a generation run. Steps are
// ordered; a step recomputes when the resume point is at or before it
// (and missing-only is off) or when it has no prior output to reuse.
type StartFrom int

const (
	StartBeginning StartFrom = iota
	StartChunks
	StartPrompt
	StartLLM
	StartPostProcess
)

var startFromNames = map[StartFrom]string{
	StartBeginning:   "beginning",
	StartChunks:      "chunks",
	StartPrompt:      "prompt",
	StartLLM:         "llm",
	StartPostProcess: "post_process",
}

func (s StartFrom) String() string {
	if name, ok := startFromNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StartFrom(%d)", int(s))
}

// ParseStartFrom converts a config string to a StartFrom. The empty
// string means beginning.
func ParseStartFrom(s string) (StartFrom, error) {
	if s == "" {
		return StartBeginning, nil
	}
	for sf, name := range startFromNames {
		if name == s {
			return sf, nil
		}
	}
	return StartBeginning, fmt.Errorf("llm: unknown start_from %q", s)
}
