package llm

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

// pricing is USD per million tokens.
type pricing struct {
	input  float64
	output float64
}

// priceTable covers the models runs are usually billed on. Unknown
// models simply get no cost on their answers.
var priceTable = map[string]pricing{
	"gpt-4o":        {input: 2.50, output: 10.00},
	"gpt-4o-mini":   {input: 0.15, output: 0.60},
	"gpt-4.1":       {input: 2.00, output: 8.00},
	"gpt-4.1-mini":  {input: 0.40, output: 1.60},
	"gpt-4-turbo":   {input: 10.00, output: 30.00},
	"gpt-3.5-turbo": {input: 0.50, output: 1.50},
	"mistral-large": {input: 2.00, output: 6.00},
	"mistral-small": {input: 0.10, output: 0.30},
}

func findPricing(model string) (pricing, bool) {
	if p, ok := priceTable[model]; ok {
		return p, true
	}
	// Dated releases ("gpt-4o-2024-08-06") bill as their base model.
	// Longest prefix wins so "gpt-4o-mini-..." never bills as "gpt-4o".
	best := ""
	var found pricing
	for name, p := range priceTable {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
			best, found = name, p
		}
	}
	return found, best != ""
}

// completionCost prices one call. Token counts come from the response
// usage block; when the endpoint reports none, tiktoken estimates them
// from the prompt and completion texts.
func completionCost(model string, resp *completionResponse, p *expe.Prompt) (float64, bool) {
	price, ok := findPricing(model)
	if !ok {
		return 0, false
	}
	in := resp.Usage.PromptTokens
	out := resp.Usage.CompletionTokens
	if in == 0 && out == 0 {
		in = countTokens(model, p.System+p.User)
		out = countTokens(model, resp.Choices[0].Message.Content)
	}
	return float64(in)*price.input/1e6 + float64(out)*price.output/1e6, true
}

func countTokens(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		if enc, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return 0
		}
	}
	return len(enc.Encode(text, nil, nil))
}
