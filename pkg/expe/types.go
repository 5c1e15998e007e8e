// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package expe holds the experiment record: an ordered list of QA items,
// each carrying a question together with the chunks, facts, answers and
// evaluations produced for it. The record round-trips through a single
// JSON document.
package expe

import "time"

// Meta is the free-form metadata bag attached to most entities.
type Meta map[string]any

// Chunk meta keys filled by retrievers and consumed by prompters.
const (
	MetaDisplayName = "display_name"
	MetaPageNumber  = "page_number"
)

// Question is the item under evaluation.
type Question struct {
	Text string `json:"text"`
	Meta Meta   `json:"meta"`
}

// Chunk is one retrieved context passage.
type Chunk struct {
	Text string `json:"text"`
	Meta Meta   `json:"meta"`
}

// Fact is one atomic statement from the reference answer. Text carries
// its own "N. " numbering prefix.
type Fact struct {
	Text string `json:"text"`
	Meta Meta   `json:"meta"`
}

// Prompt is the exact user/system pair sent to a model, tagged with the
// prompter that built it.
type Prompt struct {
	User     string `json:"user"`
	System   string `json:"system"`
	Prompter string `json:"prompter,omitempty"`
}

// LLMAnswer is the raw completion record. It is written once by the
// model driver and never mutated afterwards; post-processing writes its
// results next to it, not into it.
type LLMAnswer struct {
	Text      string    `json:"text"`
	Meta      Meta      `json:"meta"`
	Prompt    *Prompt   `json:"prompt"`
	Name      string    `json:"name"`
	FullName  string    `json:"full_name"`
	Timestamp time.Time `json:"timestamp"`
	Duration  *float64  `json:"duration"`
	Cost      *float64  `json:"cost"`
}

// Eval scores one answer against the facts. Human is set by a person,
// Auto by the eval stage. Either may be absent.
type Eval struct {
	Text      string     `json:"text"`
	Meta      Meta       `json:"meta"`
	Human     *float64   `json:"human"`
	Auto      *float64   `json:"auto"`
	LLMAnswer *LLMAnswer `json:"llm_answer"`
}

// Answer is one model's (or a person's, when LLMAnswer is nil) answer to
// a question. Text is the post-processed final string.
type Answer struct {
	Text      string     `json:"text"`
	Meta      Meta       `json:"meta"`
	LLMAnswer *LLMAnswer `json:"llm_answer"`
	Eval      *Eval      `json:"eval"`
}

// Chunks is the retrieved context for one QA.
type Chunks struct {
	Meta  Meta     `json:"meta"`
	Items []*Chunk `json:"items"`
}

// Facts is the reference fact list for one QA. One generation produces
// the whole list, so a single LLMAnswer covers all items.
type Facts struct {
	Meta      Meta       `json:"meta"`
	Items     []*Fact    `json:"items"`
	LLMAnswer *LLMAnswer `json:"llm_answer"`
}

// Answers is the candidate answer list for one QA.
type Answers struct {
	Meta  Meta      `json:"meta"`
	Items []*Answer `json:"items"`
}

// QA ties one question to everything generated for it.
type QA struct {
	Meta     Meta     `json:"meta"`
	Question Question `json:"question"`
	Facts    *Facts   `json:"facts"`
	Chunks   *Chunks  `json:"chunks"`
	Answers  *Answers `json:"answers"`
}

// WithLLMAnswer is the common surface of the three generated record
// types (Answer, Facts, Eval). The generation step machine works on this
// instead of the concrete types.
type WithLLMAnswer interface {
	GetLLMAnswer() *LLMAnswer
	SetLLMAnswer(*LLMAnswer)
}

func (a *Answer) GetLLMAnswer() *LLMAnswer   { return a.LLMAnswer }
func (a *Answer) SetLLMAnswer(la *LLMAnswer) { a.LLMAnswer = la }

func (f *Facts) GetLLMAnswer() *LLMAnswer   { return f.LLMAnswer }
func (f *Facts) SetLLMAnswer(la *LLMAnswer) { f.LLMAnswer = la }

func (e *Eval) GetLLMAnswer() *LLMAnswer   { return e.LLMAnswer }
func (e *Eval) SetLLMAnswer(la *LLMAnswer) { e.LLMAnswer = la }

// NewQA builds an empty QA around a question text.
func NewQA(question string) *QA {
	qa := &QA{
		Meta:     Meta{},
		Question: Question{Text: question, Meta: Meta{}},
	}
	qa.normalize()
	return qa
}

// NewAnswer builds an empty answer with an empty eval attached.
func NewAnswer() *Answer {
	return &Answer{Meta: Meta{}, Eval: NewEval()}
}

// NewEval builds an empty eval.
func NewEval() *Eval {
	return &Eval{Meta: Meta{}}
}

// NewFacts builds an empty fact list.
func NewFacts() *Facts {
	return &Facts{Meta: Meta{}}
}

// NewAnswers builds an empty answer list.
func NewAnswers() *Answers {
	return &Answers{Meta: Meta{}}
}

// normalize fills the collection pointers and meta maps so that loaded
// documents and hand-built QAs expose the same non-nil surface.
func (qa *QA) normalize() {
	if qa.Meta == nil {
		qa.Meta = Meta{}
	}
	if qa.Question.Meta == nil {
		qa.Question.Meta = Meta{}
	}
	if qa.Chunks == nil {
		qa.Chunks = &Chunks{Meta: Meta{}}
	} else if qa.Chunks.Meta == nil {
		qa.Chunks.Meta = Meta{}
	}
	if qa.Facts == nil {
		qa.Facts = NewFacts()
	} else if qa.Facts.Meta == nil {
		qa.Facts.Meta = Meta{}
	}
	if qa.Answers == nil {
		qa.Answers = NewAnswers()
	} else if qa.Answers.Meta == nil {
		qa.Answers.Meta = Meta{}
	}
	for _, c := range qa.Chunks.Items {
		if c.Meta == nil {
			c.Meta = Meta{}
		}
	}
	for _, f := range qa.Facts.Items {
		if f.Meta == nil {
			f.Meta = Meta{}
		}
	}
	for _, a := range qa.Answers.Items {
		if a.Meta == nil {
			a.Meta = Meta{}
		}
	}
}

// AnswerByModel returns the answer produced by the given model, matching
// the short name first and the provider-reported full name as fallback.
// Returns nil when no answer matches.
func (qa *QA) AnswerByModel(name string) *Answer {
	for _, a := range qa.Answers.Items {
		if a.LLMAnswer == nil {
			continue
		}
		if a.LLMAnswer.Name == name || a.LLMAnswer.FullName == name {
			return a
		}
	}
	return nil
}
