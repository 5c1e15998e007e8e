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

package expe

import (
	"fmt"
	"time"
)

// Stats summarizes an experiment record. Models is the answer count of
// the first QA, which is the number of models answering when every model
// answered every question.
type Stats struct {
	Questions  int
	Chunks     int
	Facts      int
	Models     int
	Answers    int
	HumanEvals int
	AutoEvals  int
}

// Stats counts the filled-in parts of the record.
func (e *Expe) Stats() Stats {
	var s Stats
	for _, qa := range e.Items {
		if qa.Question.Text != "" {
			s.Questions++
		}
		s.Chunks += len(qa.Chunks.Items)
		s.Facts += len(qa.Facts.Items)
		for _, a := range qa.Answers.Items {
			if a.Text != "" {
				s.Answers++
			}
			if a.Eval == nil {
				continue
			}
			if a.Eval.Human != nil && *a.Eval.Human != 0 {
				s.HumanEvals++
			}
			if a.Eval.Auto != nil && *a.Eval.Auto != 0 {
				s.AutoEvals++
			}
		}
	}
	if len(e.Items) > 0 {
		s.Models = len(e.Items[0].Answers.Items)
	}
	return s
}

// suffix renders the stats-and-timestamp file name suffix, without the
// leading separator.
func (s Stats) suffix(now time.Time) string {
	return fmt.Sprintf("%dQ_%dC_%dF_%dM_%dA_%dHE_%dAE_%s",
		s.Questions, s.Chunks, s.Facts, s.Models, s.Answers,
		s.HumanEvals, s.AutoEvals, now.Format("2006-01-02_15h04,05"))
}
