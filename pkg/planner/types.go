// Package planner rewrites a clinician's raw query into a normalized
// search intent: expanded terms, structured filter predicates, and
// spelling corrections. An LLM does the rewriting; a semantic cache
// over query embeddings memoizes results so paraphrases of a recent
// query skip the model entirely.
package planner

import (
	"encoding/json"

	"github.com/medscout/rxsearch/pkg/llms"
)

// Filters are the structured predicates a plan may carry. Empty
// fields constrain nothing. Class fields are free-form strings
// normalized to upper case; the tag fields are validated against the
// corpus vocabularies and dropped when unknown.
type Filters struct {
	DrugClass        string `json:"drug_class,omitempty"`
	TherapeuticClass string `json:"therapeutic_class,omitempty"`
	Indication       string `json:"indication,omitempty"`
	DosageForm       string `json:"dosage_form,omitempty"`
	Route            string `json:"route,omitempty"`
	IsGeneric        *bool  `json:"is_generic,omitempty"`
	DEASchedule      string `json:"dea_schedule,omitempty"`
}

// Empty reports whether no predicate is set.
func (f *Filters) Empty() bool {
	return f.DrugClass == "" && f.TherapeuticClass == "" && f.Indication == "" &&
		f.DosageForm == "" && f.Route == "" && f.IsGeneric == nil && f.DEASchedule == ""
}

// Plan is the planner's output for one query.
type Plan struct {
	ExpandedText string   `json:"expanded_text"`
	Filters      Filters  `json:"filters"`
	Corrections  []string `json:"corrections"`

	// Confidence is the model's self-reported confidence in [0,1].
	// It is recorded for observability and never gates retrieval.
	Confidence float64 `json:"confidence"`

	// FromCache marks plans served from the semantic cache.
	FromCache bool `json:"-"`

	// Usage and latency of the LLM call that produced the plan; zero
	// for cached and null plans.
	Usage   llms.Usage   `json:"-"`
	Metrics llms.Metrics `json:"-"`
}

// NullPlan is the degradation product when the model fails or emits
// garbage: the raw query passes through unchanged and retrieval runs
// unfiltered.
func NullPlan(query string) *Plan {
	return &Plan{
		ExpandedText: query,
		Corrections:  []string{},
		Confidence:   0,
	}
}

// Marshal renders the cacheable portion of the plan. Field order is
// fixed by the struct, so equal plans marshal to equal bytes.
func (p *Plan) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPlan parses a cached or model-emitted plan.
func UnmarshalPlan(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Corrections == nil {
		p.Corrections = []string{}
	}
	return &p, nil
}
