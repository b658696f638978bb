package planner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

// planSchema mirrors Plan's cacheable shape with the tag metadata the
// model sees. Kept separate so observability-only fields never leak
// into the contract.
type planSchema struct {
	ExpandedText string        `json:"expanded_text" jsonschema:"required,description=Normalized search text with abbreviations expanded and brand/generic synonyms added"`
	Filters      filtersSchema `json:"filters" jsonschema:"required"`
	Corrections  []string      `json:"corrections" jsonschema:"required,description=Likely misspellings corrected; empty when none"`
	Confidence   float64       `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
}

type filtersSchema struct {
	DrugClass        string `json:"drug_class,omitempty" jsonschema:"description=Canonical ingredient name in upper case when the query names one drug"`
	TherapeuticClass string `json:"therapeutic_class,omitempty" jsonschema:"description=Pharmacological class inferred from an indication phrase"`
	Indication       string `json:"indication,omitempty" jsonschema:"description=Condition being treated when stated"`
	DosageForm       string `json:"dosage_form,omitempty" jsonschema:"description=Dosage form tag when stated"`
	Route            string `json:"route,omitempty" jsonschema:"description=Administration route tag when stated"`
	IsGeneric        *bool  `json:"is_generic,omitempty" jsonschema:"description=Set only when the query explicitly asks for generic or brand products"`
	DEASchedule      string `json:"dea_schedule,omitempty" jsonschema:"description=Controlled substance schedule 1-5 when stated"`
}

var (
	systemPromptOnce sync.Once
	systemPrompt     string
)

// SystemPrompt builds the planner instruction block. It is identical
// across calls so providers with prompt caching reuse it.
func SystemPrompt() string {
	systemPromptOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			ExpandedStruct:             true,
			DoNotReference:             true,
		}
		schema := reflector.Reflect(&planSchema{})
		schemaJSON, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			panic(fmt.Sprintf("failed to render plan schema: %v", err))
		}
		systemPrompt = fmt.Sprintf(`You are a drug-search query planner for clinicians.

Rewrite the user's raw query into a normalized search intent:
- Expand abbreviations (e.g. "HCTZ" -> "hydrochlorothiazide") and add brand/generic synonyms ("crestor" -> "crestor rosuvastatin").
- When the query states a dosage form or route, set the matching filter tag. Allowed dosage forms: %s. Allowed routes: %s.
- When the query describes an indication ("for cholesterol"), set therapeutic_class to the pharmacological class treating it and keep the indication.
- Correct likely misspellings of drug names; list each correction.
- Set is_generic only when the query explicitly asks for generic or brand products.
- Report confidence in [0,1].

Respond with a single JSON object matching this schema, nothing else:

%s`, vocabList(dosageForms), vocabList(routes), schemaJSON)
	})
	return systemPrompt
}

func vocabList(vocab map[string]bool) string {
	values := make([]string, 0, len(vocab))
	for v := range vocab {
		values = append(values, v)
	}
	sort.Strings(values)
	return strings.Join(values, ", ")
}
