package planner

import "strings"

// Tag vocabularies the model is allowed to emit. Values outside these
// sets are dropped rather than passed to the index, where they would
// silently match nothing.
var (
	dosageForms = map[string]bool{
		"TABLET":     true,
		"CAPSULE":    true,
		"SOLUTION":   true,
		"SUSPENSION": true,
		"INJECTION":  true,
		"CREAM":      true,
		"OINTMENT":   true,
		"GEL":        true,
		"PATCH":      true,
		"INHALER":    true,
		"DROPS":      true,
		"SYRUP":      true,
		"SPRAY":      true,
		"LOZENGE":    true,
		"SUPPOSITORY": true,
		"POWDER":     true,
	}

	routes = map[string]bool{
		"ORAL":          true,
		"TOPICAL":       true,
		"SUBCUTANEOUS":  true,
		"INTRAVENOUS":   true,
		"INTRAMUSCULAR": true,
		"INHALATION":    true,
		"OPHTHALMIC":    true,
		"OTIC":          true,
		"NASAL":         true,
		"RECTAL":        true,
		"TRANSDERMAL":   true,
		"SUBLINGUAL":    true,
		"VAGINAL":       true,
	}

	deaSchedules = map[string]bool{
		"1": true, "2": true, "3": true, "4": true, "5": true,
	}
)

// sanitize normalizes and vocabulary-checks model-emitted filters in
// place. Class fields are uppercased; unknown tag values are dropped.
func sanitize(p *Plan) {
	p.ExpandedText = strings.TrimSpace(p.ExpandedText)
	p.Filters.DrugClass = strings.ToUpper(strings.TrimSpace(p.Filters.DrugClass))
	p.Filters.TherapeuticClass = strings.ToUpper(strings.TrimSpace(p.Filters.TherapeuticClass))
	p.Filters.Indication = strings.TrimSpace(p.Filters.Indication)

	p.Filters.DosageForm = vocabValue(dosageForms, p.Filters.DosageForm)
	p.Filters.Route = vocabValue(routes, p.Filters.Route)
	p.Filters.DEASchedule = vocabValue(deaSchedules, p.Filters.DEASchedule)

	if p.Confidence < 0 {
		p.Confidence = 0
	} else if p.Confidence > 1 {
		p.Confidence = 1
	}
	if p.Corrections == nil {
		p.Corrections = []string{}
	}
	for i, c := range p.Corrections {
		p.Corrections[i] = strings.ToLower(strings.TrimSpace(c))
	}
}

func vocabValue(vocab map[string]bool, value string) string {
	v := strings.ToUpper(strings.TrimSpace(value))
	if vocab[v] {
		return v
	}
	return ""
}
