// Package grouping folds scored per-NDC candidates into brand and
// generic drug families and labels each family's relationship to the
// query: Exact, Therapeutic_Equivalent, or Alternative. The output
// order is a deterministic total order.
package grouping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medscout/rxsearch/pkg/index"
	"github.com/medscout/rxsearch/pkg/retrieval"
)

// MatchType classifies a family's relationship to the query.
type MatchType string

const (
	MatchExact                 MatchType = "Exact"
	MatchTherapeuticEquivalent MatchType = "Therapeutic_Equivalent"
	MatchAlternative           MatchType = "Alternative"
)

// Variant is one NDC within a family.
type Variant struct {
	NDC          string  `json:"ndc"`
	Label        string  `json:"label"`
	Strength     string  `json:"strength"`
	Manufacturer string  `json:"manufacturer"`
	DosageForm   string  `json:"dosage_form"`
	IsGeneric    bool    `json:"is_generic"`
	Score        float64 `json:"score"`
	DEASchedule  string  `json:"dea_schedule,omitempty"`
}

// Family is one grouped result.
type Family struct {
	GroupKey       string    `json:"group_key"`
	DisplayName    string    `json:"display_name"`
	MatchType      MatchType `json:"match_type"`
	MatchReason    string    `json:"match_reason"`
	Representative Variant   `json:"representative"`
	Variants       []Variant `json:"variants"`
	BestScore      float64   `json:"best_score"`
}

type group struct {
	key         string
	displayName string
	variants    []Variant
	docs        []*index.DrugDocument

	bestScore float64
}

// Group folds candidates into families, labels them, and returns at
// most maxResults families in rank order. corrections are the
// planner's spelling fixes; a corrected term counting as an exact
// name match is what lets a typo query still surface its brand at
// rank one.
func Group(rawQuery string, corrections []string, candidates []retrieval.Candidate, maxResults int) []Family {
	groups := make(map[string]*group)
	order := make([]string, 0, len(candidates))

	for _, c := range candidates {
		key, display := GroupKey(c.Doc)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, displayName: display}
			groups[key] = g
			order = append(order, key)
		}
		g.variants = append(g.variants, Variant{
			NDC:          c.Doc.NDC,
			Label:        c.Doc.DrugName,
			Strength:     c.Doc.Strength,
			Manufacturer: c.Doc.ManufacturerName,
			DosageForm:   c.Doc.DosageForm,
			IsGeneric:    c.Doc.IsGeneric,
			Score:        c.Score,
			DEASchedule:  c.Doc.DEASchedule,
		})
		g.docs = append(g.docs, c.Doc)
		if c.Score > g.bestScore {
			g.bestScore = c.Score
		}
	}

	terms := make([]string, 0, 1+len(corrections))
	if q := strings.ToLower(strings.TrimSpace(rawQuery)); q != "" {
		terms = append(terms, q)
	}
	for _, c := range corrections {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			terms = append(terms, c)
		}
	}

	families := make([]Family, 0, len(order))
	for _, key := range order {
		g := groups[key]
		sortVariants(g.variants)
		families = append(families, Family{
			GroupKey:       g.key,
			DisplayName:    g.displayName,
			Representative: g.variants[0],
			Variants:       g.variants,
			BestScore:      g.bestScore,
		})
	}

	// First pass: Exact groups anchor the labeling of the rest.
	exactGCNs := make(map[int64]string)
	exactClasses := make(map[string]string)
	for i := range families {
		f := &families[i]
		g := groups[f.GroupKey]
		if term, ok := nameMatch(terms, g.docs); ok {
			f.MatchType = MatchExact
			f.MatchReason = fmt.Sprintf("Name contains '%s'", term)
			for _, doc := range g.docs {
				if doc.GCNSeqno > 0 {
					if _, ok := exactGCNs[doc.GCNSeqno]; !ok {
						exactGCNs[doc.GCNSeqno] = f.DisplayName
					}
				}
				if doc.TherapeuticClass != "" {
					if _, ok := exactClasses[doc.TherapeuticClass]; !ok {
						exactClasses[doc.TherapeuticClass] = f.DisplayName
					}
				}
			}
		}
	}

	for i := range families {
		f := &families[i]
		if f.MatchType == MatchExact {
			continue
		}
		g := groups[f.GroupKey]
		repDoc := g.docs[0]
		for _, doc := range g.docs {
			if doc.NDC == f.Representative.NDC {
				repDoc = doc
				break
			}
		}
		if anchor, ok := exactGCNs[repDoc.GCNSeqno]; ok && repDoc.GCNSeqno > 0 {
			f.MatchType = MatchTherapeuticEquivalent
			f.MatchReason = fmt.Sprintf("Same therapeutic class as %s", anchor)
			continue
		}
		f.MatchType = MatchAlternative
		if anchor, ok := exactClasses[repDoc.TherapeuticClass]; ok && repDoc.TherapeuticClass != "" {
			f.MatchReason = fmt.Sprintf("Same therapeutic class as %s", anchor)
		} else {
			f.MatchReason = fmt.Sprintf("Semantic match to '%s'", strings.TrimSpace(rawQuery))
		}
	}

	sortFamilies(families)
	if maxResults > 0 && len(families) > maxResults {
		families = families[:maxResults]
	}
	return families
}

// GroupKey derives a document's family key and display name. Branded
// products group by brand name; everything else groups by drug class,
// falling back to generic name and finally the NDC itself.
func GroupKey(doc *index.DrugDocument) (key, display string) {
	switch {
	case !doc.IsGeneric && doc.BrandName != "":
		name := strings.ToUpper(doc.BrandName)
		return "brand:" + name, name
	case doc.DrugClass != "":
		name := strings.ToUpper(doc.DrugClass)
		return "generic:" + name, name
	case doc.GenericName != "":
		name := strings.ToUpper(doc.GenericName)
		return "generic:" + name, name
	default:
		return "generic:" + doc.NDC, doc.DrugName
	}
}

// nameMatch reports whether any query term appears inside any group
// member's drug or brand name. Matching stops at those two fields:
// a branded product whose generic_name carries the query is a
// therapeutic relative, not an exact hit.
func nameMatch(terms []string, docs []*index.DrugDocument) (string, bool) {
	for _, term := range terms {
		for _, doc := range docs {
			if strings.Contains(strings.ToLower(doc.DrugName), term) ||
				strings.Contains(strings.ToLower(doc.BrandName), term) {
				return term, true
			}
		}
	}
	return "", false
}

func sortVariants(variants []Variant) {
	sort.SliceStable(variants, func(i, j int) bool {
		if variants[i].Score != variants[j].Score {
			return variants[i].Score > variants[j].Score
		}
		si, sj := strengthValue(variants[i].Strength), strengthValue(variants[j].Strength)
		if si != sj {
			return si < sj
		}
		return variants[i].NDC < variants[j].NDC
	})
}

func matchRank(t MatchType) int {
	switch t {
	case MatchExact:
		return 0
	case MatchTherapeuticEquivalent:
		return 1
	default:
		return 2
	}
}

func sortFamilies(families []Family) {
	sort.SliceStable(families, func(i, j int) bool {
		ri, rj := matchRank(families[i].MatchType), matchRank(families[j].MatchType)
		if ri != rj {
			return ri < rj
		}
		if families[i].BestScore != families[j].BestScore {
			return families[i].BestScore > families[j].BestScore
		}
		return families[i].GroupKey < families[j].GroupKey
	})
}
