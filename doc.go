// Package rxsearch provides a clinician-facing drug search service.
//
// A free-text query ("crestor", "statin for cholesterol", "crestr") is
// expanded by an LLM query planner into a structured plan, retrieved
// against a hybrid vector+attribute index of NDC drug documents, and
// grouped into brand/generic families labeled Exact,
// Therapeutic_Equivalent or Alternative. Planner outputs are memoized
// in an embedding-similarity cache so repeated queries skip the model.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/medscout/rxsearch/cmd/rxsearch@latest
//
// Load the index from the upstream drug database, then serve:
//
//	rxsearch load --config rxsearch.yaml
//	rxsearch serve --config rxsearch.yaml
//
// # Packages
//
// The online pipeline lives in pkg/planner, pkg/retrieval, pkg/grouping
// and pkg/search; the index contract and its qdrant/chromem backends in
// pkg/index; provider clients in pkg/llms and pkg/embedders; the HTTP
// surface in pkg/server.
package rxsearch
