package manifest

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/google/jsonschema-go/jsonschema"
)

// Depth controls how much detail a [Registry.Search] result carries
// (spec §4.D "Depth-tiered results").
type Depth int

const (
	// DepthServers returns only matching server names.
	DepthServers Depth = 0
	// DepthCategories adds each matching server's inferred categories.
	DepthCategories Depth = 1
	// DepthToolNames adds matching tool names within each server.
	DepthToolNames Depth = 2
	// DepthFullSchema adds each matching tool's full input schema.
	DepthFullSchema Depth = 3
)

// nameMatchThreshold is the minimum word-level ratio for a tool/server
// name match (spec §4.D "Thresholds").
const nameMatchThreshold = 0.4

// descriptionMatchThreshold is the lower bar applied to description text,
// 0.7x the name threshold (spec §4.D).
const descriptionMatchThreshold = nameMatchThreshold * 0.7

// SearchResult is one matching server, shaped to the requested depth.
type SearchResult struct {
	Server     string      `json:"server"`
	Score      float64     `json:"score"`
	Categories []string    `json:"categories,omitempty"`
	Tools      []ToolEntry `json:"tools,omitempty"`
}

// Search scores every server the namespace filter admits against query,
// returning matches above threshold shaped to depth, best score first.
// namespace is a candidate-server allow-list (typically
// internal/namespace.Resolver.Resolve's output); nil means no filter — the
// full current catalogue is searched (spec §4.D "Namespace filter").
func (r *Registry) Search(query string, namespace []string, depth Depth) []SearchResult {
	m := r.Current()
	query = strings.ToLower(strings.TrimSpace(query))

	var allow map[string]bool
	if namespace != nil {
		allow = make(map[string]bool, len(namespace))
		for _, s := range namespace {
			allow[s] = true
		}
	}

	// An empty or single-character query at depth >= 1 is a catalogue
	// browse: every admitted server matches with score 1.0 (spec §4.D
	// "Empty or single-character queries...").
	browse := len(query) <= 1 && depth >= DepthCategories

	if query == "" && !browse {
		return nil
	}

	var results []SearchResult
	for name, entry := range m.Servers {
		if allow != nil && !allow[name] {
			continue
		}

		var best float64
		var matchedTools []ToolEntry
		if browse {
			best = 1.0
			matchedTools = append([]ToolEntry(nil), entry.Tools...)
		} else {
			best, matchedTools = scoreServer(query, entry)
			if best < nameMatchThreshold {
				continue
			}
		}

		res := SearchResult{Server: name, Score: best}
		if depth >= DepthCategories {
			res.Categories = entry.Categories
		}
		if depth >= DepthToolNames {
			res.Tools = matchedTools
		}
		if depth < DepthFullSchema {
			for i := range res.Tools {
				res.Tools[i].Description = ""
				res.Tools[i].InputSchema = nil
			}
		} else {
			for i := range res.Tools {
				res.Tools[i].InputSchema = normalizeSchema(res.Tools[i].InputSchema)
			}
		}
		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Server < results[j].Server
	})
	return results
}

// scoreServer returns the server's best match score against query across
// its name, categories, and tool names/descriptions, plus the subset of
// tools that individually matched.
func scoreServer(query string, entry ServerEntry) (float64, []ToolEntry) {
	best := matchScore(query, entry.Name, nameMatchThreshold)
	for _, cat := range entry.Categories {
		best = maxFloat(best, matchScore(query, cat, nameMatchThreshold))
	}

	var matched []ToolEntry
	for _, tool := range entry.Tools {
		nameScore := matchScore(query, tool.Name, nameMatchThreshold)
		descScore := matchScore(query, tool.Description, descriptionMatchThreshold)
		toolScore := maxFloat(nameScore, descScore)
		if toolScore >= nameMatchThreshold || descScore >= descriptionMatchThreshold {
			matched = append(matched, tool)
		}
		best = maxFloat(best, toolScore)
	}
	return best, matched
}

// matchScore implements the two-tier scoring contract (spec §4.D
// "Search semantics"): an exact substring containment scores 1.0;
// otherwise both query and candidate are split into words, and the score is
// the fraction of query words that find a matching candidate word — by
// substring containment or by a Jaro-Winkler ratio at or above threshold.
// If either side yields no words (an empty string or one made only of
// separators), falls back to a raw whole-string Jaro-Winkler ratio.
func matchScore(query, candidate string, threshold float64) float64 {
	candidate = strings.ToLower(candidate)
	if candidate == "" {
		return 0
	}
	if strings.Contains(candidate, query) {
		return 1.0
	}

	queryWords := strings.FieldsFunc(query, isWordSeparator)
	candidateWords := strings.FieldsFunc(candidate, isWordSeparator)
	if len(queryWords) == 0 || len(candidateWords) == 0 {
		ratio := matchr.JaroWinkler(query, candidate)
		if ratio < threshold {
			return 0
		}
		return ratio
	}

	matched := 0
	for _, qw := range queryWords {
		for _, cw := range candidateWords {
			if strings.Contains(cw, qw) || matchr.JaroWinkler(qw, cw) >= threshold {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(queryWords))
}

// normalizeSchema round-trips raw through *jsonschema.Schema, defaulting a
// missing/empty "type" to "object" the way MCP tool schemas are expected to
// shape themselves — the same marshal/unmarshal pattern used to adapt
// dynamically-sourced input schemas into the SDK's typed schema object. A
// raw value that fails to parse as a schema is returned unchanged; depth-3
// search is a convenience view, not a validation gate.
func normalizeSchema(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return raw
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	normalized, err := json.Marshal(&schema)
	if err != nil {
		return raw
	}
	return normalized
}

func isWordSeparator(r rune) bool {
	return r == '_' || r == '-' || r == ' ' || r == '.'
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
