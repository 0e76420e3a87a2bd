package manifest

import "testing"

func TestMatchScore_ExactSubstringIsPerfect(t *testing.T) {
	if got := matchScore("file", "read_file_contents", nameMatchThreshold); got != 1.0 {
		t.Errorf("matchScore exact substring = %v, want 1.0", got)
	}
}

func TestMatchScore_BelowThresholdIsZero(t *testing.T) {
	if got := matchScore("zzzzz", "read_file_contents", nameMatchThreshold); got != 0 {
		t.Errorf("matchScore unrelated query = %v, want 0", got)
	}
}

func TestMatchScore_MultiWordQuery_AllWordsMatch(t *testing.T) {
	if got := matchScore("list files", "list_directory_files", nameMatchThreshold); got != 1.0 {
		t.Errorf("matchScore(%q, %q) = %v, want 1.0 (both query words found)", "list files", "list_directory_files", got)
	}
}

func TestMatchScore_MultiWordQuery_PartialMatchIsFraction(t *testing.T) {
	got := matchScore("list zzzzz", "list_directory_files", nameMatchThreshold)
	if got != 0.5 {
		t.Errorf("matchScore(%q, %q) = %v, want 0.5 (1 of 2 query words found)", "list zzzzz", "list_directory_files", got)
	}
}

func TestSearch_DepthShaping(t *testing.T) {
	reg := &Registry{current: Manifest{Servers: map[string]ServerEntry{
		"filesystem": {
			Name:       "filesystem",
			Status:     StatusRunning,
			Categories: []string{"filesystem"},
			Tools: []ToolEntry{
				{Name: "filesystem__read_file", Description: "reads a file from disk", Category: "filesystem"},
			},
		},
	}}}

	serverOnly := reg.Search("file", nil, DepthServers)
	if len(serverOnly) != 1 || serverOnly[0].Categories != nil || serverOnly[0].Tools != nil {
		t.Errorf("DepthServers result = %+v, want bare server match", serverOnly)
	}

	withCats := reg.Search("file", nil, DepthCategories)
	if len(withCats) != 1 || len(withCats[0].Categories) != 1 {
		t.Errorf("DepthCategories result = %+v, want categories populated", withCats)
	}

	withTools := reg.Search("file", nil, DepthToolNames)
	if len(withTools) != 1 || len(withTools[0].Tools) != 1 {
		t.Errorf("DepthToolNames result = %+v, want 1 matching tool", withTools)
	}
}

func TestSearch_EmptyQueryReturnsNothing(t *testing.T) {
	reg := &Registry{current: Manifest{Servers: map[string]ServerEntry{}}}
	if got := reg.Search("  ", nil, DepthServers); got != nil {
		t.Errorf("Search(blank) = %v, want nil", got)
	}
}

func TestSearch_EmptyQueryBrowsesCatalogueAtDepthGEQ1(t *testing.T) {
	reg := &Registry{current: Manifest{Servers: map[string]ServerEntry{
		"filesystem": {Name: "filesystem", Categories: []string{"filesystem"}},
		"browser":    {Name: "browser", Categories: []string{"browser"}},
	}}}

	results := reg.Search("", nil, DepthCategories)
	if len(results) != 2 {
		t.Fatalf("Search(\"\", depth=1) returned %d results, want 2 (catalogue browse)", len(results))
	}
	for _, r := range results {
		if r.Score != 1.0 {
			t.Errorf("browse result %q score = %v, want 1.0", r.Server, r.Score)
		}
	}
}

func TestSearch_NamespaceFilterRestrictsCandidates(t *testing.T) {
	reg := &Registry{current: Manifest{Servers: map[string]ServerEntry{
		"filesystem": {Name: "filesystem", Categories: []string{"filesystem"}},
		"browser":    {Name: "browser", Categories: []string{"browser"}},
	}}}

	results := reg.Search("", []string{"filesystem"}, DepthCategories)
	if len(results) != 1 || results[0].Server != "filesystem" {
		t.Errorf("Search with namespace filter = %+v, want only filesystem", results)
	}
}
