package supervisor

import "testing"

func TestPrefixRoundTrip(t *testing.T) {
	cases := []struct{ server, tool string }{
		{"filesystem", "read_file"},
		{"git", "commit"},
		{"files", "tool__name"},
	}
	for _, c := range cases {
		prefixed := Prefix(c.server, c.tool)
		server, tool, ok := ParsePrefixed(prefixed)
		if !ok {
			t.Fatalf("ParsePrefixed(%q) reported not ok", prefixed)
		}
		if server != c.server || tool != c.tool {
			t.Errorf("ParsePrefixed(Prefix(%q, %q)) = (%q, %q), want original pair", c.server, c.tool, server, tool)
		}
	}
}

func TestParsePrefixed_NoDelimiter(t *testing.T) {
	if _, _, ok := ParsePrefixed("notprefixed"); ok {
		t.Error("ParsePrefixed(\"notprefixed\") reported ok, want false")
	}
}

func TestToolPrefixedName(t *testing.T) {
	tool := Tool{Name: "read_file", Server: "filesystem"}
	if got, want := tool.PrefixedName(), "filesystem__read_file"; got != want {
		t.Errorf("PrefixedName() = %q, want %q", got, want)
	}
}
