package authz

import (
	"reflect"
	"testing"
)

func entryPaths(entries []Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

func TestSortBySpecificity(t *testing.T) {
	entries := []Entry{
		{Path: "/a/**", Actions: []Action{ActionRead}},
		{Path: "/a/b/c", Actions: []Action{ActionRead}},
		{Path: "/a/b/**", Actions: []Action{ActionRead}},
		{Path: "/a", Actions: []Action{ActionRead}},
	}
	SortBySpecificity(entries)

	want := []string{"/a/b/c", "/a/b/**", "/a/**", "/a"}
	if got := entryPaths(entries); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSortBySpecificityWildcardFormsRankEqual(t *testing.T) {
	// "/a/b/**" and "/a/b/+**" strip to the same key "/a/b/", so the
	// stable sort keeps their insertion order.
	entries := []Entry{
		{Path: "/a/b/+**", Actions: []Action{ActionRead}},
		{Path: "/a/b/**", Actions: []Action{ActionDelete}},
	}
	SortBySpecificity(entries)

	want := []string{"/a/b/+**", "/a/b/**"}
	if got := entryPaths(entries); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSortBySpecificityStrippedKeyBeatsRawLength(t *testing.T) {
	// Ranking uses the stripped key, not the raw pattern: "/abc/**"
	// strips to "/abc/" (length 5) and outranks the exact "/a/b"
	// (length 4).
	entries := []Entry{
		{Path: "/a/b", Actions: []Action{ActionRead}},
		{Path: "/abc/**", Actions: []Action{ActionRead}},
	}
	SortBySpecificity(entries)

	want := []string{"/abc/**", "/a/b"}
	if got := entryPaths(entries); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestMergeACLFlattensAndSorts(t *testing.T) {
	perRole := [][]Entry{
		{{Path: "/a/**", Actions: []Action{ActionRead}}},
		{{Path: "/a/b/**", Actions: []Action{ActionUpdate}}},
		nil,
		{{Path: "/a/b/c", Actions: []Action{ActionDelete}}},
	}
	merged := MergeACL(perRole)

	want := []string{"/a/b/c", "/a/b/**", "/a/**"}
	if got := entryPaths(merged); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	resolved := MergeACL([][]Entry{
		{{Path: "/organization/45678/**", Actions: []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}}},
		{{Path: "/organization/45678/secrets/**", Actions: []Action{ActionRead}}},
	})

	// The more specific read-only rule matches first and is final: the
	// broader rule never grants delete on secrets.
	if d := Evaluate(resolved, "/organization/45678/secrets/key1", ActionDelete); d.Allowed {
		t.Error("delete on secrets allowed, want deny")
	}
	if d := Evaluate(resolved, "/organization/45678/secrets/key1", ActionRead); !d.Allowed {
		t.Error("read on secrets denied, want allow")
	}
	if d := Evaluate(resolved, "/organization/45678/pages/1", ActionDelete); !d.Allowed {
		t.Error("delete outside secrets denied, want allow")
	}
}

func TestEvaluateNoMatchDenies(t *testing.T) {
	resolved := []Entry{{Path: "/organization/45678/**", Actions: []Action{ActionRead}}}

	if d := Evaluate(resolved, "/organization/99999/site", ActionRead); d.Allowed {
		t.Error("unmatched resource allowed, want deny")
	}
	if d := Evaluate(nil, "/anything", ActionRead); d.Allowed {
		t.Error("empty ACL allowed, want deny")
	}
}

func TestEvaluateMatchedEntryWithoutActionDenies(t *testing.T) {
	resolved := []Entry{{Path: "/organization/45678/**", Actions: []Action{ActionRead}}}

	if d := Evaluate(resolved, "/organization/45678/site", ActionUpdate); d.Allowed {
		t.Error("update allowed by read-only entry, want deny")
	}
}
