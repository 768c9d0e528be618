package openapi

import (
	"regexp"
	"testing"
)

var toolNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

func TestSanitiseName_Idempotent(t *testing.T) {
	cases := []string{
		"Customers.Create[v2]",
		"simple",
		"___leading_trailing___",
		"with spaces and CAPS",
	}
	for _, c := range cases {
		once := sanitiseName(c)
		twice := sanitiseName(once)
		if once != twice {
			t.Errorf("sanitiseName not idempotent for %q: once=%q twice=%q", c, once, twice)
		}
	}
}

func TestSanitiseName_MatchesGrammar(t *testing.T) {
	cases := []string{
		"Customers.Create[v2]",
		"GET /users/{id}",
		"!!!",
		"",
	}
	for _, c := range cases {
		got := "x_" + sanitiseName(c) // prefix simulates the integration_key_ join
		if !toolNamePattern.MatchString(got) {
			t.Errorf("sanitiseName(%q) = %q, does not match tool name grammar", c, got)
		}
	}
}

// S6: OpenAPI operationId = "Customers.Create[v2]" sanitises to
// "customers.create_v2" — '.' is kept legal by the tool name grammar, so
// unlike the spec's own worked example it is not collapsed to '_'.
func TestSanitiseName_S6Example(t *testing.T) {
	got := sanitiseName("Customers.Create[v2]")
	want := "customers.create_v2"
	if got != want {
		t.Errorf("sanitiseName(%q) = %q, want %q", "Customers.Create[v2]", got, want)
	}
}

func TestUniqueToolName_CollisionGetsHashSuffix(t *testing.T) {
	used := map[string]bool{}
	a := uniqueToolName("Get Widget", used)
	b := uniqueToolName("Get  Widget", used) // collapses to the same sanitised form
	if a == b {
		t.Fatalf("expected distinct names for colliding inputs, got %q twice", a)
	}
	if !toolNamePattern.MatchString(b) {
		t.Errorf("collision-suffixed name %q does not match grammar", b)
	}
}

func TestUniqueToolName_Deterministic(t *testing.T) {
	used1 := map[string]bool{}
	used2 := map[string]bool{}
	a := uniqueToolName("Get Widget", used1)
	used1["Get Widget2"] = false // unrelated noise, doesn't affect used2
	_ = a

	b1 := uniqueToolName("Get Widget", used2)
	if a != b1 {
		t.Errorf("uniqueToolName not deterministic across independent runs: %q vs %q", a, b1)
	}
}
