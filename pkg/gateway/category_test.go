package gateway

import "testing"

func TestNormalizeClass_ExactMatch(t *testing.T) {
	if got := NormalizeClass("prompt_injection"); got != ClassPromptInjection {
		t.Errorf("got %s, want prompt_injection", got)
	}
}

func TestNormalizeClass_CaseInsensitive(t *testing.T) {
	if got := NormalizeClass("SQL_Injection"); got != ClassSQLInjection {
		t.Errorf("got %s, want sql_injection", got)
	}
}

func TestNormalizeClass_Alias(t *testing.T) {
	cases := map[string]FailureClass{
		"jailbreak":     ClassPromptInjection,
		"hallucination": ClassFabricatedFact,
		"sqli":          ClassSQLInjection,
		"rce":           ClassCommandInjection,
		"safe":          ClassNone,
	}
	for label, want := range cases {
		if got := NormalizeClass(label); got != want {
			t.Errorf("NormalizeClass(%q) = %s, want %s", label, got, want)
		}
	}
}

func TestNormalizeClass_KeywordSubstringFallback(t *testing.T) {
	if got := NormalizeClass("this looks like a jailbreak attempt"); got != ClassPromptInjection {
		t.Errorf("got %s, want prompt_injection via substring fallback", got)
	}
}

func TestNormalizeClass_UnknownFallsBackToNone(t *testing.T) {
	if got := NormalizeClass("completely unrecognized gibberish label"); got != ClassNone {
		t.Errorf("got %s, want none", got)
	}
}

func TestNormalizeClass_Empty(t *testing.T) {
	if got := NormalizeClass(""); got != ClassNone {
		t.Errorf("got %s, want none", got)
	}
}

func TestContainsASCII(t *testing.T) {
	if !containsASCII("the quick brown fox", "brown") {
		t.Error("expected substring match")
	}
	if containsASCII("short", "longerneedle") {
		t.Error("needle longer than haystack must not match")
	}
}
