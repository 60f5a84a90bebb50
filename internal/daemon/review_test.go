package daemon

import "testing"

func TestParseVerdictPass(t *testing.T) {
	v, issues := ParseVerdict("Looked at the diff.\n\nVERDICT: PASS\n")
	if v != VerdictPass {
		t.Errorf("verdict = %q, want PASS", v)
	}
	if len(issues) != 0 {
		t.Errorf("issues = %v, want none", issues)
	}
}

func TestParseVerdictFailWithIssues(t *testing.T) {
	out := `VERDICT: FAIL
ISSUES:
- store.go:42: error swallowed in Resolve
* missing test for the cancel path

NOTES:
- this bullet belongs to another section`
	v, issues := ParseVerdict(out)
	if v != VerdictFail {
		t.Fatalf("verdict = %q, want FAIL", v)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %v, want 2", issues)
	}
	if issues[0] != "store.go:42: error swallowed in Resolve" {
		t.Errorf("issues[0] = %q", issues[0])
	}
}

func TestParseVerdictCaseInsensitive(t *testing.T) {
	v, _ := ParseVerdict("verdict: pass")
	if v != VerdictPass {
		t.Errorf("verdict = %q, want PASS", v)
	}
}

func TestParseVerdictMissing(t *testing.T) {
	v, _ := ParseVerdict("the reviewer rambled and never concluded")
	if v != VerdictUnknown {
		t.Errorf("verdict = %q, want unknown", v)
	}
}
