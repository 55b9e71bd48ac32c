package gateway

import "testing"

func TestPolicyEngine_ApplyIsAuthoritativeOverStageAction(t *testing.T) {
	pe := NewDefaultPolicyEngine()
	// A stage proposes allow even though the class is critical: policy
	// dominance means the table wins regardless of what the stage said.
	stageVerdict := Verdict{Action: ActionAllow, FailureClass: ClassPromptInjection, Confidence: 0.9}
	v := pe.Apply(stageVerdict)
	if v.Action != ActionBlock {
		t.Fatalf("expected policy table to override to block, got %s", v.Action)
	}
	if v.Severity != SeverityCritical {
		t.Errorf("expected critical severity, got %s", v.Severity)
	}
}

func TestPolicyEngine_NoneAlwaysAllows(t *testing.T) {
	pe := NewDefaultPolicyEngine()
	v := pe.Apply(Verdict{Action: ActionBlock, FailureClass: ClassNone})
	if v.Action != ActionAllow {
		t.Fatalf("expected none-class verdict to finalize to allow, got %s", v.Action)
	}
}

func TestPolicyEngine_UnknownClassDefaultsToAllow(t *testing.T) {
	pe := NewDefaultPolicyEngine()
	v := pe.Apply(Verdict{Action: ActionBlock, FailureClass: FailureClass("nonexistent_class")})
	if v.Action != ActionAllow || v.Severity != SeverityInfo {
		t.Fatalf("expected unknown class to fall back to allow/info, got %+v", v)
	}
}

func TestBuildPolicyEngine_OverridesMergeOverDefaults(t *testing.T) {
	pf := &PolicyFile{
		Version: "v2",
		FailurePolicies: map[string]PolicyRuleFile{
			"domain_mismatch": {Severity: "high", Action: "block", ThresholdOverride: 0.5},
		},
	}
	pe := BuildPolicyEngine(pf)
	if pe.Version() != "v2" {
		t.Errorf("expected version v2, got %s", pe.Version())
	}

	v := pe.Apply(Verdict{FailureClass: ClassDomainMismatch})
	if v.Action != ActionBlock || v.Severity != SeverityHigh {
		t.Fatalf("expected override to promote domain_mismatch to block/high, got %+v", v)
	}

	// A class untouched by the file keeps its hardcoded default.
	v2 := pe.Apply(Verdict{FailureClass: ClassPromptInjection})
	if v2.Action != ActionBlock || v2.Severity != SeverityCritical {
		t.Fatalf("expected prompt_injection to keep its default rule, got %+v", v2)
	}
}

func TestPolicyEngine_ThresholdOverrides(t *testing.T) {
	pf := &PolicyFile{
		FailurePolicies: map[string]PolicyRuleFile{
			"toxicity": {ThresholdOverride: 0.55},
		},
	}
	pe := BuildPolicyEngine(pf)
	overrides := pe.ThresholdOverrides()
	if overrides[ClassToxicity] != 0.55 {
		t.Fatalf("expected toxicity threshold override 0.55, got %f", overrides[ClassToxicity])
	}
	if _, ok := overrides[ClassBias]; ok {
		t.Errorf("expected no override entry for untouched class")
	}
}
