package gateway

// PolicyRule is one row of the declarative class->action table (spec
// §4.7). ThresholdOverride, when non-zero, replaces the Exemplar Index's
// default class threshold for this class.
type PolicyRule struct {
	Severity          Severity
	Action            Action
	ThresholdOverride float64
	Reason            string
}

// defaultPolicyTable is the hardcoded fallback, grounded on the teacher's
// detection_profile.go profile-table shape: a flat map, no class-to-class
// dependencies, exactly matching spec §9's "avoid graph cycles in policy."
var defaultPolicyTable = map[FailureClass]PolicyRule{
	ClassPromptInjection:   {Severity: SeverityCritical, Action: ActionBlock, Reason: "instruction override attempt"},
	ClassToxicity:          {Severity: SeverityCritical, Action: ActionBlock, Reason: "abusive or hateful content"},
	ClassPathTraversal:     {Severity: SeverityCritical, Action: ActionBlock, Reason: "directory traversal sequence"},
	ClassCommandInjection:  {Severity: SeverityCritical, Action: ActionBlock, Reason: "shell/command execution attempt"},
	ClassFabricatedFact:    {Severity: SeverityHigh, Action: ActionBlock, Reason: "unsupported factual claim"},
	ClassFabricatedConcept: {Severity: SeverityHigh, Action: ActionBlock, Reason: "reference to a nonexistent concept"},
	ClassSQLInjection:      {Severity: SeverityHigh, Action: ActionBlock, Reason: "SQL injection signature"},
	ClassXSS:               {Severity: SeverityHigh, Action: ActionBlock, Reason: "script injection markup"},
	ClassBias:              {Severity: SeverityHigh, Action: ActionBlock, Reason: "discriminatory content"},
	ClassMissingGrounding:  {Severity: SeverityMedium, Action: ActionWarn, Reason: "claim lacks supporting evidence"},
	ClassOverconfidence:    {Severity: SeverityMedium, Action: ActionWarn, Reason: "unwarranted certainty"},
	ClassDomainMismatch:    {Severity: SeverityLow, Action: ActionWarn, Reason: "response outside expected domain"},
	ClassPathologicalInput: {Severity: SeverityHigh, Action: ActionBlock, Reason: "input shaped to waste matcher/encoder time"},
	ClassNone:              {Severity: SeverityInfo, Action: ActionAllow, Reason: "no failure detected"},
}

// PolicyEngine holds the current (possibly hot-reloaded) rule table and is
// part of the published Snapshot (spec §3 Lifecycle / §5 Hot reload).
type PolicyEngine struct {
	table   map[FailureClass]PolicyRule
	version string
}

func NewDefaultPolicyEngine() *PolicyEngine {
	table := make(map[FailureClass]PolicyRule, len(defaultPolicyTable))
	for k, v := range defaultPolicyTable {
		table[k] = v
	}
	return &PolicyEngine{table: table, version: "default"}
}

// BuildPolicyEngine merges the policy file's failure_policies over the
// hardcoded defaults. A class absent from the file keeps its default rule
// — graceful degradation, same idiom as the teacher's config getters
// falling back to hardcoded defaults when YAML is absent.
func BuildPolicyEngine(pf *PolicyFile) *PolicyEngine {
	pe := NewDefaultPolicyEngine()
	if pf == nil {
		return pe
	}
	if pf.Version != "" {
		pe.version = pf.Version
	}
	for class, rule := range pf.FailurePolicies {
		fc := FailureClass(class)
		existing, ok := pe.table[fc]
		if !ok {
			existing = PolicyRule{Severity: SeverityInfo, Action: ActionAllow}
		}
		if rule.Severity != "" {
			existing.Severity = Severity(rule.Severity)
		}
		if rule.Action != "" {
			existing.Action = Action(rule.Action)
		}
		if rule.ThresholdOverride > 0 {
			existing.ThresholdOverride = rule.ThresholdOverride
		}
		if rule.Reason != "" {
			existing.Reason = rule.Reason
		}
		pe.table[fc] = existing
	}
	return pe
}

func (p *PolicyEngine) Version() string { return p.version }

// Apply has the final word over any stage's proposed action, per spec
// §4.7: stages may propose warn/block, but the policy table for the
// winning class is authoritative.
func (p *PolicyEngine) Apply(v Verdict) Verdict {
	rule, ok := p.table[v.FailureClass]
	if !ok {
		rule = PolicyRule{Severity: SeverityInfo, Action: ActionAllow}
	}
	v.Severity = rule.Severity
	v.Action = rule.Action
	// The reasoner's conservative floor survives the table: a block on a
	// Reasoning Stage verdict below the floor is downgraded to warn.
	if v.TierUsed == 3 && v.Method == "reason" && v.Action == ActionBlock && v.Confidence < reasonerConservativeFloor {
		v.Action = ActionWarn
	}
	if rule.Reason != "" && v.Explanation == "" {
		v.Explanation = rule.Reason
	}
	v.finalize()
	return v
}

// ThresholdOverrides returns the subset of the table that overrides the
// Exemplar Index's default per-class threshold, for BuildExemplarIndex.
func (p *PolicyEngine) ThresholdOverrides() map[FailureClass]float64 {
	out := map[FailureClass]float64{}
	for class, rule := range p.table {
		if rule.ThresholdOverride > 0 {
			out[class] = rule.ThresholdOverride
		}
	}
	return out
}
