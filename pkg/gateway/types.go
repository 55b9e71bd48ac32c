// Package gateway implements the staged inspection pipeline: input guard,
// pattern stage, exemplar index, reasoning stage, decision cache, router,
// policy engine, orchestrator and tier-health monitor.
package gateway

import "time"

// Action is the final disposition of a request.
type Action string

const (
	ActionAllow Action = "allow"
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"

	// actionPending is an internal marker meaning "escalate to the next
	// tier"; it never appears on a Verdict returned to a caller.
	actionPending Action = "allow_pending"
)

func (a Action) String() string { return string(a) }

// Severity ranks how serious a FailureClass is, used by the policy engine
// and by tie-breaking in the exemplar index.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank orders severities from most to least serious, lower is
// more severe. Used to pick a winner when multiple classes trigger.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:      1,
	SeverityMedium:    2,
	SeverityLow:       3,
	SeverityInfo:      4,
}

// FailureClass is the enumeration of failure classes; KnownClasses lists
// the built-in set. Policy attaches severities/actions/thresholds to
// classes.
type FailureClass string

const (
	ClassPromptInjection   FailureClass = "prompt_injection"
	ClassFabricatedConcept FailureClass = "fabricated_concept"
	ClassMissingGrounding  FailureClass = "missing_grounding"
	ClassOverconfidence    FailureClass = "overconfidence"
	ClassDomainMismatch    FailureClass = "domain_mismatch"
	ClassFabricatedFact    FailureClass = "fabricated_fact"
	ClassBias              FailureClass = "bias"
	ClassToxicity          FailureClass = "toxicity"
	ClassSQLInjection      FailureClass = "sql_injection"
	ClassXSS               FailureClass = "xss"
	ClassPathTraversal     FailureClass = "path_traversal"
	ClassCommandInjection  FailureClass = "command_injection"
	ClassPathologicalInput FailureClass = "pathological_input"
	ClassNone              FailureClass = "none"
)

// KnownClasses is the set of failure classes recognized at process start.
// Loading does not check against it: BuildPolicyEngine, BuildPatterns and
// BuildExemplars accept a class name outside this set as given, and a
// policy rule for such a name is added to the table.
var KnownClasses = map[FailureClass]bool{
	ClassPromptInjection:   true,
	ClassFabricatedConcept: true,
	ClassMissingGrounding:  true,
	ClassOverconfidence:    true,
	ClassDomainMismatch:    true,
	ClassFabricatedFact:    true,
	ClassBias:              true,
	ClassToxicity:          true,
	ClassSQLInjection:      true,
	ClassXSS:               true,
	ClassPathTraversal:     true,
	ClassCommandInjection:  true,
	ClassPathologicalInput: true,
	ClassNone:              true,
}

// Request is the transient input to the pipeline. It is never persisted by
// the core itself.
type Request struct {
	Text          string
	Context       map[string]string
	CorrelationID string
}

// Verdict is the structured result of inspection, produced by any stage or
// by the pipeline as a whole.
type Verdict struct {
	Action          Action       `json:"action"`
	TierUsed        int          `json:"tier_used"`
	Method          string       `json:"method"`
	FailureClass    FailureClass `json:"failure_class"`
	Severity        Severity     `json:"severity"`
	Confidence      float64      `json:"confidence"`
	ProcessingTime  time.Duration `json:"-"`
	ProcessingMs    float64      `json:"processing_time_ms"`
	Explanation     string       `json:"explanation,omitempty"`
	CacheHit        bool         `json:"cache_hit"`
}

// finalize stamps ProcessingMs from ProcessingTime and enforces the
// none-implies-allow invariant before a Verdict leaves the pipeline.
func (v *Verdict) finalize() {
	v.ProcessingMs = float64(v.ProcessingTime.Microseconds()) / 1000.0
	if v.FailureClass == ClassNone {
		v.Action = ActionAllow
	}
}

func allowVerdict(tier int, method string, confidence float64) Verdict {
	return Verdict{
		Action:       ActionAllow,
		TierUsed:     tier,
		Method:       method,
		FailureClass: ClassNone,
		Severity:     SeverityInfo,
		Confidence:   confidence,
	}
}
