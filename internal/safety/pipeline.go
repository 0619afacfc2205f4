package safety

import "fmt"

// DefaultMaxOutputBytes is the byte cap applied to tool output before any
// other stage runs.
const DefaultMaxOutputBytes = 256 * 1024

// BlockedError is returned by Pipeline.Process when either the leak
// detector or the policy engine blocked the content outright. The
// original content is deliberately not retained on the error: that is the
// point of a Block action.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("safety: blocked (%s)", e.Reason)
}

// PipelineResult is the outcome of running Process on one tool output.
type PipelineResult struct {
	// Wrapped is the final content, already enclosed in the tool-output
	// boundary. Empty if the content was blocked (use the returned error).
	Wrapped string
	// Truncated reports whether the byte cap trimmed the content.
	Truncated bool
	// LeakFindings, PolicyMatches, FlaggedPhrases, StructuralHits surface
	// what each stage observed, for the action log.
	LeakFindings   []LeakFinding
	PolicyMatches  []PolicyMatch
	FlaggedPhrases []string
	StructuralHits int
	NeedsReview    bool
}

// Pipeline composes the five stages applied to every tool output, in
// order: truncate, leak scan, policy check, sanitize, boundary wrap.
type Pipeline struct {
	MaxBytes int
	Leak     *LeakDetector
	Policy   *PolicyEngine
	Sanitize *Sanitizer
}

// NewPipeline builds a Pipeline with sensible defaults for any nil
// component.
func NewPipeline(maxBytes int, leak *LeakDetector, policy *PolicyEngine, sanitizer *Sanitizer) *Pipeline {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}
	if leak == nil {
		leak = NewLeakDetector(nil)
	}
	if policy == nil {
		policy = NewPolicyEngine(nil)
	}
	if sanitizer == nil {
		sanitizer = NewSanitizer(nil)
	}
	return &Pipeline{MaxBytes: maxBytes, Leak: leak, Policy: policy, Sanitize: sanitizer}
}

// Process runs the full pipeline over one tool's raw output and returns
// the boundary-wrapped, sanitized text ready to enter the model's
// context. Empty input produces empty output with no wrapping — an empty
// <tool_output> adds noise without conveying anything.
func (p *Pipeline) Process(toolName, content string) (PipelineResult, error) {
	if content == "" {
		return PipelineResult{}, nil
	}

	result := PipelineResult{}

	truncated := content
	if len(truncated) > p.MaxBytes {
		truncated = truncated[:p.MaxBytes]
		result.Truncated = true
	}

	leakResult := p.Leak.Scan(truncated)
	result.LeakFindings = leakResult.Findings
	if leakResult.Blocked {
		return result, &BlockedError{Reason: "leak detector"}
	}

	policyResult := p.Policy.Evaluate(leakResult.Content)
	result.PolicyMatches = policyResult.Matches
	result.NeedsReview = policyResult.NeedsReview
	if policyResult.Blocked {
		return result, &BlockedError{Reason: "policy rule"}
	}

	sanitized := p.Sanitize.Sanitize(policyResult.Content)
	result.FlaggedPhrases = sanitized.FlaggedPhrases
	result.StructuralHits = sanitized.StructuralHits

	wasSanitized := result.Truncated || len(result.LeakFindings) > 0 || len(result.PolicyMatches) > 0 || sanitized.StructuralHits > 0
	result.Wrapped = WrapToolOutput(toolName, sanitized.Content, wasSanitized)
	return result, nil
}
