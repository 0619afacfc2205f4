// Package proto holds the small set of wire-level enum types shared
// between the tool policy layer and the internal worker/edge transport.
package proto

// RiskLevel classifies how dangerous a tool call is judged to be,
// driving the static and dynamic approval gates in the tool registry.
type RiskLevel int

const (
	RiskLevel_RISK_LEVEL_UNSPECIFIED RiskLevel = iota
	RiskLevel_RISK_LEVEL_LOW
	RiskLevel_RISK_LEVEL_MEDIUM
	RiskLevel_RISK_LEVEL_HIGH
	RiskLevel_RISK_LEVEL_CRITICAL
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLevel_RISK_LEVEL_LOW:
		return "low"
	case RiskLevel_RISK_LEVEL_MEDIUM:
		return "medium"
	case RiskLevel_RISK_LEVEL_HIGH:
		return "high"
	case RiskLevel_RISK_LEVEL_CRITICAL:
		return "critical"
	default:
		return "unspecified"
	}
}
