// Package reputation provides entry point for reputation checker plugins
package reputation

import "context"

// Kind classifies the network indicator being assessed
type Kind string

// Indicator kinds a checker may declare support for
const (
	KindIP       Kind = "ip"
	KindASN      Kind = "asn"
	KindDomain   Kind = "domain"
	KindNetblock Kind = "netblock"
)

// ValidKind tells whether k names a known indicator kind
func ValidKind(k Kind) bool {
	switch k {
	case KindIP, KindASN, KindDomain, KindNetblock:
		return true
	}
	return false
}

// Indicator is a network artifact to be assessed for malicious reputation
type Indicator struct {
	Value string `json:"value"`
	Kind  Kind   `json:"kind"`
}

// Checker defines the behaviour that must be implemented by a reputation plugin
type Checker interface {
	Check(ctx context.Context, ind Indicator) (found bool, results []Result, err error)
	Initialize(config []byte) error
	Supports(k Kind) bool
}

// Factory creates an unconfigured Checker. One instance is created and
// initialized per configured check, so checks of the same type never
// share state.
type Factory func() Checker

// Result defines the struct that must be returned by a reputation plugin.
// Reference holds the URL that confirms the finding.
type Result struct {
	Provider  string `json:"provider"`
	Term      string `json:"term"`
	Reference string `json:"reference"`
}
