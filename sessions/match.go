package sessions

import "strings"

// MatchStrategy decides whether a stored session belongs to a principal.
type MatchStrategy interface {
	Belongs(principalID string, d Decoded) bool
}

// DecodedMatch compares the decoded principal identifier with the principal.
// Records that failed to decode never match.
type DecodedMatch struct{}

func (DecodedMatch) Belongs(principalID string, d Decoded) bool {
	if !d.OK() || principalID == "" {
		return false
	}
	return d.Payload.AuthUserID == principalID
}

// SubstringMatch matches when the principal identifier occurs anywhere in the
// raw stored data.
//
// Deprecated: any record whose encoded data happens to contain the identifier
// is attributed to the principal, including records of other users and
// records that fail to decode. Use DecodedMatch.
type SubstringMatch struct{}

func (SubstringMatch) Belongs(principalID string, d Decoded) bool {
	if principalID == "" {
		return false
	}
	return strings.Contains(d.Session.Data, principalID)
}

// MatchStrategyByName maps a configuration value to a strategy.
// Unknown names fall back to DecodedMatch.
func MatchStrategyByName(name string) MatchStrategy {
	if strings.EqualFold(name, "substring") {
		return SubstringMatch{}
	}
	return DecodedMatch{}
}
