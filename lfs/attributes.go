package lfs

import (
	"github.com/git-lfs/wildmatch/v2"
)

// AttributesProvider is the external collaborator consulted by Clean
// before it touches the cache or client. This is the only point at
// which .gitattributes semantics enter this package; the host owns
// reading and interpreting the actual .gitattributes file.
type AttributesProvider interface {
	// IsTracked reports whether path is configured for LFS (i.e. matched
	// by a "filter=lfs" .gitattributes pattern).
	IsTracked(path string) bool
}

// PatternAttributesProvider is a small reference AttributesProvider
// backed by a fixed list of gitattributes-style glob patterns, matched
// with the reference LFS tool's own pattern matcher
// (github.com/git-lfs/wildmatch). Hosts with a real .gitattributes
// parser are expected to supply their own provider; this one exists so
// the filter and repo facade can be exercised without one.
type PatternAttributesProvider struct {
	patterns []*wildmatch.Wildmatch
}

// NewPatternAttributesProvider compiles patterns (e.g. "*.psd", "*.bin")
// into a PatternAttributesProvider.
func NewPatternAttributesProvider(patterns ...string) *PatternAttributesProvider {
	p := &PatternAttributesProvider{patterns: make([]*wildmatch.Wildmatch, 0, len(patterns))}
	for _, pattern := range patterns {
		p.patterns = append(p.patterns, wildmatch.NewWildmatch(pattern))
	}
	return p
}

// IsTracked reports whether path matches any configured pattern.
func (p *PatternAttributesProvider) IsTracked(path string) bool {
	for _, pattern := range p.patterns {
		if pattern.Match(path) {
			return true
		}
	}
	return false
}
