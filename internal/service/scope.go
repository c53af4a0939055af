package service

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
)

// AssayConfigProvider resolves the scope policy for a sample's assay context.
// The subpanel exception list is configuration data, keyed by assay group, so
// new assay groups can opt into subpanel scoping without matcher changes.
// Assays absent from the table default to assay-only scope, the conservative
// choice.
type AssayConfigProvider struct {
	subpanelAssays map[string]struct{}
	fallbackChain  []string
	sentinelTier   int
	altLookup      bool
	scopes         *lru.Cache[string, domain.Scope]
	log            *logrus.Logger
}

// NewAssayConfigProvider creates a provider from the interpretation policy
func NewAssayConfigProvider(policy domain.PolicyConfig, logger *logrus.Logger) (*AssayConfigProvider, error) {
	size := policy.ScopeCacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, domain.Scope](size)
	if err != nil {
		return nil, fmt.Errorf("creating scope cache: %w", err)
	}

	subpanel := make(map[string]struct{}, len(policy.SubpanelAssays))
	for _, assay := range policy.SubpanelAssays {
		subpanel[assay] = struct{}{}
	}

	sentinel := policy.SentinelTier
	if sentinel <= 0 {
		sentinel = domain.SentinelTier
	}

	chain := policy.FallbackChain
	if len(chain) == 0 {
		chain = []string{"subpanel", "assay", "sentinel"}
	}

	return &AssayConfigProvider{
		subpanelAssays: subpanel,
		fallbackChain:  chain,
		sentinelTier:   sentinel,
		altLookup:      policy.AlternativeLookup,
		scopes:         cache,
		log:            logger,
	}, nil
}

// ScopeFor returns the scope predicate for a sample's assay context
func (p *AssayConfigProvider) ScopeFor(assay, subpanel string) domain.Scope {
	key := assay + "|" + subpanel
	if scope, ok := p.scopes.Get(key); ok {
		return scope
	}

	mode := domain.SCOPE_ASSAY_ONLY
	if _, ok := p.subpanelAssays[assay]; ok && subpanel != "" {
		mode = domain.SCOPE_ASSAY_SUBPANEL
	}

	scope := domain.Scope{
		Assay:    assay,
		Subpanel: subpanel,
		Mode:     mode,
	}
	p.scopes.Add(key, scope)

	return scope
}

// FallbackChain returns the resolution stages applicable to a scope. The
// subpanel stage only applies when the scope actually carries subpanel-level
// distinction; the chain always ends with the sentinel.
func (p *AssayConfigProvider) FallbackChain(scope domain.Scope) []domain.ResolutionSource {
	var stages []domain.ResolutionSource
	for _, stage := range p.fallbackChain {
		switch stage {
		case "subpanel":
			if scope.Mode == domain.SCOPE_ASSAY_SUBPANEL {
				stages = append(stages, domain.SOURCE_SUBPANEL)
			}
		case "assay":
			stages = append(stages, domain.SOURCE_ASSAY)
		case "sentinel":
			stages = append(stages, domain.SOURCE_SENTINEL)
		}
	}
	return stages
}

// SentinelTier returns the explicit "unclassified" tier value
func (p *AssayConfigProvider) SentinelTier() int {
	return p.sentinelTier
}

// AlternativeLookup reports whether transcript-aware secondary lookups are enabled
func (p *AssayConfigProvider) AlternativeLookup() bool {
	return p.altLookup
}
