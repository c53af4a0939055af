package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
)

// Resolver performs auto-tier resolution: it matches a finding's identity
// against the shared annotation corpus under the sample's scope and returns
// the currently-applicable classification. Resolution never fails on an
// empty corpus; it falls through to the sentinel tier.
type Resolver struct {
	annotations domain.AnnotationStore
	cache       domain.ResolutionCache
	assayConfig *AssayConfigProvider
	log         *logrus.Logger
}

// NewResolver creates a new resolver. cache may be nil, in which case every
// resolution goes to the annotation store.
func NewResolver(annotations domain.AnnotationStore, cache domain.ResolutionCache, assayConfig *AssayConfigProvider, logger *logrus.Logger) *Resolver {
	return &Resolver{
		annotations: annotations,
		cache:       cache,
		assayConfig: assayConfig,
		log:         logger,
	}
}

// ResolveClassification resolves the current interpretation of a finding in
// the sample's assay context.
func (r *Resolver) ResolveClassification(ctx context.Context, finding *domain.Finding, sample *domain.Sample) (*domain.Resolution, error) {
	if err := domain.ValidateFinding(finding); err != nil {
		return nil, err
	}

	identity := domain.ResolveIdentity(finding)
	scope := r.assayConfig.ScopeFor(sample.Assay, sample.Subpanel)

	if r.cache != nil {
		if res, ok := r.cache.Get(ctx, finding.GeneSymbol, identity, scope); ok {
			return res, nil
		}
	}

	res, err := r.resolveIdentity(ctx, finding.GeneSymbol, identity, scope)
	if err != nil {
		return nil, err
	}

	text, err := r.latestText(ctx, finding.GeneSymbol, identity, scope)
	if err != nil {
		return nil, err
	}
	res.Text = text

	if r.assayConfig.AlternativeLookup() {
		if altIdentity := domain.AlternativeIdentity(finding); altIdentity != "" {
			alt, err := r.resolveIdentity(ctx, finding.GeneSymbol, altIdentity, scope)
			if err != nil {
				return nil, err
			}
			// Only surface a transcript-aware result that disagrees with the
			// primary one; agreement is not ambiguity.
			if !alt.Unclassified() && alt.Tier != res.Tier {
				res.Alternative = &domain.AlternativeResolution{
					Identity: altIdentity,
					Tier:     alt.Tier,
				}
				r.log.WithFields(logrus.Fields{
					"gene":             finding.GeneSymbol,
					"identity":         identity,
					"alt_identity":     altIdentity,
					"tier":             res.Tier,
					"alternative_tier": alt.Tier,
				}).Info("Transcript-aware lookup disagrees with primary resolution")
			}
		}
	}

	if r.cache != nil {
		r.cache.Set(ctx, finding.GeneSymbol, identity, scope, res)
	}

	return res, nil
}

// resolveIdentity walks the fallback chain for one identity: the most recent
// record wins within each stage, and the first stage with a surviving record
// wins overall.
func (r *Resolver) resolveIdentity(ctx context.Context, gene, identity string, scope domain.Scope) (*domain.Resolution, error) {
	records, err := r.annotations.QueryClassifications(ctx, gene, identity)
	if err != nil {
		return nil, fmt.Errorf("querying classifications for %s %s: %w", gene, identity, err)
	}

	for _, stage := range r.assayConfig.FallbackChain(scope) {
		switch stage {
		case domain.SOURCE_SUBPANEL, domain.SOURCE_ASSAY:
			if rec := latestClassification(records, scope, stage); rec != nil {
				return &domain.Resolution{
					Identity: identity,
					Tier:     rec.Tier,
					Source:   stage,
				}, nil
			}
		case domain.SOURCE_SENTINEL:
			return &domain.Resolution{
				Identity: identity,
				Tier:     r.assayConfig.SentinelTier(),
				Source:   domain.SOURCE_SENTINEL,
			}, nil
		}
	}

	// A well-formed chain always ends with the sentinel; this is the
	// backstop for a misconfigured one.
	return &domain.Resolution{
		Identity: identity,
		Tier:     r.assayConfig.SentinelTier(),
		Source:   domain.SOURCE_SENTINEL,
	}, nil
}

// latestText returns the most recent interpretation commentary under the
// scope, walking the same fallback stages as classification. No text is not
// an error.
func (r *Resolver) latestText(ctx context.Context, gene, identity string, scope domain.Scope) (string, error) {
	texts, err := r.annotations.QueryTexts(ctx, gene, identity)
	if err != nil {
		return "", fmt.Errorf("querying texts for %s %s: %w", gene, identity, err)
	}

	for _, stage := range r.assayConfig.FallbackChain(scope) {
		if stage == domain.SOURCE_SENTINEL {
			break
		}
		var best *domain.TextRecord
		for _, t := range texts {
			if !textInStage(t, scope, stage) {
				continue
			}
			if best == nil || t.CreatedAt.After(best.CreatedAt) {
				best = t
			}
		}
		if best != nil {
			return best.Text, nil
		}
	}

	return "", nil
}

// latestClassification selects the max-timestamp record surviving the stage
// predicate. Last writer wins; concurrent classifications are not merged.
func latestClassification(records []*domain.ClassificationRecord, scope domain.Scope, stage domain.ResolutionSource) *domain.ClassificationRecord {
	var best *domain.ClassificationRecord
	for _, rec := range records {
		if !classificationInStage(rec, scope, stage) {
			continue
		}
		if best == nil || rec.CreatedAt.After(best.CreatedAt) {
			best = rec
		}
	}
	return best
}

func classificationInStage(rec *domain.ClassificationRecord, scope domain.Scope, stage domain.ResolutionSource) bool {
	return scopeStageMatch(rec.Assay, rec.Subpanel, scope, stage)
}

func textInStage(rec *domain.TextRecord, scope domain.Scope, stage domain.ResolutionSource) bool {
	return scopeStageMatch(rec.Assay, rec.Subpanel, scope, stage)
}

// scopeStageMatch is the scope predicate for one fallback stage. Under
// subpanel scoping the assay stage only admits assay-level records (empty
// subpanel): a record classified under subpanel A must never resolve for a
// query under subpanel B. Assay-only scopes ignore subpanels entirely.
func scopeStageMatch(recAssay, recSubpanel string, scope domain.Scope, stage domain.ResolutionSource) bool {
	if recAssay != scope.Assay {
		return false
	}
	switch stage {
	case domain.SOURCE_SUBPANEL:
		return recSubpanel == scope.Subpanel
	case domain.SOURCE_ASSAY:
		if scope.Mode == domain.SCOPE_ASSAY_SUBPANEL {
			return recSubpanel == ""
		}
		return true
	default:
		return false
	}
}
