package service

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/sample-interp-server/internal/domain"
)

// ReportPayload is the rendered report content. It deliberately carries no
// render-time timestamps: preview and save must produce byte-identical
// output for identical inputs.
type ReportPayload struct {
	SampleID   uuid.UUID        `json:"sample_id"`
	SampleName string           `json:"sample_name"`
	Assay      string           `json:"assay"`
	Subpanel   string           `json:"subpanel,omitempty"`
	Profile    string           `json:"profile,omitempty"`
	Findings   []ReportedResult `json:"findings"`
}

// ReportedResult is one interpreted finding in the rendered report
type ReportedResult struct {
	FindingID       uuid.UUID               `json:"finding_id"`
	Kind            domain.FindingKind      `json:"kind"`
	GeneSymbol      string                  `json:"gene_symbol"`
	Identity        string                  `json:"identity"`
	Tier            int                     `json:"tier"`
	Source          domain.ResolutionSource `json:"source"`
	Interpretation  string                  `json:"interpretation,omitempty"`
	AlternativeTier *int                    `json:"alternative_tier,omitempty"`
}

// BuildPayload renders the report content from a sample, its selected
// findings, and their resolved classifications. Preview and save both call
// this one function; the preview/save parity invariant depends on there
// being exactly one builder.
func BuildPayload(sample *domain.Sample, findings []*domain.Finding, resolutions map[uuid.UUID]*domain.Resolution) ([]byte, error) {
	payload := ReportPayload{
		SampleID:   sample.ID,
		SampleName: sample.Name,
		Assay:      sample.Assay,
		Subpanel:   sample.Subpanel,
		Profile:    sample.Profile,
		Findings:   make([]ReportedResult, 0, len(findings)),
	}

	for _, f := range findings {
		res, ok := resolutions[f.ID]
		if !ok {
			return nil, fmt.Errorf("missing resolution for finding %s", f.ID)
		}
		result := ReportedResult{
			FindingID:      f.ID,
			Kind:           f.Kind,
			GeneSymbol:     f.GeneSymbol,
			Identity:       res.Identity,
			Tier:           res.Tier,
			Source:         res.Source,
			Interpretation: res.Text,
		}
		if res.Alternative != nil {
			tier := res.Alternative.Tier
			result.AlternativeTier = &tier
		}
		payload.Findings = append(payload.Findings, result)
	}

	// Stable ordering regardless of query order
	sort.Slice(payload.Findings, func(i, j int) bool {
		a, b := payload.Findings[i], payload.Findings[j]
		if a.GeneSymbol != b.GeneSymbol {
			return a.GeneSymbol < b.GeneSymbol
		}
		if a.Identity != b.Identity {
			return a.Identity < b.Identity
		}
		return a.FindingID.String() < b.FindingID.String()
	})

	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rendering report payload: %w", err)
	}
	return content, nil
}
