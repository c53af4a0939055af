package domain

import (
	"fmt"
	"strings"
)

// ResolveIdentity derives the canonical matching key for a finding in strict
// priority order: protein change, then coding change, then the genomic
// coordinate composite. First match wins, no merging. Every well-formed
// finding has at least genomic coordinates, so the function is total.
//
// Protein-level identity is the most clinically stable key and the most
// likely to recur across samples; the fallbacks keep intronic and structural
// events matchable.
func ResolveIdentity(f *Finding) string {
	if p := strings.TrimSpace(f.HGVSp); p != "" {
		return p
	}
	if c := strings.TrimSpace(f.HGVSc); c != "" {
		return c
	}
	return GenomicIdentity(f)
}

// GenomicIdentity returns the CHR:POS:REF/ALT composite for a finding.
func GenomicIdentity(f *Finding) string {
	return fmt.Sprintf("%s:%d:%s/%s", f.Chromosome, f.Position, f.Reference, f.Alternative)
}

// AlternativeIdentity returns a transcript-qualified coding identity when the
// finding carries both a transcript and a coding change and the primary
// identity resolved at a different level. Empty string means no alternative
// lookup applies.
func AlternativeIdentity(f *Finding) string {
	t := strings.TrimSpace(f.TranscriptID)
	c := strings.TrimSpace(f.HGVSc)
	if t == "" || c == "" {
		return ""
	}
	alt := t + ":" + c
	if alt == ResolveIdentity(f) {
		return ""
	}
	return alt
}
