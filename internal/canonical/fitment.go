package canonical

import (
	"context"
	"sort"
	"strings"

	"partlogic/searchservice/internal/domain"
)

// fitmentConfirmedThreshold separates a confirmed fit from a likely one.
const fitmentConfirmedThreshold = 80

// CheckFitment reports whether a part number fits a vehicle based on
// stored fitment records. No records at all means no_data, never no.
func (s *Store) CheckFitment(ctx context.Context, partNumber string, vehicleID int64) (domain.FitmentCheck, error) {
	fitments, err := s.FitmentsFor(ctx, partNumber, vehicleID)
	if err != nil {
		return domain.FitmentCheck{}, err
	}
	if len(fitments) == 0 {
		return domain.FitmentCheck{Status: domain.FitmentNoData}, nil
	}

	best := 0
	qualifiers := make([]string, 0, len(fitments))
	seen := make(map[string]struct{})
	for _, fitment := range fitments {
		if fitment.Confidence > best {
			best = fitment.Confidence
		}
		qualifier := strings.TrimSpace(fitment.Qualifiers)
		if qualifier == "" {
			continue
		}
		if _, dup := seen[qualifier]; dup {
			continue
		}
		seen[qualifier] = struct{}{}
		qualifiers = append(qualifiers, qualifier)
	}
	sort.Strings(qualifiers)

	// Rows with zero confidence carry qualifiers but prove nothing.
	status := domain.FitmentNoData
	switch {
	case best >= fitmentConfirmedThreshold:
		status = domain.FitmentConfirmed
	case best > 0:
		status = domain.FitmentLikely
	}
	return domain.FitmentCheck{
		Status:     status,
		Confidence: best,
		Qualifiers: qualifiers,
		Fitments:   fitments,
	}, nil
}
