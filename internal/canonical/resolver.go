package canonical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"partlogic/searchservice/internal/domain"
	"partlogic/searchservice/internal/metrics"
)

// Confidence bands for alias resolution. An alias is only linked to a
// vehicle once its confidence reaches LinkThreshold; below that it is
// stored unlinked and picked up later by reconciliation.
const (
	LinkThreshold = 85

	confidenceMakeOnly  = 30
	confidenceMakeModel = 60
	confidenceFullParse = 85
	confidenceExisting  = 90
)

// Resolver turns free-text vehicle descriptions into canonical vehicle
// links. Linking is monotonic and alias text is write-once, so repeated
// resolutions of the same string are idempotent.
type Resolver struct {
	store  *Store
	logger *slog.Logger
}

func NewResolver(store *Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// ResolveVehicleAlias resolves one alias string from a source domain.
//
// Resolution order: an already-linked alias wins outright; then a full
// parse against an existing vehicle; then a full parse that creates the
// vehicle; anything weaker is recorded unlinked with its partial
// confidence.
func (r *Resolver) ResolveVehicleAlias(ctx context.Context, aliasText, sourceDomain string) (domain.AliasResolution, error) {
	aliasText = strings.TrimSpace(aliasText)
	if aliasText == "" {
		return domain.AliasResolution{}, errors.New("alias text is required")
	}
	norm := NormalizeAliasText(aliasText)
	sourceDomain = strings.ToLower(strings.TrimSpace(sourceDomain))

	if existing, err := r.store.GetAlias(ctx, norm, sourceDomain); err == nil {
		resolution := domain.AliasResolution{Alias: existing, ConfigID: existing.ConfigID, Confidence: existing.Confidence}
		if existing.Linked() {
			vehicle, err := r.store.GetVehicle(ctx, *existing.VehicleID)
			if err == nil {
				resolution.Vehicle = &vehicle
			}
			return resolution, nil
		}
		// Known but unlinked: try again, the parse may succeed now that
		// more vehicles exist.
		return r.tryLink(ctx, existing, "retry")
	} else if !errors.Is(err, ErrNotFound) {
		return domain.AliasResolution{}, err
	}

	parsed := ParseVehicleLoose(aliasText)
	confidence := parseConfidence(parsed)

	alias := domain.VehicleAlias{
		AliasText:    aliasText,
		AliasNorm:    norm,
		SourceDomain: sourceDomain,
		Confidence:   confidence,
	}
	created, isNew, err := r.store.CreateAlias(ctx, alias)
	if err != nil {
		return domain.AliasResolution{}, err
	}
	if !isNew && created.Linked() {
		vehicle, err := r.store.GetVehicle(ctx, *created.VehicleID)
		resolution := domain.AliasResolution{Alias: created, Confidence: created.Confidence}
		if err == nil {
			resolution.Vehicle = &vehicle
		}
		return resolution, nil
	}

	resolution, err := r.tryLink(ctx, created, "parse")
	if err != nil {
		return domain.AliasResolution{}, err
	}
	resolution.Created = isNew
	return resolution, nil
}

// tryLink attempts to attach an unlinked alias to a vehicle, creating
// the vehicle when the parse is complete.
func (r *Resolver) tryLink(ctx context.Context, alias domain.VehicleAlias, path string) (domain.AliasResolution, error) {
	resolution := domain.AliasResolution{Alias: alias, Confidence: alias.Confidence}

	parsed := ParseVehicleLoose(alias.AliasText)
	confidence := parseConfidence(parsed)
	if confidence > resolution.Confidence {
		resolution.Confidence = confidence
	}
	if !parsed.Complete() || confidence < LinkThreshold {
		return resolution, nil
	}

	vehicle, err := r.store.FindVehicle(ctx, parsed.Make, parsed.Model, parsed.Year, parsed.Trim)
	switch {
	case err == nil:
		confidence = confidenceExisting
	case errors.Is(err, ErrNotFound):
		vehicle, err = r.store.CreateVehicle(ctx, domain.Vehicle{
			Make:  parsed.Make,
			Model: parsed.Model,
			Year:  parsed.Year,
			Trim:  parsed.Trim,
		})
		if err != nil {
			return resolution, fmt.Errorf("create vehicle: %w", err)
		}
	default:
		return resolution, err
	}

	// Free-text parses never yield a build configuration; the config
	// link stays empty until set manually.
	if err := r.store.LinkAlias(ctx, alias.ID, vehicle.ID, nil, confidence); err != nil {
		if errors.Is(err, ErrAlreadyExist) {
			// Lost a race; reload what won.
			reloaded, loadErr := r.store.GetAliasByID(ctx, alias.ID)
			if loadErr == nil {
				resolution.Alias = reloaded
				resolution.ConfigID = reloaded.ConfigID
				resolution.Confidence = reloaded.Confidence
				if reloaded.Linked() {
					if v, vErr := r.store.GetVehicle(ctx, *reloaded.VehicleID); vErr == nil {
						resolution.Vehicle = &v
					}
				}
			}
			return resolution, nil
		}
		return resolution, err
	}

	metrics.AliasesLinkedTotal.WithLabelValues(path).Inc()
	r.logger.Debug("vehicle alias linked",
		"alias", alias.AliasText, "vehicle_id", vehicle.ID, "confidence", confidence)

	vehicleID := vehicle.ID
	resolution.Alias.VehicleID = &vehicleID
	resolution.Alias.Confidence = confidence
	resolution.Vehicle = &vehicle
	resolution.LinkedNow = true
	resolution.Confidence = confidence
	return resolution, nil
}

// ReconcileUnlinkedAliases retries resolution for the unlinked backlog,
// oldest first. Returns how many aliases got linked.
func (r *Resolver) ReconcileUnlinkedAliases(ctx context.Context, limit int) (int, error) {
	aliases, err := r.store.ListUnlinkedAliases(ctx, limit)
	if err != nil {
		return 0, err
	}

	linked := 0
	for _, alias := range aliases {
		select {
		case <-ctx.Done():
			return linked, ctx.Err()
		default:
		}
		resolution, err := r.tryLink(ctx, alias, "reconcile")
		if err != nil {
			r.logger.Warn("alias reconcile failed", "alias_id", alias.ID, "error", err)
			continue
		}
		if resolution.LinkedNow {
			linked++
		}
	}
	if linked > 0 {
		r.logger.Info("alias reconciliation pass finished",
			"examined", len(aliases), "linked", linked)
	}
	return linked, nil
}

// RunReconciler periodically works the unlinked alias backlog.
func (r *Resolver) RunReconciler(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileUnlinkedAliases(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("alias reconciliation failed", "error", err)
			}
		}
	}
}

func parseConfidence(parsed ParsedVehicle) int {
	switch {
	case parsed.Complete():
		return confidenceFullParse
	case parsed.Make != "" && parsed.Model != "":
		return confidenceMakeModel
	case parsed.Make != "":
		return confidenceMakeOnly
	default:
		return 0
	}
}
