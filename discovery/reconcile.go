package discovery

import (
	"context"
	"errors"

	"github.com/healthfees-org/cloudflare-backstage.io/catalog"
	"github.com/healthfees-org/cloudflare-backstage.io/tracing"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Reconciler submits the full entity set of a run to the catalog
type Reconciler struct {
	Applier catalog.Applier
}

// Reconcile replaces everything the catalog holds under locationKey with
// entities. It always sends the complete set, never a diff, so an empty
// slice removes every entity previously submitted under the key.
func (r *Reconciler) Reconcile(ctx context.Context, entities []catalog.Entity, locationKey string) (catalog.ApplyStats, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Reconciler.Reconcile", trace.WithAttributes(
		attribute.String("cf.reconcile.locationKey", locationKey),
		attribute.Int("cf.reconcile.entities", len(entities)),
	))
	defer span.End()

	if r.Applier == nil {
		err := &ReconciliationFailure{LocationKey: locationKey, Err: errors.New("no catalog sink configured")}
		span.SetStatus(codes.Error, err.Error())
		return catalog.ApplyStats{}, err
	}

	stats, err := r.Applier.Apply(ctx, catalog.NewFullMutation(locationKey, entities))
	if err != nil {
		err = &ReconciliationFailure{LocationKey: locationKey, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return catalog.ApplyStats{}, err
	}

	log.WithContext(ctx).WithFields(log.Fields{
		"cf.reconcile.locationKey": locationKey,
		"cf.reconcile.added":       stats.Added,
		"cf.reconcile.updated":     stats.Updated,
		"cf.reconcile.removed":     stats.Removed,
		"cf.reconcile.unchanged":   stats.Unchanged,
		"cf.reconcile.rejected":    stats.Rejected,
	}).Debug("Catalog accepted mutation")

	return stats, nil
}
