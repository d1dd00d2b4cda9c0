package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/uwscope/scope-web-sub000/internal/calendar"
	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/logger"
	"github.com/uwscope/scope-web-sub000/internal/metrics"
	"github.com/uwscope/scope-web-sub000/internal/model"
	"github.com/uwscope/scope-web-sub000/internal/repository"
)

const tracerName = "github.com/uwscope/scope-web-sub000/internal/service"

// Target names the occurrences owned by one schedule: documents of
// OccurrenceType whose OwnerField equals OwnerID.
type Target struct {
	OccurrenceType string
	OwnerField     string
	OwnerID        string
}

func ActivityScheduleTarget(activityScheduleID string) Target {
	return Target{
		OccurrenceType: model.TypeScheduledActivity,
		OwnerField:     "activityScheduleId",
		OwnerID:        activityScheduleID,
	}
}

func AssessmentTarget(assessmentID string) Target {
	return Target{
		OccurrenceType: model.TypeScheduledAssessment,
		OwnerField:     "assessmentId",
		OwnerID:        assessmentID,
	}
}

type ReconcileResult struct {
	Kept    int
	Deleted int
	Created int
}

func (r *ReconcileResult) add(o ReconcileResult) {
	r.Kept += o.Kept
	r.Deleted += o.Deleted
	r.Created += o.Created
}

// ScheduleReconciler brings the stored future occurrences of a schedule in
// line with what its rule expands to.
type ScheduleReconciler struct {
	settings  ScheduleSettings
	snapshots *SnapshotBuilder
	log       *logger.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func NewScheduleReconciler(settings ScheduleSettings, snapshots *SnapshotBuilder, log *logger.Logger, m *metrics.Metrics) *ScheduleReconciler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ScheduleReconciler{
		settings:  settings,
		snapshots: snapshots,
		log:       log.With("component", "reconciler"),
		metrics:   m,
		tracer:    otel.Tracer(tracerName),
	}
}

type pendingOccurrence struct {
	doc  model.Document
	item model.ScheduledItem
}

// Reconcile compares the pending occurrences of target (due after
// maintenance and not completed, read only when deleteExisting) with the
// occurrences rule expands to after maintenance. Matching pairs are kept,
// leftover pending ones are soft-deleted and leftover desired ones created.
// A nil rule means the schedule should have no future occurrences.
// Nothing is written when a matched pair disagrees on derived fields.
func (r *ScheduleReconciler) Reconcile(
	ctx context.Context,
	store *repository.DocumentStore,
	target Target,
	rule *calendar.Rule,
	maintenance time.Time,
	deleteExisting bool,
) (result ReconcileResult, err error) {
	ctx, span := r.tracer.Start(ctx, "ScheduleReconciler.Reconcile", trace.WithAttributes(
		attribute.String("occurrence.type", target.OccurrenceType),
		attribute.String("occurrence.owner", target.OwnerID),
		attribute.Bool("reconcile.delete_existing", deleteExisting),
	))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.Int("reconcile.kept", result.Kept),
			attribute.Int("reconcile.deleted", result.Deleted),
			attribute.Int("reconcile.created", result.Created),
		)
		span.End()
		r.metrics.ObserveReconcile(target.OccurrenceType, outcome, result.Kept, result.Deleted, result.Created, start)
	}()

	maintenance = maintenance.UTC()

	var pending []pendingOccurrence
	if deleteExisting {
		pending, err = r.pending(ctx, store, target, maintenance)
		if err != nil {
			return ReconcileResult{}, err
		}
	}

	var desired []calendar.Occurrence
	if rule != nil {
		occs, err := calendar.Expand(*rule, maintenance, r.settings.expandOptions())
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
		}
		for _, occ := range occs {
			if occ.DueDateTime.After(maintenance) {
				desired = append(desired, occ)
			}
		}
	}

	toDelete, toCreate, kept, err := diff(pending, desired)
	if err != nil {
		return ReconcileResult{}, err
	}
	result.Kept = kept

	for _, doc := range toDelete {
		basis := doc.Rev
		if _, err := store.SoftDelete(ctx, doc.Identity(), &basis); err != nil {
			return result, fmt.Errorf("delete occurrence %s: %w", doc.Identity(), err)
		}
		result.Deleted++
	}

	if len(toCreate) > 0 {
		build, err := r.bodyBuilder(ctx, store, target)
		if err != nil {
			return result, err
		}
		for _, occ := range toCreate {
			body, err := build(occ)
			if err != nil {
				return result, err
			}
			if _, err := store.Create(ctx, target.OccurrenceType, body); err != nil {
				return result, fmt.Errorf("create occurrence of %s on %s: %w", target.OwnerID, occ.DueDate, err)
			}
			result.Created++
		}
	}

	r.log.Info("schedule reconciled",
		"collection", store.Collection(),
		"type", target.OccurrenceType,
		"owner", target.OwnerID,
		"kept", result.Kept,
		"deleted", result.Deleted,
		"created", result.Created,
	)
	return result, nil
}

func (r *ScheduleReconciler) pending(ctx context.Context, store *repository.DocumentStore, target Target, maintenance time.Time) ([]pendingOccurrence, error) {
	current, err := store.GetAllCurrentMatching(ctx, target.OccurrenceType, map[string]string{target.OwnerField: target.OwnerID})
	if err != nil {
		return nil, err
	}
	var pending []pendingOccurrence
	for _, doc := range current.Documents() {
		var item model.ScheduledItem
		if err := doc.Decode(&item); err != nil {
			return nil, &errs.IntegrityError{Reason: fmt.Sprintf("occurrence %s is unreadable: %v", doc.Identity(), err)}
		}
		if item.Completed || !item.DueDateTime.After(maintenance) {
			continue
		}
		pending = append(pending, pendingOccurrence{doc: doc, item: item})
	}
	return pending, nil
}

// diff pairs pending and desired occurrences on (dueDate, dueTimeOfDay,
// reminder). It returns the pending documents to delete and the desired
// occurrences to create.
func diff(pending []pendingOccurrence, desired []calendar.Occurrence) ([]model.Document, []calendar.Occurrence, int, error) {
	matched := make([]bool, len(pending))
	var toCreate []calendar.Occurrence
	kept := 0

	for _, occ := range desired {
		idx := -1
		for i, p := range pending {
			if !matched[i] && sameKey(p.item, occ) {
				idx = i
				break
			}
		}
		if idx < 0 {
			toCreate = append(toCreate, occ)
			continue
		}
		if err := sameDerived(pending[idx], occ); err != nil {
			return nil, nil, 0, err
		}
		matched[idx] = true
		kept++
	}

	var toDelete []model.Document
	for i, p := range pending {
		if !matched[i] {
			toDelete = append(toDelete, p.doc)
		}
	}
	return toDelete, toCreate, kept, nil
}

func sameKey(item model.ScheduledItem, occ calendar.Occurrence) bool {
	if item.DueDate != occ.DueDate.String() || item.DueTimeOfDay != occ.DueTimeOfDay {
		return false
	}
	hasReminder := item.ReminderTimeOfDay != nil
	if hasReminder != occ.HasReminder {
		return false
	}
	return !hasReminder || *item.ReminderTimeOfDay == occ.ReminderTimeOfDay
}

func sameDerived(p pendingOccurrence, occ calendar.Occurrence) error {
	want := scheduledItem(occ)
	if !p.item.DueDateTime.Equal(want.DueDateTime) {
		return &errs.IntegrityError{Reason: fmt.Sprintf(
			"occurrence %s on %s is due at %s, schedule says %s",
			p.doc.Identity(), p.item.DueDate, p.item.DueDateTime.Format(time.RFC3339), want.DueDateTime.Format(time.RFC3339),
		)}
	}
	if p.item.ReminderDate != want.ReminderDate {
		return &errs.IntegrityError{Reason: fmt.Sprintf(
			"occurrence %s has reminder date %q, schedule says %q", p.doc.Identity(), p.item.ReminderDate, want.ReminderDate,
		)}
	}
	switch {
	case p.item.ReminderDateTime == nil && want.ReminderDateTime == nil:
	case p.item.ReminderDateTime == nil || want.ReminderDateTime == nil || !p.item.ReminderDateTime.Equal(*want.ReminderDateTime):
		return &errs.IntegrityError{Reason: fmt.Sprintf("occurrence %s has a different reminder time", p.doc.Identity())}
	}
	return nil
}

// bodyBuilder returns the constructor of new occurrence bodies for target.
// Scheduled activities share one snapshot taken before the first create.
func (r *ScheduleReconciler) bodyBuilder(ctx context.Context, store *repository.DocumentStore, target Target) (func(calendar.Occurrence) (map[string]any, error), error) {
	switch target.OccurrenceType {
	case model.TypeScheduledActivity:
		snapshot, err := r.snapshots.Build(ctx, store, target.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("snapshot of %s: %w", target.OwnerID, err)
		}
		return func(occ calendar.Occurrence) (map[string]any, error) {
			return model.BodyFrom(model.ScheduledActivity{
				ActivityScheduleID: target.OwnerID,
				ScheduledItem:      scheduledItem(occ),
				DataSnapshot:       snapshot,
			})
		}, nil
	case model.TypeScheduledAssessment:
		return func(occ calendar.Occurrence) (map[string]any, error) {
			return model.BodyFrom(model.ScheduledAssessment{
				AssessmentID:  target.OwnerID,
				ScheduledItem: scheduledItem(occ),
			})
		}, nil
	default:
		return nil, errs.InvalidArgument("cannot reconcile occurrences of type %q", target.OccurrenceType)
	}
}
