package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/uwscope/scope-web-sub000/internal/model"
)

type MaintenanceReport struct {
	Collection  string
	Schedules   int
	Assessments int
	Failed      int
	ReconcileResult
}

// Maintain re-reconciles every live activity schedule and assessment of a
// collection at the current instant, extending the rolling horizon. A
// schedule that fails does not stop the others; the failures are joined.
func (r *Records) Maintain(ctx context.Context, collection string) (MaintenanceReport, error) {
	report := MaintenanceReport{Collection: collection}
	store := r.stores.Store(collection)
	now := r.scheduler.Now()
	var failures []error

	schedules, err := store.GetAllCurrent(ctx, model.TypeActivitySchedule)
	if err != nil {
		return report, err
	}
	for _, schedule := range schedules.Documents() {
		res, err := r.scheduler.SyncActivitySchedule(ctx, store, schedule, now, true)
		report.add(res)
		if err != nil {
			report.Failed++
			failures = append(failures, fmt.Errorf("maintain schedule %s: %w", schedule.SetID, err))
			continue
		}
		report.Schedules++
	}

	assessments, err := store.GetAllCurrent(ctx, model.TypeAssessment)
	if err != nil {
		return report, errors.Join(append(failures, err)...)
	}
	for _, assessment := range assessments.Documents() {
		res, err := r.scheduler.SyncAssessment(ctx, store, assessment, now, true)
		report.add(res)
		if err != nil {
			report.Failed++
			failures = append(failures, fmt.Errorf("maintain assessment %s: %w", assessment.SetID, err))
			continue
		}
		report.Assessments++
	}

	r.metrics.IncrementMaintained(report.Schedules + report.Assessments)
	log := r.log.Info
	if report.Failed > 0 {
		log = r.log.Warn
	}
	log("collection maintained",
		"collection", collection,
		"schedules", report.Schedules,
		"assessments", report.Assessments,
		"failed", report.Failed,
		"kept", report.Kept,
		"deleted", report.Deleted,
		"created", report.Created,
	)
	return report, errors.Join(failures...)
}
