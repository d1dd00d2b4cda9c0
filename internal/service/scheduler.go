package service

import (
	"context"
	"time"

	"github.com/uwscope/scope-web-sub000/internal/calendar"
	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/model"
	"github.com/uwscope/scope-web-sub000/internal/repository"
)

// Scheduler derives the rule of a schedule document and reconciles it.
type Scheduler struct {
	reconciler *ScheduleReconciler
	settings   ScheduleSettings
	clock      Clock
}

func NewScheduler(reconciler *ScheduleReconciler, settings ScheduleSettings, clock Clock) *Scheduler {
	return &Scheduler{reconciler: reconciler, settings: settings, clock: clock}
}

func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// SyncActivitySchedule reconciles one activity schedule. Deleted schedules
// and schedules of missing or inactive activities get no future occurrences.
func (s *Scheduler) SyncActivitySchedule(ctx context.Context, store *repository.DocumentStore, schedule model.Document, now time.Time, deleteExisting bool) (ReconcileResult, error) {
	rule, err := s.activityScheduleRule(ctx, store, schedule)
	if err != nil {
		return ReconcileResult{}, err
	}
	return s.reconciler.Reconcile(ctx, store, ActivityScheduleTarget(schedule.SetID), rule, now, deleteExisting)
}

func (s *Scheduler) activityScheduleRule(ctx context.Context, store *repository.DocumentStore, schedule model.Document) (*calendar.Rule, error) {
	if schedule.Deleted {
		return nil, nil
	}
	var entity model.ActivitySchedule
	if err := schedule.Decode(&entity); err != nil {
		return nil, err
	}
	activityDoc, err := liveDocument(ctx, store, model.Element(model.TypeActivity, entity.ActivityID))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var activity model.Activity
	if err := activityDoc.Decode(&activity); err != nil {
		return nil, err
	}
	if !activity.Active() {
		return nil, nil
	}
	rule, err := ActivityScheduleRule(entity)
	if err != nil {
		return nil, errs.InvalidArgument("schedule %s: %v", schedule.SetID, err)
	}
	return &rule, nil
}

// SyncActivity reconciles every live schedule of an activity.
func (s *Scheduler) SyncActivity(ctx context.Context, store *repository.DocumentStore, activityID string, now time.Time) (ReconcileResult, error) {
	schedules, err := store.GetAllCurrentMatching(ctx, model.TypeActivitySchedule, map[string]string{"activityId": activityID})
	if err != nil {
		return ReconcileResult{}, err
	}
	var total ReconcileResult
	for _, schedule := range schedules.Documents() {
		res, err := s.SyncActivitySchedule(ctx, store, schedule, now, true)
		total.add(res)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// SyncAssessment reconciles one assessment. Only assigned, live
// assessments have occurrences.
func (s *Scheduler) SyncAssessment(ctx context.Context, store *repository.DocumentStore, assessment model.Document, now time.Time, deleteExisting bool) (ReconcileResult, error) {
	var rule *calendar.Rule
	if !assessment.Deleted {
		var entity model.Assessment
		if err := assessment.Decode(&entity); err != nil {
			return ReconcileResult{}, err
		}
		if entity.Assigned {
			r, err := AssessmentRule(entity, now, s.settings)
			if err != nil {
				return ReconcileResult{}, errs.InvalidArgument("assessment %s: %v", assessment.SetID, err)
			}
			rule = &r
		}
	}
	return s.reconciler.Reconcile(ctx, store, AssessmentTarget(assessment.SetID), rule, now, deleteExisting)
}
