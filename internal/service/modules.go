package service

import (
	"context"
	"fmt"

	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/model"
	"github.com/uwscope/scope-web-sub000/internal/repository"
)

type activityHooks struct {
	NoHooks[model.Activity]
	scheduler *Scheduler
}

// Check rejects activities that reference a missing value.
func (h activityHooks) Check(ctx context.Context, store *repository.DocumentStore, a model.Activity) error {
	if a.ValueID == "" {
		return nil
	}
	if _, err := liveDocument(ctx, store, model.Element(model.TypeValue, a.ValueID)); err != nil {
		if isNotFound(err) {
			return errs.InvalidArgument("activity references missing value %s", a.ValueID)
		}
		return err
	}
	return nil
}

// AfterUpdate reconciles the activity's schedules when it was activated or
// deactivated.
func (h activityHooks) AfterUpdate(ctx context.Context, store *repository.DocumentStore, prev *model.Document, next model.Document, a model.Activity) error {
	wasActive := false
	if prev != nil && !prev.Deleted {
		var before model.Activity
		if err := prev.Decode(&before); err != nil {
			return err
		}
		wasActive = before.Active()
	}
	if wasActive == a.Active() {
		return nil
	}
	_, err := h.scheduler.SyncActivity(ctx, store, next.SetID, h.scheduler.Now())
	return err
}

// AfterDelete tombstones the activity's schedules and their pending occurrences.
func (h activityHooks) AfterDelete(ctx context.Context, store *repository.DocumentStore, tomb model.Document, _ model.Activity) error {
	schedules, err := store.GetAllCurrentMatching(ctx, model.TypeActivitySchedule, map[string]string{"activityId": tomb.SetID})
	if err != nil {
		return err
	}
	now := h.scheduler.Now()
	for _, schedule := range schedules.Documents() {
		scheduleTomb, err := store.SoftDelete(ctx, schedule.Identity(), &schedule.Rev)
		if err != nil {
			return fmt.Errorf("delete schedule %s: %w", schedule.SetID, err)
		}
		if _, err := h.scheduler.SyncActivitySchedule(ctx, store, scheduleTomb, now, true); err != nil {
			return err
		}
	}
	return nil
}

type activityScheduleHooks struct {
	NoHooks[model.ActivitySchedule]
	scheduler *Scheduler
}

func (h activityScheduleHooks) Check(ctx context.Context, store *repository.DocumentStore, s model.ActivitySchedule) error {
	if _, err := ActivityScheduleRule(s); err != nil {
		return errs.InvalidArgument("%v", err)
	}
	if _, err := liveDocument(ctx, store, model.Element(model.TypeActivity, s.ActivityID)); err != nil {
		if isNotFound(err) {
			return errs.InvalidArgument("schedule references missing activity %s", s.ActivityID)
		}
		return err
	}
	return nil
}

func (h activityScheduleHooks) AfterCreate(ctx context.Context, store *repository.DocumentStore, doc model.Document, _ model.ActivitySchedule) error {
	_, err := h.scheduler.SyncActivitySchedule(ctx, store, doc, h.scheduler.Now(), false)
	return err
}

func (h activityScheduleHooks) AfterUpdate(ctx context.Context, store *repository.DocumentStore, _ *model.Document, next model.Document, _ model.ActivitySchedule) error {
	_, err := h.scheduler.SyncActivitySchedule(ctx, store, next, h.scheduler.Now(), true)
	return err
}

func (h activityScheduleHooks) AfterDelete(ctx context.Context, store *repository.DocumentStore, tomb model.Document, _ model.ActivitySchedule) error {
	_, err := h.scheduler.SyncActivitySchedule(ctx, store, tomb, h.scheduler.Now(), true)
	return err
}

type assessmentHooks struct {
	NoHooks[model.Assessment]
	scheduler *Scheduler
}

func (h assessmentHooks) AfterCreate(ctx context.Context, store *repository.DocumentStore, doc model.Document, _ model.Assessment) error {
	_, err := h.scheduler.SyncAssessment(ctx, store, doc, h.scheduler.Now(), false)
	return err
}

func (h assessmentHooks) AfterUpdate(ctx context.Context, store *repository.DocumentStore, _ *model.Document, next model.Document, _ model.Assessment) error {
	_, err := h.scheduler.SyncAssessment(ctx, store, next, h.scheduler.Now(), true)
	return err
}

func (h assessmentHooks) AfterDelete(ctx context.Context, store *repository.DocumentStore, tomb model.Document, _ model.Assessment) error {
	_, err := h.scheduler.SyncAssessment(ctx, store, tomb, h.scheduler.Now(), true)
	return err
}

// derivedHandler refuses direct creation of occurrence documents; they are
// only written by reconciliation.
type derivedHandler struct {
	DocumentHandler
}

func (h derivedHandler) Create(context.Context, string, map[string]any) (model.Document, error) {
	return model.Document{}, errs.InvalidArgument("%s documents are created from schedules", h.Kind().Type)
}
