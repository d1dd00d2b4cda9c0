package service

import (
	"context"

	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/model"
	"github.com/uwscope/scope-web-sub000/internal/repository"
)

// SnapshotBuilder copies the documents an occurrence derives from.
type SnapshotBuilder struct{}

func NewSnapshotBuilder() *SnapshotBuilder { return &SnapshotBuilder{} }

// Build returns the current schedule, its activity and, when the activity
// references a live value, that value.
func (b *SnapshotBuilder) Build(ctx context.Context, store *repository.DocumentStore, activityScheduleID string) (*model.Snapshot, error) {
	scheduleDoc, err := liveDocument(ctx, store, model.Element(model.TypeActivitySchedule, activityScheduleID))
	if err != nil {
		return nil, err
	}
	var schedule model.ActivitySchedule
	if err := scheduleDoc.Decode(&schedule); err != nil {
		return nil, err
	}
	activityDoc, err := liveDocument(ctx, store, model.Element(model.TypeActivity, schedule.ActivityID))
	if err != nil {
		return nil, err
	}
	var activity model.Activity
	if err := activityDoc.Decode(&activity); err != nil {
		return nil, err
	}

	snapshot := &model.Snapshot{
		ActivitySchedule: scheduleDoc.Map(),
		Activity:         activityDoc.Map(),
	}
	if activity.ValueID != "" {
		valueDoc, err := liveDocument(ctx, store, model.Element(model.TypeValue, activity.ValueID))
		switch {
		case err == nil:
			snapshot.Value = valueDoc.Map()
		case !isNotFound(err):
			return nil, err
		}
	}
	return snapshot, nil
}

// Rebuild computes a fresh snapshot for a stored occurrence.
func (b *SnapshotBuilder) Rebuild(ctx context.Context, store *repository.DocumentStore, occurrence model.Document) (*model.Snapshot, error) {
	var sa model.ScheduledActivity
	if err := occurrence.Decode(&sa); err != nil {
		return nil, err
	}
	if sa.ActivityScheduleID == "" {
		return nil, errs.InvalidArgument("%s has no activityScheduleId", occurrence.Identity())
	}
	return b.Build(ctx, store, sa.ActivityScheduleID)
}

func liveDocument(ctx context.Context, store *repository.DocumentStore, id model.Identity) (model.Document, error) {
	doc, err := store.GetCurrent(ctx, id)
	if err != nil {
		return model.Document{}, err
	}
	if doc == nil || doc.Deleted {
		return model.Document{}, errs.NotFound(id)
	}
	return *doc, nil
}
