package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uwscope/scope-web-sub000/internal/calendar"
	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/model"
	"github.com/uwscope/scope-web-sub000/internal/repository"
	"github.com/uwscope/scope-web-sub000/internal/service"
)

func storeOccurrence(t *testing.T, store *repository.DocumentStore, ownerID string, due time.Time, completed bool) model.Document {
	t.Helper()
	item := model.ScheduledItem{
		DueDate:      calendar.DateOf(due).String(),
		DueTimeOfDay: due.Hour(),
		DueDateTime:  due,
		Completed:    completed,
	}
	if completed {
		item.CompletedDateTime = &due
	}
	body, err := model.BodyFrom(model.ScheduledActivity{ActivityScheduleID: ownerID, ScheduledItem: item})
	require.NoError(t, err)
	doc, err := store.Create(context.Background(), model.TypeScheduledActivity, body)
	require.NoError(t, err)
	return doc
}

func newReconciler(t *testing.T, loc *time.Location) *service.ScheduleReconciler {
	return service.NewScheduleReconciler(
		service.ScheduleSettings{Location: loc, HorizonMonths: 3},
		service.NewSnapshotBuilder(), nil, nil,
	)
}

func TestReconcileDeletesOnlyFutureUncompleted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	store := e.stores.Store(patient)

	pastA := storeOccurrence(t, store, "X", time.Date(2022, 3, 12, 16, 0, 0, 0, time.UTC), false)
	pastB := storeOccurrence(t, store, "X", time.Date(2022, 3, 13, 8, 0, 0, 0, time.UTC), false)
	futureA := storeOccurrence(t, store, "X", time.Date(2022, 3, 13, 16, 0, 0, 0, time.UTC), false)
	done := storeOccurrence(t, store, "X", time.Date(2022, 4, 1, 4, 0, 0, 0, time.UTC), true)
	futureB := storeOccurrence(t, store, "X", time.Date(2022, 4, 1, 4, 0, 0, 0, time.UTC), false)
	other := storeOccurrence(t, store, "Y", time.Date(2022, 4, 1, 4, 0, 0, 0, time.UTC), false)

	res, err := newReconciler(t, time.UTC).Reconcile(ctx, store, service.ActivityScheduleTarget("X"), nil,
		time.Date(2022, 3, 13, 12, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)
	assert.Equal(t, service.ReconcileResult{Deleted: 2}, res)

	for _, doc := range []model.Document{futureA, futureB} {
		current, err := store.GetCurrent(ctx, doc.Identity())
		require.NoError(t, err)
		assert.True(t, current.Deleted, "%s should be deleted", doc.Identity())
	}
	for _, doc := range []model.Document{pastA, pastB, done, other} {
		current, err := store.GetCurrent(ctx, doc.Identity())
		require.NoError(t, err)
		assert.Equal(t, 1, current.Rev, "%s should be untouched", doc.Identity())
	}
}

func TestReconcileWithoutDeleteExistingOnlyCreates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	store := e.stores.Store(patient)
	storeOccurrence(t, store, "X", time.Date(2022, 3, 15, 8, 0, 0, 0, time.UTC), false)

	rule := calendar.Rule{StartDate: calendar.Date{Year: 2022, Month: time.March, Day: 15}, DueTimeOfDay: 9}
	target := service.AssessmentTarget("X")
	res, err := newReconciler(t, time.UTC).Reconcile(ctx, store, target, &rule, mondayMorning, false)
	require.NoError(t, err)
	assert.Equal(t, service.ReconcileResult{Created: 1}, res)

	created, err := store.GetAllCurrentMatching(ctx, model.TypeScheduledAssessment, map[string]string{"assessmentId": "X"})
	require.NoError(t, err)
	require.Equal(t, 1, created.Len())
	var sa model.ScheduledAssessment
	require.NoError(t, created.Documents()[0].Decode(&sa))
	assert.Equal(t, "2022-03-15", sa.DueDate)
	assert.Equal(t, time.Date(2022, 3, 15, 9, 0, 0, 0, time.UTC), sa.DueDateTime.UTC())
}

func TestReconcileRefusesMismatchedDerivedFields(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	store := e.stores.Store(patient)

	// Stored as if 08:00 were UTC; the rule puts 08:00 in Los Angeles.
	stale := storeOccurrence(t, store, "X", time.Date(2022, 3, 15, 8, 0, 0, 0, time.UTC), false)
	rule := calendar.Rule{StartDate: calendar.Date{Year: 2022, Month: time.March, Day: 15}, DueTimeOfDay: 8}

	_, err := newReconciler(t, losAngeles(t)).Reconcile(ctx, store, service.ActivityScheduleTarget("X"), &rule, mondayMorning, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))

	current, err := store.GetCurrent(ctx, stale.Identity())
	require.NoError(t, err)
	assert.Equal(t, 1, current.Rev)
	all, err := store.GetAllCurrent(ctx, model.TypeScheduledActivity)
	require.NoError(t, err)
	assert.Equal(t, 1, all.Len())
}
