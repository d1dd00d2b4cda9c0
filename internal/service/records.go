package service

import (
	"context"
	"time"

	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/logger"
	"github.com/uwscope/scope-web-sub000/internal/metrics"
	"github.com/uwscope/scope-web-sub000/internal/model"
	"github.com/uwscope/scope-web-sub000/internal/repository"
	"github.com/uwscope/scope-web-sub000/internal/validation"
)

type Dependencies struct {
	Stores    *Stores
	Validator validation.Validator
	Clock     Clock
	Settings  ScheduleSettings
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

// Records wires the entity modules of a patient record.
type Records struct {
	stores    *Stores
	scheduler *Scheduler
	snapshots *SnapshotBuilder
	log       *logger.Logger
	metrics   *metrics.Metrics

	Values               *SetService[model.Value]
	Activities           *SetService[model.Activity]
	ActivitySchedules    *SetService[model.ActivitySchedule]
	ScheduledActivities  *SetService[model.ScheduledActivity]
	Assessments          *SetService[model.Assessment]
	ScheduledAssessments *SetService[model.ScheduledAssessment]

	Profile         *SingletonService[model.Profile]
	ClinicalHistory *SingletonService[model.FreeForm]
	ValuesInventory *SingletonService[model.FreeForm]
	SafetyPlan      *SingletonService[model.FreeForm]

	handlers map[string]DocumentHandler
}

func NewRecords(deps Dependencies) *Records {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}
	snapshots := NewSnapshotBuilder()
	reconciler := NewScheduleReconciler(deps.Settings, snapshots, deps.Logger, deps.Metrics)
	scheduler := NewScheduler(reconciler, deps.Settings, deps.Clock)
	v := deps.Validator

	r := &Records{
		stores:    deps.Stores,
		scheduler: scheduler,
		snapshots: snapshots,
		log:       deps.Logger.With("component", "records"),
		metrics:   deps.Metrics,

		Values:               NewSetService[model.Value](model.TypeValue, deps.Stores, v, nil),
		Activities:           NewSetService[model.Activity](model.TypeActivity, deps.Stores, v, activityHooks{scheduler: scheduler}),
		ActivitySchedules:    NewSetService[model.ActivitySchedule](model.TypeActivitySchedule, deps.Stores, v, activityScheduleHooks{scheduler: scheduler}),
		ScheduledActivities:  NewSetService[model.ScheduledActivity](model.TypeScheduledActivity, deps.Stores, v, nil),
		Assessments:          NewSetService[model.Assessment](model.TypeAssessment, deps.Stores, v, assessmentHooks{scheduler: scheduler}),
		ScheduledAssessments: NewSetService[model.ScheduledAssessment](model.TypeScheduledAssessment, deps.Stores, v, nil),

		Profile:         NewSingletonService[model.Profile](model.TypeProfile, deps.Stores, v),
		ClinicalHistory: NewSingletonService[model.FreeForm](model.TypeClinicalHistory, deps.Stores, v),
		ValuesInventory: NewSingletonService[model.FreeForm](model.TypeValuesInventory, deps.Stores, v),
		SafetyPlan:      NewSingletonService[model.FreeForm](model.TypeSafetyPlan, deps.Stores, v),
	}

	r.handlers = map[string]DocumentHandler{}
	for _, h := range []DocumentHandler{
		r.Values,
		r.Activities,
		r.ActivitySchedules,
		derivedHandler{r.ScheduledActivities},
		r.Assessments,
		derivedHandler{r.ScheduledAssessments},
		r.Profile.Handler(),
		r.ClinicalHistory.Handler(),
		r.ValuesInventory.Handler(),
		r.SafetyPlan.Handler(),
	} {
		r.handlers[h.Kind().Type] = h
	}
	return r
}

// Handler returns the module responsible for docType.
func (r *Records) Handler(docType string) (DocumentHandler, error) {
	h, ok := r.handlers[docType]
	if !ok {
		return nil, errs.InvalidArgument("unknown document type %q", docType)
	}
	return h, nil
}

// InitCollection prepares a new patient collection.
func (r *Records) InitCollection(ctx context.Context, collection string) error {
	return r.stores.Database().EnsureCollection(ctx, collection)
}

func (r *Records) Store(collection string) *repository.DocumentStore {
	return r.stores.Store(collection)
}

// GetAsOf returns the revision of a document that was current at instant at.
func (r *Records) GetAsOf(ctx context.Context, collection string, id model.Identity, at time.Time) (model.Document, error) {
	doc, err := r.stores.Store(collection).GetAsOf(ctx, id, at)
	if err != nil {
		return model.Document{}, err
	}
	if doc == nil {
		return model.Document{}, errs.NotFound(id)
	}
	return *doc, nil
}

// ScheduledActivityWithLiveSnapshot returns a scheduled activity whose
// dataSnapshot is rebuilt from the current schedule, activity and value.
func (r *Records) ScheduledActivityWithLiveSnapshot(ctx context.Context, collection, setID string) (model.Document, error) {
	doc, err := r.ScheduledActivities.Get(ctx, collection, setID)
	if err != nil {
		return model.Document{}, err
	}
	snapshot, err := r.snapshots.Rebuild(ctx, r.stores.Store(collection), doc)
	if err != nil {
		return model.Document{}, err
	}
	body, err := model.BodyFrom(snapshot)
	if err != nil {
		return model.Document{}, err
	}
	doc.Body["dataSnapshot"] = body
	return doc, nil
}
