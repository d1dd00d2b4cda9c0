package service_test

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/ids"
	"github.com/uwscope/scope-web-sub000/internal/model"
	"github.com/uwscope/scope-web-sub000/internal/repository"
	"github.com/uwscope/scope-web-sub000/internal/service"
	"github.com/uwscope/scope-web-sub000/internal/testutil"
)

const patient = "patient_1"

// 2022-03-14 is a Monday; 10:00Z is 03:00 in Los Angeles.
var mondayMorning = time.Date(2022, 3, 14, 10, 0, 0, 0, time.UTC)

func losAngeles(t testing.TB) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

func settings(t testing.TB) service.ScheduleSettings {
	return service.ScheduleSettings{Location: losAngeles(t), HorizonMonths: 3, AssessmentTimeOfDay: 8}
}

type env struct {
	clock   *testutil.Clock
	stores  *service.Stores
	records *service.Records
}

func newEnv(t testing.TB) *env {
	t.Helper()
	clock := testutil.NewClock(mondayMorning)
	gen := ids.NewGenerator(clock)
	db := repository.NewGormDatabase(testutil.NewGormDB(t), gen)
	stores := service.NewStores(db, repository.WithIDGenerator(gen))
	records := service.NewRecords(service.Dependencies{
		Stores:   stores,
		Clock:    clock,
		Settings: settings(t),
	})
	require.NoError(t, records.InitCollection(context.Background(), patient))
	return &env{clock: clock, stores: stores, records: records}
}

func intPtr(v int) *int { return &v }

func weeklySchedule(activityID string, hour int) map[string]any {
	return map[string]any{
		"activityId":     activityID,
		"date":           "2022-03-14",
		"timeOfDay":      hour,
		"hasRepetition":  true,
		"frequency":      model.FrequencyWeekly,
		"repeatDayFlags": map[string]any{"Monday": true, "Tuesday": true},
		"hasReminder":    false,
	}
}

func dueDates(t testing.TB, docs []model.Document) []string {
	t.Helper()
	out := make([]string, len(docs))
	for i, doc := range docs {
		var item model.ScheduledItem
		require.NoError(t, doc.Decode(&item))
		out[i] = item.DueDate
	}
	return out
}

type RecordsSuite struct {
	suite.Suite
	ctx context.Context
	env *env
}

func TestRecordsSuite(t *testing.T) {
	suite.Run(t, new(RecordsSuite))
}

func (s *RecordsSuite) SetupTest() {
	s.ctx = context.Background()
	s.env = newEnv(s.T())
}

func (s *RecordsSuite) createActivity(body map[string]any) model.Document {
	doc, err := s.env.records.Activities.Create(s.ctx, patient, body)
	s.Require().NoError(err)
	return doc
}

func (s *RecordsSuite) createSchedule(activityID string, hour int) model.Document {
	doc, err := s.env.records.ActivitySchedules.Create(s.ctx, patient, weeklySchedule(activityID, hour))
	s.Require().NoError(err)
	return doc
}

func (s *RecordsSuite) scheduledActivities() []model.Document {
	docs, err := s.env.records.ScheduledActivities.GetAll(s.ctx, patient)
	s.Require().NoError(err)
	return docs
}

func (s *RecordsSuite) TestCreatingScheduleExpandsOccurrences() {
	activity := s.createActivity(map[string]any{"name": "Walk"})
	schedule := s.createSchedule(activity.SetID, 8)

	docs := s.scheduledActivities()
	s.Require().Len(docs, 28)
	dates := dueDates(s.T(), docs)
	s.Equal([]string{"2022-03-14", "2022-03-15", "2022-03-21", "2022-03-22"}, dates[:4])
	s.Equal("2022-06-14", dates[len(dates)-1])

	var first model.ScheduledActivity
	s.Require().NoError(docs[0].Decode(&first))
	s.Equal(schedule.SetID, first.ActivityScheduleID)
	s.Equal(8, first.DueTimeOfDay)
	s.False(first.Completed)
	s.Equal(time.Date(2022, 3, 14, 15, 0, 0, 0, time.UTC), first.DueDateTime.UTC())
	s.Require().NotNil(first.DataSnapshot)
	s.Equal("Walk", first.DataSnapshot.Activity["name"])
	s.Equal(schedule.SetID, first.DataSnapshot.ActivitySchedule[model.FieldSetID])
}

func (s *RecordsSuite) TestMaintainIsIdempotent() {
	activity := s.createActivity(map[string]any{"name": "Walk"})
	s.createSchedule(activity.SetID, 8)
	before := s.scheduledActivities()

	report, err := s.env.records.Maintain(s.ctx, patient)
	s.Require().NoError(err)
	s.Equal(1, report.Schedules)
	s.Equal(28, report.Kept)
	s.Zero(report.Created)
	s.Zero(report.Deleted)

	s.Equal(before, s.scheduledActivities())
}

func (s *RecordsSuite) TestMaintainExtendsRollingHorizon() {
	activity := s.createActivity(map[string]any{"name": "Walk"})
	s.createSchedule(activity.SetID, 8)

	s.env.clock.Set(time.Date(2022, 3, 21, 10, 0, 0, 0, time.UTC))
	report, err := s.env.records.Maintain(s.ctx, patient)
	s.Require().NoError(err)
	s.Equal(26, report.Kept)
	s.Equal(2, report.Created)
	s.Zero(report.Deleted)

	dates := dueDates(s.T(), s.scheduledActivities())
	s.Len(dates, 30)
	s.Equal([]string{"2022-06-20", "2022-06-21"}, dates[len(dates)-2:])
}

func (s *RecordsSuite) TestMaintainContinuesPastBrokenSchedule() {
	activity := s.createActivity(map[string]any{"name": "Walk"})
	broken := s.createSchedule(activity.SetID, 8)
	healthy := s.createSchedule(activity.SetID, 8)

	var tampered model.Document
	for _, doc := range s.scheduledActivities() {
		if doc.Body["activityScheduleId"] == broken.SetID {
			tampered = doc
		}
	}
	s.Require().NotEmpty(tampered.SetID)
	body := model.CloneBody(tampered.Body)
	body["dueDateTime"] = "2022-06-14T08:00:00Z"
	_, err := s.env.records.ScheduledActivities.Put(s.ctx, patient, tampered.SetID, intPtr(tampered.Rev), body)
	s.Require().NoError(err)

	s.env.clock.Set(time.Date(2022, 3, 21, 10, 0, 0, 0, time.UTC))
	report, err := s.env.records.Maintain(s.ctx, patient)
	s.Require().Error(err)
	s.True(errors.Is(err, errs.ErrIntegrity))
	s.Contains(err.Error(), broken.SetID)
	s.Equal(1, report.Schedules)
	s.Equal(1, report.Failed)
	s.Equal(2, report.Created)

	extended := 0
	for _, doc := range s.scheduledActivities() {
		if doc.Body["activityScheduleId"] == healthy.SetID {
			extended++
		}
	}
	s.Equal(30, extended)
}

func (s *RecordsSuite) TestUpdatingScheduleReplacesPendingOccurrences() {
	activity := s.createActivity(map[string]any{"name": "Walk"})
	schedule := s.createSchedule(activity.SetID, 8)

	_, err := s.env.records.ActivitySchedules.Put(s.ctx, patient, schedule.SetID, intPtr(1), weeklySchedule(activity.SetID, 9))
	s.Require().NoError(err)

	docs := s.scheduledActivities()
	s.Require().Len(docs, 28)
	for _, doc := range docs {
		var item model.ScheduledItem
		s.Require().NoError(doc.Decode(&item))
		s.Equal(9, item.DueTimeOfDay)
	}
}

func (s *RecordsSuite) TestCompletedOccurrencesSurviveScheduleDelete() {
	activity := s.createActivity(map[string]any{"name": "Walk"})
	schedule := s.createSchedule(activity.SetID, 8)

	first := s.scheduledActivities()[0]
	body := model.CloneBody(first.Body)
	body["completed"] = true
	body["completedDateTime"] = "2022-03-14T16:00:00Z"
	_, err := s.env.records.ScheduledActivities.Put(s.ctx, patient, first.SetID, intPtr(first.Rev), body)
	s.Require().NoError(err)

	_, err = s.env.records.ActivitySchedules.Delete(s.ctx, patient, schedule.SetID, intPtr(1))
	s.Require().NoError(err)

	docs := s.scheduledActivities()
	s.Require().Len(docs, 1)
	s.Equal(first.SetID, docs[0].SetID)
}

func (s *RecordsSuite) TestScheduleRequiresExistingActivity() {
	_, err := s.env.records.ActivitySchedules.Create(s.ctx, patient, weeklySchedule("missing", 8))
	s.Require().Error(err)
	s.Empty(s.scheduledActivities())
}

func (s *RecordsSuite) TestDeactivatingActivityRemovesPendingOccurrences() {
	activity := s.createActivity(map[string]any{"name": "Walk"})
	s.createSchedule(activity.SetID, 8)

	_, err := s.env.records.Activities.Put(s.ctx, patient, activity.SetID, intPtr(1), map[string]any{"name": "Walk", "isActive": false})
	s.Require().NoError(err)
	s.Empty(s.scheduledActivities())

	_, err = s.env.records.Activities.Put(s.ctx, patient, activity.SetID, intPtr(2), map[string]any{"name": "Walk", "isActive": true})
	s.Require().NoError(err)
	s.Len(s.scheduledActivities(), 28)
}

func (s *RecordsSuite) TestDeletingActivityCascades() {
	activity := s.createActivity(map[string]any{"name": "Walk"})
	s.createSchedule(activity.SetID, 8)

	_, err := s.env.records.Activities.Delete(s.ctx, patient, activity.SetID, intPtr(1))
	s.Require().NoError(err)

	schedules, err := s.env.records.ActivitySchedules.GetAll(s.ctx, patient)
	s.Require().NoError(err)
	s.Empty(schedules)
	s.Empty(s.scheduledActivities())
}

func (s *RecordsSuite) TestSnapshotIsFrozenUntilRebuilt() {
	value, err := s.env.records.Values.Create(s.ctx, patient, map[string]any{"name": "Health", "lifeAreaId": "physical"})
	s.Require().NoError(err)
	activity := s.createActivity(map[string]any{"name": "Walk", "valueId": value.SetID})
	s.createSchedule(activity.SetID, 8)

	_, err = s.env.records.Activities.Put(s.ctx, patient, activity.SetID, intPtr(1), map[string]any{"name": "Run", "valueId": value.SetID})
	s.Require().NoError(err)

	occurrence := s.scheduledActivities()[0]
	var stored model.ScheduledActivity
	s.Require().NoError(occurrence.Decode(&stored))
	s.Equal("Walk", stored.DataSnapshot.Activity["name"])
	s.Equal("Health", stored.DataSnapshot.Value["name"])

	live, err := s.env.records.ScheduledActivityWithLiveSnapshot(s.ctx, patient, occurrence.SetID)
	s.Require().NoError(err)
	var rebuilt model.ScheduledActivity
	s.Require().NoError(live.Decode(&rebuilt))
	s.Equal("Run", rebuilt.DataSnapshot.Activity["name"])
	s.Equal("Health", rebuilt.DataSnapshot.Value["name"])
}

func (s *RecordsSuite) TestActivityRequiresExistingValue() {
	_, err := s.env.records.Activities.Create(s.ctx, patient, map[string]any{"name": "Walk", "valueId": "missing"})
	s.Require().Error(err)
}

func (s *RecordsSuite) assessmentBody(assigned bool) map[string]any {
	return map[string]any{
		"name":             "PHQ-9",
		"assigned":         assigned,
		"assignedDateTime": "2022-03-14T10:00:00Z",
		"frequency":        model.FrequencyWeekly,
		"dayOfWeek":        "Wednesday",
	}
}

func (s *RecordsSuite) TestAssigningAssessmentSchedulesIt() {
	assessment, err := s.env.records.Assessments.Create(s.ctx, patient, s.assessmentBody(true))
	s.Require().NoError(err)

	docs, err := s.env.records.ScheduledAssessments.GetAll(s.ctx, patient)
	s.Require().NoError(err)
	s.Require().Len(docs, 14)
	dates := dueDates(s.T(), docs)
	s.Equal("2022-03-16", dates[0])
	s.Equal("2022-06-15", dates[len(dates)-1])

	var first model.ScheduledAssessment
	s.Require().NoError(docs[0].Decode(&first))
	s.Equal(assessment.SetID, first.AssessmentID)
	s.Equal(time.Date(2022, 3, 16, 15, 0, 0, 0, time.UTC), first.DueDateTime.UTC())

	_, err = s.env.records.Assessments.Put(s.ctx, patient, assessment.SetID, intPtr(1), s.assessmentBody(false))
	s.Require().NoError(err)
	docs, err = s.env.records.ScheduledAssessments.GetAll(s.ctx, patient)
	s.Require().NoError(err)
	s.Empty(docs)
}

func (s *RecordsSuite) TestOccurrencesCannotBeCreatedDirectly() {
	h, err := s.env.records.Handler(model.TypeScheduledAssessment)
	s.Require().NoError(err)
	_, err = h.Create(s.ctx, patient, map[string]any{"assessmentId": "a"})
	s.Require().Error(err)

	_, err = s.env.records.Handler("booking")
	s.Require().Error(err)
}

func (s *RecordsSuite) TestSingletonHistory() {
	_, err := s.env.records.Profile.Put(s.ctx, patient, nil, map[string]any{"name": "Ada"})
	s.Require().NoError(err)
	s.env.clock.Advance(time.Minute)
	_, err = s.env.records.Profile.Put(s.ctx, patient, intPtr(1), map[string]any{"name": "Ada L."})
	s.Require().NoError(err)

	current, err := s.env.records.Profile.Get(s.ctx, patient)
	s.Require().NoError(err)
	s.Equal(2, current.Rev)

	history, err := s.env.records.Profile.History(s.ctx, patient)
	s.Require().NoError(err)
	s.Equal(2, history.Len())

	old, err := s.env.records.GetAsOf(s.ctx, patient, model.Singleton(model.TypeProfile), mondayMorning.Add(30*time.Second))
	s.Require().NoError(err)
	s.Equal("Ada", old.Body["name"])
}
