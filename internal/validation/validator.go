// Package validation checks document bodies against the typed schema of
// their kind before they are written.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/model"
)

// Validator checks a body against the schema registered under schemaID.
type Validator interface {
	Validate(schemaID string, body map[string]any) error
}

// StructValidator decodes bodies into entity structs and runs their
// validate tags. Kinds without a registered schema are accepted as-is.
type StructValidator struct {
	validate *validator.Validate
	schemas  map[string]func() any
}

func New() *StructValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	v.RegisterStructValidation(activityScheduleRules, model.ActivitySchedule{})
	v.RegisterStructValidation(assessmentRules, model.Assessment{})
	v.RegisterStructValidation(scheduledItemRules, model.ScheduledItem{})

	return &StructValidator{
		validate: v,
		schemas: map[string]func() any{
			model.TypeProfile:             func() any { return &model.Profile{} },
			model.TypeValue:               func() any { return &model.Value{} },
			model.TypeActivity:            func() any { return &model.Activity{} },
			model.TypeActivitySchedule:    func() any { return &model.ActivitySchedule{} },
			model.TypeAssessment:          func() any { return &model.Assessment{} },
			model.TypeScheduledActivity:   func() any { return &model.ScheduledActivity{} },
			model.TypeScheduledAssessment: func() any { return &model.ScheduledAssessment{} },
		},
	}
}

// Register adds or replaces the schema for schemaID.
func (s *StructValidator) Register(schemaID string, factory func() any) {
	s.schemas[schemaID] = factory
}

func (s *StructValidator) Validate(schemaID string, body map[string]any) error {
	factory, ok := s.schemas[schemaID]
	if !ok {
		return nil
	}
	target := factory()
	if err := decodeStrict(body, target); err != nil {
		return &errs.SchemaViolationError{SchemaID: schemaID, Violations: []string{err.Error()}}
	}
	err := s.validate.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %s: %w", schemaID, err)
	}
	violations := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, describe(fe))
	}
	sort.Strings(violations)
	return &errs.SchemaViolationError{SchemaID: schemaID, Violations: violations}
}

// decodeStrict rejects type mismatches such as a string where an hour is expected.
// Unknown attributes are allowed.
func decodeStrict(body map[string]any, target any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	return dec.Decode(target)
}

func describe(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
}

var weekdayNames = map[string]struct{}{
	"Monday": {}, "Tuesday": {}, "Wednesday": {}, "Thursday": {}, "Friday": {}, "Saturday": {}, "Sunday": {},
}

func activityScheduleRules(sl validator.StructLevel) {
	s := sl.Current().Interface().(model.ActivitySchedule)
	for day := range s.RepeatDayFlags {
		if _, ok := weekdayNames[day]; !ok {
			sl.ReportError(s.RepeatDayFlags, "repeatDayFlags", "RepeatDayFlags", "weekday", day)
		}
	}
	if s.HasRepetition {
		if s.Frequency == "" {
			sl.ReportError(s.Frequency, "frequency", "Frequency", "required_with_repetition", "")
		}
		if s.Frequency != model.FrequencyDaily && len(s.RepeatDays()) == 0 && len(s.RepeatDayFlags) > 0 {
			sl.ReportError(s.RepeatDayFlags, "repeatDayFlags", "RepeatDayFlags", "one_day_required", "")
		}
	}
}

func assessmentRules(sl validator.StructLevel) {
	a := sl.Current().Interface().(model.Assessment)
	if !a.Assigned {
		return
	}
	if a.Frequency == "" {
		sl.ReportError(a.Frequency, "frequency", "Frequency", "required_when_assigned", "")
	}
	if a.DayOfWeek == "" {
		sl.ReportError(a.DayOfWeek, "dayOfWeek", "DayOfWeek", "required_when_assigned", "")
	}
}

func scheduledItemRules(sl validator.StructLevel) {
	item := sl.Current().Interface().(model.ScheduledItem)
	if item.Completed && item.CompletedDateTime == nil {
		sl.ReportError(item.CompletedDateTime, "completedDateTime", "CompletedDateTime", "required_when_completed", "")
	}
}
