package model

import "sort"

// TypeSentinel marks the placeholder written when a collection is initialised.
const TypeSentinel = "sentinel"

const (
	TypeProfile         = "profile"
	TypeClinicalHistory = "clinicalHistory"
	TypeValuesInventory = "valuesInventory"
	TypeSafetyPlan      = "safetyPlan"

	TypeValue               = "value"
	TypeActivity            = "activity"
	TypeActivitySchedule    = "activitySchedule"
	TypeScheduledActivity   = "scheduledActivity"
	TypeAssessment          = "assessment"
	TypeScheduledAssessment = "scheduledAssessment"
)

// Kind describes a document type: singleton or set.
type Kind struct {
	Type string
	Set  bool
}

// SetIDField is the body attribute that repeats a set element's setId,
// e.g. "activityId" for activities.
func (k Kind) SetIDField() string {
	if !k.Set {
		return ""
	}
	return k.Type + "Id"
}

var kinds = map[string]Kind{
	TypeProfile:         {Type: TypeProfile},
	TypeClinicalHistory: {Type: TypeClinicalHistory},
	TypeValuesInventory: {Type: TypeValuesInventory},
	TypeSafetyPlan:      {Type: TypeSafetyPlan},

	TypeValue:               {Type: TypeValue, Set: true},
	TypeActivity:            {Type: TypeActivity, Set: true},
	TypeActivitySchedule:    {Type: TypeActivitySchedule, Set: true},
	TypeScheduledActivity:   {Type: TypeScheduledActivity, Set: true},
	TypeAssessment:          {Type: TypeAssessment, Set: true},
	TypeScheduledAssessment: {Type: TypeScheduledAssessment, Set: true},
}

func LookupKind(docType string) (Kind, bool) {
	k, ok := kinds[docType]
	return k, ok
}

// Kinds returns every known kind ordered by type name.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
