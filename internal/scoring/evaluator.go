package scoring

import (
	"fmt"
	"math"

	"github.com/shrimpsizemoose/marksheet/internal/models"
)

const (
	minTAShare = 0.4
	minCEShare = 0.5

	// Subjects graded out of 100 on TA alone ignore CE for passing.
	taOnlyMax = 100
)

func MinTA(subject models.SubjectConfig) float64 {
	return math.Ceil(subject.MaxTA * minTAShare)
}

func MinCE(subject models.SubjectConfig) float64 {
	return math.Ceil(subject.MaxCE * minCEShare)
}

func IsTAOnly(subject models.SubjectConfig) bool {
	return subject.MaxTA == taOnlyMax
}

// Evaluate derives total and status for one subject.
func Evaluate(subject models.SubjectConfig, ta, ce models.Score) models.SubjectMark {
	mark := models.SubjectMark{
		TA:     ta,
		CE:     ce,
		Total:  ta.Value() + ce.Value(),
		Status: models.StatusPending,
	}

	taOnly := IsTAOnly(subject)
	taReady := subject.MaxTA == 0 || ta.IsNumeric()
	ceReady := taOnly || subject.MaxCE == 0 || !ce.IsEmpty()
	if !taReady || !ceReady {
		return mark
	}

	passedTA := !ta.IsAbsent() && ta.Value() >= MinTA(subject)
	passedCE := taOnly || subject.MaxCE == 0 || (!ce.IsAbsent() && ce.Value() >= MinCE(subject))

	if passedTA && passedCE {
		mark.Status = models.StatusPassed
	} else {
		mark.Status = models.StatusFailed
	}
	return mark
}

// UpdateTA replaces TA and keeps the stored CE.
func UpdateTA(subject models.SubjectConfig, prev models.SubjectMark, ta models.Score) models.SubjectMark {
	return Evaluate(subject, ta, prev.CE)
}

// UpdateCE replaces CE and keeps the stored TA.
func UpdateCE(subject models.SubjectConfig, prev models.SubjectMark, ce models.Score) models.SubjectMark {
	return Evaluate(subject, prev.TA, ce)
}

// CheckRange rejects numeric components outside [0, max].
func CheckRange(subject models.SubjectConfig, ta, ce models.Score) error {
	verr := &models.ValidationError{}
	if ta.IsNumeric() && (ta.Value() < 0 || ta.Value() > subject.MaxTA) {
		verr.Fields = append(verr.Fields, models.FieldError{
			Field:   "ta",
			Message: fmt.Sprintf("%s is outside 0..%s for %s", ta, models.Numeric(subject.MaxTA), subject.Name),
		})
	}
	if ce.IsNumeric() && (ce.Value() < 0 || ce.Value() > subject.MaxCE) {
		verr.Fields = append(verr.Fields, models.FieldError{
			Field:   "ce",
			Message: fmt.Sprintf("%s is outside 0..%s for %s", ce, models.Numeric(subject.MaxCE), subject.Name),
		})
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
