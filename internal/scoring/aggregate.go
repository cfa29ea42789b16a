package scoring

import (
	"math"

	"github.com/shrimpsizemoose/marksheet/internal/models"
)

type Aggregate struct {
	GrandTotal       float64
	Average          float64
	SubjectCount     int
	PerformanceLevel models.PerformanceLevel
}

type tier struct {
	min   float64
	level models.PerformanceLevel
}

// highest first; the first tier whose lower bound is met wins
var tiers = []tier{
	{95, models.LevelOutstanding},
	{85, models.LevelExcellent},
	{75, models.LevelVeryGood},
	{65, models.LevelBPlusGood},
	{55, models.LevelBGood},
	{40, models.LevelAverage},
}

func PerformanceFor(average float64) models.PerformanceLevel {
	for _, t := range tiers {
		if average >= t.min {
			return t.level
		}
	}
	return models.LevelFailed
}

// Calculate aggregates a mark sheet. General subjects count one slot each,
// all elective marks together count as a single slot. Marks for subjects
// missing from the catalogue count as general.
func Calculate(marks map[string]models.SubjectMark, catalogue models.Catalogue) Aggregate {
	var (
		grandTotal  float64
		general     int
		hasElective bool
	)
	for subjectID, mark := range marks {
		grandTotal += mark.Total
		if subject, ok := catalogue[subjectID]; ok && subject.IsElective() {
			hasElective = true
			continue
		}
		general++
	}

	count := general
	if hasElective {
		count++
	}

	var average float64
	if count > 0 {
		average = round2(grandTotal / float64(count))
	}
	if math.IsNaN(average) || math.IsInf(average, 0) {
		average = 0
	}

	return Aggregate{
		GrandTotal:       grandTotal,
		Average:          average,
		SubjectCount:     count,
		PerformanceLevel: PerformanceFor(average),
	}
}

// Recompute returns a copy of the student with derived fields refreshed.
func Recompute(student models.StudentRecord, catalogue models.Catalogue) models.StudentRecord {
	out := student.Clone()
	agg := Calculate(out.Marks, catalogue)
	out.GrandTotal = agg.GrandTotal
	out.Average = agg.Average
	out.PerformanceLevel = agg.PerformanceLevel
	return out
}

// Reevaluate re-runs the mark evaluator on every stored mark with the
// current subject configs, then recomputes the aggregate. Marks of unknown
// subjects are kept untouched.
func Reevaluate(student models.StudentRecord, catalogue models.Catalogue) models.StudentRecord {
	out := student.Clone()
	for subjectID, mark := range out.Marks {
		subject, ok := catalogue[subjectID]
		if !ok {
			continue
		}
		out.Marks[subjectID] = Evaluate(subject, mark.TA, mark.CE)
	}
	return Recompute(out, catalogue)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
