package scoring

import (
	"cmp"
	"slices"

	"github.com/shrimpsizemoose/marksheet/internal/models"
)

// AssignRanks ranks one class with standard competition ranking: equal
// grand totals share a rank and the next distinct total takes its 1-based
// position (1, 1, 3, 4). The result is sorted by rank; ties keep input order.
func AssignRanks(students []models.StudentRecord) []models.StudentRecord {
	ranked := make([]models.StudentRecord, len(students))
	copy(ranked, students)
	slices.SortStableFunc(ranked, func(a, b models.StudentRecord) int {
		return cmp.Compare(b.GrandTotal, a.GrandTotal)
	})

	for i := range ranked {
		if i > 0 && ranked[i].GrandTotal == ranked[i-1].GrandTotal {
			ranked[i].Rank = ranked[i-1].Rank
			continue
		}
		ranked[i].Rank = i + 1
	}
	return ranked
}

// RankChanges ranks the class and returns only the records whose rank
// value differs from what is stored.
func RankChanges(students []models.StudentRecord) []models.StudentRecord {
	before := make(map[string]int, len(students))
	for _, s := range students {
		before[s.ID] = s.Rank
	}
	var changed []models.StudentRecord
	for _, s := range AssignRanks(students) {
		if before[s.ID] != s.Rank {
			changed = append(changed, s)
		}
	}
	return changed
}

// GroupByClass splits students by class name, keeping store order inside
// each class.
func GroupByClass(students []models.StudentRecord) map[string][]models.StudentRecord {
	out := make(map[string][]models.StudentRecord)
	for _, s := range students {
		out[s.ClassName] = append(out[s.ClassName], s)
	}
	return out
}

// SortForDisplay orders records by rank (unranked last), then by import row
// number (records without one last), then by admission number.
func SortForDisplay(students []models.StudentRecord) {
	slices.SortStableFunc(students, func(a, b models.StudentRecord) int {
		if n := compareMissingLast(int64(a.Rank), int64(b.Rank)); n != 0 {
			return n
		}
		if n := compareMissingLast(a.ImportRowNumber, b.ImportRowNumber); n != 0 {
			return n
		}
		return cmp.Compare(a.AdmissionNo, b.AdmissionNo)
	})
}

func compareMissingLast(a, b int64) int {
	switch {
	case a == b:
		return 0
	case a == 0:
		return 1
	case b == 0:
		return -1
	default:
		return cmp.Compare(a, b)
	}
}
