package importer

import (
	"strconv"

	"github.com/shrimpsizemoose/marksheet/internal/models"
)

// ExportHeader lists the student columns, then four columns per subject in
// catalogue order, then the aggregate columns.
func ExportHeader(catalogue models.Catalogue) []string {
	header := []string{ColAdmissionNo, ColName, ColClassName, ColSemester}
	for _, id := range catalogue.IDs() {
		for _, suffix := range []string{SuffixTA, SuffixCE, SuffixTotal, SuffixStatus} {
			header = append(header, id+"."+suffix)
		}
	}
	return append(header, ColGrandTotal, ColAverage, ColRank, ColPerformanceLevel)
}

// Export renders students as rows for a Codec. Students keep the order
// they are given in.
func Export(students []models.StudentRecord, catalogue models.Catalogue) ([]string, []Row) {
	header := ExportHeader(catalogue)
	rows := make([]Row, 0, len(students))
	for _, s := range students {
		row := Row{
			ColAdmissionNo:      s.AdmissionNo,
			ColName:             s.Name,
			ColClassName:        s.ClassName,
			ColSemester:         string(s.Semester),
			ColGrandTotal:       formatNumber(s.GrandTotal),
			ColAverage:          formatNumber(s.Average),
			ColPerformanceLevel: string(s.PerformanceLevel),
		}
		if s.Rank > 0 {
			row[ColRank] = strconv.Itoa(s.Rank)
		}
		for id := range catalogue {
			mark, ok := s.Marks[id]
			if !ok {
				continue
			}
			row[id+"."+SuffixTA] = mark.TA.String()
			row[id+"."+SuffixCE] = mark.CE.String()
			row[id+"."+SuffixTotal] = formatNumber(mark.Total)
			row[id+"."+SuffixStatus] = string(mark.Status)
		}
		rows = append(rows, row)
	}
	return header, rows
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
