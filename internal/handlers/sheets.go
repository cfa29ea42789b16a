package handlers

import (
	"bytes"
	"fmt"
	"net/http"
)

const maxSheetBytes = 10 << 20

func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ImportStudents(r.Context(), http.MaxBytesReader(w, r.Body, maxSheetBytes))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	class := r.URL.Query().Get("class")

	// buffered so a failure can still produce an error response
	var buf bytes.Buffer
	if err := h.service.ExportStudents(r.Context(), &buf, class); err != nil {
		writeError(w, err)
		return
	}

	name := "students.csv"
	if class != "" {
		name = fmt.Sprintf("students-%s.csv", class)
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
