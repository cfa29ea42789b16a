package handlers

import (
	"net/http"

	"github.com/shrimpsizemoose/marksheet/internal/app"
	"github.com/shrimpsizemoose/marksheet/internal/models"
)

func (h *Handler) HandleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.service.ListSubjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": subjects})
}

func (h *Handler) HandleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var in models.SubjectInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	subject, err := h.service.CreateSubject(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, subject)
}

func (h *Handler) HandleUpdateSubject(w http.ResponseWriter, r *http.Request) {
	var in models.SubjectInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	subject, err := h.service.UpdateSubject(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

func (h *Handler) HandleDeleteSubject(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSubject(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentIDs []string `json:"student_ids"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	subject, err := h.service.EnrollStudents(r.Context(), r.PathValue("id"), req.StudentIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

func (h *Handler) HandleBulkMarks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entries []app.MarkEntry `json:"entries"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.service.BulkUpdateMarks(r.Context(), r.PathValue("id"), req.Entries)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
