package handlers

import (
	"net/http"

	"github.com/shrimpsizemoose/marksheet/internal/app"
	"github.com/shrimpsizemoose/marksheet/internal/models"
)

type Handler struct {
	service *app.Service
}

func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	routes := map[string]http.HandlerFunc{
		"GET /api/v1/classes":                  h.HandleListClasses,
		"POST /api/v1/classes":                 h.HandleAddClass,
		"GET /api/v1/classes/{class}/ranklist": h.HandleRanklist,

		"GET /api/v1/students":                        h.HandleListStudents,
		"POST /api/v1/students":                       h.HandleCreateStudent,
		"POST /api/v1/students/delete":                h.HandleDeleteStudents,
		"GET /api/v1/students/{id}":                   h.HandleGetStudent,
		"PUT /api/v1/students/{id}":                   h.HandleUpdateStudent,
		"DELETE /api/v1/students/{id}":                h.HandleDeleteStudent,
		"PATCH /api/v1/students/{id}/marks/{subject}": h.HandleUpdateMarks,

		"GET /api/v1/subjects":             h.HandleListSubjects,
		"POST /api/v1/subjects":            h.HandleCreateSubject,
		"PUT /api/v1/subjects/{id}":        h.HandleUpdateSubject,
		"DELETE /api/v1/subjects/{id}":     h.HandleDeleteSubject,
		"POST /api/v1/subjects/{id}/enrol": h.HandleEnroll,
		"POST /api/v1/subjects/{id}/marks": h.HandleBulkMarks,

		"POST /api/v1/recalculate": h.HandleRecalculate,
		"POST /api/v1/import":      h.HandleImport,
		"GET /api/v1/export":       h.HandleExport,
	}
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, instrument(handler))
	}
}

func (h *Handler) HandleListClasses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"classes": h.service.ListClasses()})
}

func (h *Handler) HandleAddClass(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	added, err := h.service.AddCustomClass(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{"name": req.Name, "added": added})
}

func (h *Handler) HandleRanklist(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.ClassRanklist(r.Context(), r.PathValue("class"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": students})
}

func (h *Handler) HandleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.ListStudents(r.Context(), r.URL.Query().Get("class"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": students})
}

func (h *Handler) HandleGetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := h.service.GetStudent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

func (h *Handler) HandleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var in models.StudentInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	student, err := h.service.CreateStudent(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, student)
}

func (h *Handler) HandleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var in models.StudentInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	student, err := h.service.UpdateStudent(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

func (h *Handler) HandleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteStudent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleDeleteStudents(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.service.DeleteStudents(r.Context(), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleUpdateMarks(w http.ResponseWriter, r *http.Request) {
	var upd app.MarkUpdate
	if err := decodeBody(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	student, err := h.service.UpdateMarks(r.Context(), r.PathValue("id"), r.PathValue("subject"), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

func (h *Handler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RecalculateAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
