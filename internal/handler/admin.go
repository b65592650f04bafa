package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/quizgen/internal/i18n"
	"github.com/pavelanni/quizgen/internal/model"
)

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeDetail(w, http.StatusNotFound, appI18n.T(r.Context(), "ErrHistoryDisabled"))
		return
	}

	kind := model.RunKind(r.URL.Query().Get("kind"))
	switch kind {
	case "", model.RunSegmentation, model.RunQuestions:
	default:
		writeDetail(w, http.StatusBadRequest,
			appI18n.Td(r.Context(), "ErrInvalidInput", map[string]any{"Detail": "unknown run kind " + string(kind)}))
		return
	}

	runs, err := h.store.ListRuns(kind)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeDetail(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(runs), "runs": runs})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeDetail(w, http.StatusNotFound, appI18n.T(r.Context(), "ErrHistoryDisabled"))
		return
	}

	id := chi.URLParam(r, "runID")
	run, err := h.store.GetRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeDetail(w, http.StatusNotFound, appI18n.T(r.Context(), "ErrRunNotFound"))
		return
	}
	if err != nil {
		slog.Error("failed to get run", "id", id, "error", err)
		writeDetail(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleExportRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeDetail(w, http.StatusNotFound, appI18n.T(r.Context(), "ErrHistoryDisabled"))
		return
	}

	export, err := h.store.ExportRuns()
	if err != nil {
		slog.Error("failed to export runs", "error", err)
		writeDetail(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
		return
	}

	filename := "quizgen-runs-" + export.ExportedAt.Format(time.DateOnly) + ".json"
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	slog.Info("exported runs via API", "count", export.Count)
	writeJSON(w, http.StatusOK, export)
}
