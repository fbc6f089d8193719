package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type queryRequest struct {
	Query string `json:"query"`
}

type termRequest struct {
	Term string `json:"term"`
}

// TypeQuery передаёт очередное значение строки поиска. Подсказки появляются
// после паузы в наборе.
func (h *Handler) TypeQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w)
		return
	}

	h.engine.Suggester.Type(req.Query)
	writeJSON(w, http.StatusAccepted, h.engine.Suggester.Snapshot())
}

// Suggestions возвращает текущие подсказки.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Suggester.Snapshot())
}

// RecentSearches возвращает недавние запросы.
func (h *Handler) RecentSearches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Recent.List())
}

// AddRecentSearch сохраняет выполненный запрос.
func (h *Handler) AddRecentSearch(w http.ResponseWriter, r *http.Request) {
	var req termRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Term) == "" {
		badRequest(w)
		return
	}

	list, err := h.engine.Recent.Add(r.Context(), req.Term)
	if err != nil {
		h.logger.Error("save recent search error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ClearRecentSearches очищает недавние запросы.
func (h *Handler) ClearRecentSearches(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Recent.Clear(r.Context()); err != nil {
		h.logger.Error("clear recent searches error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
