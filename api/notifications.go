package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/docket/core"
)

type notificationResponse struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	DocumentRef string    `json:"documentRef,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newNotificationResponse(n *core.Notification) notificationResponse {
	return notificationResponse{
		ID:          n.ID.String(),
		Type:        string(n.Type),
		Title:       n.Title,
		Message:     n.Message,
		DocumentRef: n.DocumentRef,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}

func idParam(r *http.Request) (core.ID, error) {
	id, err := core.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid notification id", errBadRequest)
	}
	return id, nil
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
		limit = n
	}

	var (
		list []*core.Notification
		err  error
	)
	if ref := r.URL.Query().Get("document"); ref != "" {
		list, err = s.sys.Notifications().ListByDocument(r.Context(), tenant(r), ref)
	} else {
		list, err = s.sys.Notifications().List(r.Context(), tenant(r), limit)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, newNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": resp})
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.sys.Notifications().UnreadCount(r.Context(), tenant(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sys.Notifications().MarkRead(r.Context(), tenant(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.sys.Notifications().MarkAllRead(r.Context(), tenant(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sys.Notifications().Delete(r.Context(), tenant(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteAllNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := s.sys.Notifications().DeleteAll(r.Context(), tenant(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
