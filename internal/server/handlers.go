package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sw33tLie/rankbot/pkg/bot"
	"github.com/sw33tLie/rankbot/pkg/render"
	"github.com/sw33tLie/rankbot/pkg/storage"
)

type CommandRequest struct {
	AuthorID    string `json:"author_id"`
	ChannelKind string `json:"channel_kind"`
	Content     string `json:"content"`
}

type CommandResponse struct {
	Reply   string          `json:"reply"`
	Message *render.Message `json:"message"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.AuthorID == "" {
		http.Error(w, "author_id is required", http.StatusBadRequest)
		return
	}
	kind, err := storage.ParseChannelKind(req.ChannelKind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply, err := s.Bot.Handle(r.Context(), bot.Message{AuthorID: req.AuthorID, ChannelKind: kind, Content: req.Content})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, CommandResponse{Reply: render.Text(*reply), Message: reply})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	cur := s.Store.Current()
	if cur == nil {
		http.Error(w, "no snapshot yet", http.StatusNotFound)
		return
	}
	writeJSON(w, cur)
}

func (s *Server) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Registry.List())
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "change log disabled", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	changes, err := s.DB.ListRecentChanges(r.Context(), q.Get("team"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, changes)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
