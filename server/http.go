package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler builds the stub's route table.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/v1/ws", s.handleWebSocket)
	router.HandleFunc("/v1/transcribe", s.handleTranscribe).Methods("POST")
	router.HandleFunc("/api/sessions", s.handleListSessions).Methods("GET")
	router.HandleFunc("/api/sessions/{sessionID}/transcript", s.handleGetTranscript).Methods("GET")

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	newPracticeConn(s, conn).run(r.Context())
}

// handleTranscribe is the REST fallback collaborator: one multipart
// audio file in, a transcription out. The stub's transcription is
// canned.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		http.Error(w, "Unreadable audio file", http.StatusBadRequest)
		return
	}

	slog.Debug("Transcribe upload received",
		"filename", header.Filename,
		"bytes", size)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"text": stubTranscription})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.archive.ListSessions(r.Context())
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["sessionID"]

	entries, err := s.archive.ListTranscript(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load transcript", "error", err, "sessionID", sessionID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
