package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"aula-quiz-service/internal/app"
	"aula-quiz-service/internal/domain"
)

// Handler wires the quiz use cases into HTTP routes.
type Handler struct {
	service *app.QuizService
	ws      *WSHandler
	log     *zap.Logger
}

func NewHandler(service *app.QuizService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		service: service,
		ws:      NewWSHandler(service, log),
		log:     log,
	}
}

// Router builds the route table. Reads require no auth; host commands carry
// the host key in the X-Host-Key header.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tests", h.createTest).Methods(http.MethodPost)
	api.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/open", h.hostCommand(app.CommandOpenQuestion)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/close", h.hostCommand(app.CommandCloseQuestion)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/next", h.hostCommand(app.CommandNextQuestion)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/end", h.hostCommand(app.CommandEndSession)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/join", h.join).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/answers", h.submitAnswer).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.snapshot).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/question", h.currentQuestion).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/ranking", h.ranking).Methods(http.MethodGet)
	api.HandleFunc("/s/{slug}", h.resolveSlug).Methods(http.MethodGet)

	r.HandleFunc("/ws", h.ws.ServeWS)
	return r
}

func (h *Handler) createTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string `json:"title"`
		Questions string `json:"questions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	testID, err := h.service.CreateTest(r.Context(), req.Title, req.Questions)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"testId": testID})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TestID string `json:"testId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TestID == "" {
		writeError(w, http.StatusBadRequest, "testId is required")
		return
	}
	created, err := h.service.CreateSession(r.Context(), req.TestID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) hostCommand(cmd app.HostCommand) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["id"]
		hostKey := r.Header.Get("X-Host-Key")
		snap, err := h.service.ApplyHostCommand(r.Context(), sessionID, cmd, hostKey)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Nickname == "" {
		writeError(w, http.StatusBadRequest, "nickname is required")
		return
	}
	participant, err := h.service.Join(r.Context(), mux.Vars(r)["id"], req.Nickname)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, participant)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string           `json:"participantId"`
		QuestionID    string           `json:"questionId"`
		Selected      domain.OptionKey `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, err := h.service.SubmitAnswer(r.Context(), mux.Vars(r)["id"], req.ParticipantID, req.QuestionID, req.Selected)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetSnapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) currentQuestion(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetCurrentQuestion(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ranking(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.GetRanking(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) resolveSlug(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.service.Resolve(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the core error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrDuplicateNickname):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrNoCurrentQuestion),
		errors.Is(err, domain.ErrTestNotFound),
		errors.Is(err, domain.ErrSlugNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidOption):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
