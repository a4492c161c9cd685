package main

import (
	"encoding/json"
	"net/http"

	"chat-diary-bot/internal/domain"
	"chat-diary-bot/internal/infra/config"
	httpinfra "chat-diary-bot/internal/infra/http"
	"chat-diary-bot/internal/usecase/diary"
)

// registerDiaryRoutes добавляет служебный JSON API поверх того же
// сервиса, что обслуживает бота: статус, принудительное обновление и
// собранный блок дневника.
func registerDiaryRoutes(server *httpinfra.Server, service *diary.Service, cfg config.AppConfig) {
	server.Router.Get("/api/v1/diary/status", func(w http.ResponseWriter, r *http.Request) {
		conv, ok := conversationFromQuery(w, r)
		if !ok {
			return
		}
		service.OnFirstAccess(r.Context(), conv)
		writeJSON(w, service.Status(conv))
	})

	server.Router.Post("/api/v1/diary/refresh", func(w http.ResponseWriter, r *http.Request) {
		conv, ok := conversationFromQuery(w, r)
		if !ok {
			return
		}
		results, err := service.RefreshAll(r.Context(), conv, cfg.Diary.Identity)
		resp := map[string]any{"results": results}
		if err != nil {
			resp["error"] = err.Error()
		}
		writeJSON(w, resp)
	})

	server.Router.Get("/api/v1/diary/prompt", func(w http.ResponseWriter, r *http.Request) {
		conv, ok := conversationFromQuery(w, r)
		if !ok {
			return
		}
		service.OnFirstAccess(r.Context(), conv)
		writeJSON(w, map[string]string{"prompt": service.BuildPrompt(conv)})
	})
}

func conversationFromQuery(w http.ResponseWriter, r *http.Request) (domain.Conversation, bool) {
	chatType := domain.ChatType(r.URL.Query().Get("chat_type"))
	streamID := r.URL.Query().Get("stream_id")
	if !chatType.Valid() {
		writeError(w, http.StatusBadRequest, "chat_type must be group or private")
		return domain.Conversation{}, false
	}
	if streamID == "" {
		writeError(w, http.StatusBadRequest, "stream_id is required")
		return domain.Conversation{}, false
	}
	return domain.Conversation{
		ChatType:    chatType,
		ID:          streamID,
		DisplayName: r.URL.Query().Get("display_name"),
	}, true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
