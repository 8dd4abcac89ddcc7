package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pliu/simquery/internal/auth"
	"github.com/pliu/simquery/internal/chat"
	"github.com/pliu/simquery/internal/middleware"
	"github.com/pliu/simquery/internal/ws"
)

type Deps struct {
	Auth     *auth.Service
	Tokens   middleware.Authenticator
	Chats    *chat.Service
	Hub      *ws.Hub
	Upgrader *websocket.Upgrader
	// RateLimiter throttles /auth routes; nil disables it.
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
}

func NewRouter(d Deps) *mux.Router {
	authHandler := &AuthHandler{Auth: d.Auth, Logger: d.Logger}
	chatHandler := &ChatHandler{Chats: d.Chats, Logger: d.Logger}
	messageHandler := &MessageHandler{Chats: d.Chats, Logger: d.Logger}

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(d.Logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	public := r.PathPrefix("/auth").Subrouter()
	if d.RateLimiter != nil {
		public.Use(d.RateLimiter.Middleware)
	}
	public.HandleFunc("/register", authHandler.Register).Methods("POST")
	public.HandleFunc("/verify-email", authHandler.VerifyEmail).Methods("GET")
	public.HandleFunc("/resend-verification", authHandler.ResendVerification).Methods("POST")
	public.HandleFunc("/login", authHandler.Login).Methods("POST")
	public.HandleFunc("/refresh-token", authHandler.Refresh).Methods("POST")

	api := r.NewRoute().Subrouter()
	api.Use(middleware.Auth(d.Tokens))

	api.HandleFunc("/users/me", authHandler.Me).Methods("GET")

	api.HandleFunc("/chats", chatHandler.GetChats).Methods("GET")
	api.HandleFunc("/chats", chatHandler.CreateChat).Methods("POST")
	api.HandleFunc("/chats/{id}", chatHandler.GetChat).Methods("GET")
	api.HandleFunc("/chats/{id}", chatHandler.UpdateChat).Methods("PUT")
	api.HandleFunc("/chats/{id}", chatHandler.DeleteChat).Methods("DELETE")
	api.HandleFunc("/chats/{id}/messages", chatHandler.GetChatMessages).Methods("GET")

	api.HandleFunc("/messages", messageHandler.CreateMessage).Methods("POST")
	api.HandleFunc("/messages/{id}", messageHandler.GetMessage).Methods("GET")
	api.HandleFunc("/messages/{id}", messageHandler.DeleteMessage).Methods("DELETE")

	if d.Hub != nil {
		api.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal(w, r, d.Logger)
			if !ok {
				return
			}
			ws.ServeWs(d.Hub, d.Upgrader, w, r, p.UserID)
		}).Methods("GET")
	}

	return r
}
