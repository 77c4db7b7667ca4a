package api

import (
	"time"

	"parley/cmd/internal/chatlog"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=2,max=24"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type postMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type authResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

type messagesResponse struct {
	Messages []chatlog.Message `json:"messages"`
}

type presenceResponse struct {
	Online int `json:"online"`
}
