// Package port — chat_port.go define as interfaces (ports) que o chat usa.
//
// Seguindo a arquitetura hexagonal, o ChatService depende dessas interfaces
// e NÃO dos clients concretos. Isso facilita testes e troca de implementação.
package port

import (
	"context"

	chatdomain "github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/domain"
	maindomain "github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
)

// ChatAgentCaller envia mensagens ao Agent Python (POST /v1/chat).
type ChatAgentCaller interface {
	SendChat(ctx context.Context, req *chatdomain.ChatAgentRequest) (*chatdomain.ChatAgentResponse, error)
}

// CaptureStarter abre e alimenta sessões de captura.
// O service.CaptureService implementa essa interface.
type CaptureStarter interface {
	Open(ctx context.Context, storeID, contextTag string) *maindomain.SessionSnapshot
	SubmitText(ctx context.Context, storeID, sessionID, text string) (*maindomain.SessionSnapshot, error)
}
