package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for consistent error handling across the service.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates the request conflicts with the current state.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ============================================================
// Capture pipeline taxonomy
// ============================================================

// UserMessenger is implemented by errors that carry a short pt-BR message
// meant for the operator.
type UserMessenger interface {
	UserMessage() string
}

// UserMessage returns the operator-facing message for err, falling back to
// a generic one.
func UserMessage(err error) string {
	var um UserMessenger
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return "Ocorreu um erro inesperado. Tente novamente."
}

// SpeechErrorKind classifies speech recognition failures.
type SpeechErrorKind string

const (
	SpeechUnsupported         SpeechErrorKind = "UNSUPPORTED"
	SpeechPermissionDenied    SpeechErrorKind = "PERMISSION_DENIED"
	SpeechNoSpeech            SpeechErrorKind = "NO_SPEECH"
	SpeechNetwork             SpeechErrorKind = "NETWORK"
	SpeechAborted             SpeechErrorKind = "ABORTED"
	SpeechBlocked             SpeechErrorKind = "BLOCKED"
	SpeechPermissionOrTimeout SpeechErrorKind = "PERMISSION_OR_TIMEOUT"
	SpeechOther               SpeechErrorKind = "OTHER"
)

// SpeechError is reported by the speech capture controller. Code keeps the
// raw engine code for OTHER.
type SpeechError struct {
	Kind SpeechErrorKind
	Code string
}

func (e *SpeechError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("speech error [%s]: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("speech error [%s]", e.Kind)
}

func (e *SpeechError) UserMessage() string {
	switch e.Kind {
	case SpeechUnsupported:
		return "Reconhecimento de voz não suportado neste dispositivo."
	case SpeechPermissionDenied:
		return "Permissão do microfone negada."
	case SpeechNoSpeech:
		return "Não ouvi nada. Tente falar novamente."
	case SpeechNetwork:
		return "Erro de rede no reconhecimento de voz."
	case SpeechBlocked:
		return "O microfone foi bloqueado. Verifique as permissões."
	case SpeechPermissionOrTimeout:
		return "O microfone não respondeu. Verifique a permissão e tente de novo."
	default:
		return fmt.Sprintf("Erro no reconhecimento de voz: %s", e.Code)
	}
}

// ErrClassificationEmpty means the classifier understood zero intents.
type ErrClassificationEmpty struct {
	Text string
}

func (e *ErrClassificationEmpty) Error() string {
	return "classification returned no actions"
}

func (e *ErrClassificationEmpty) UserMessage() string {
	return "Não entendi o comando. Tente descrever de outra forma."
}

// ErrClassificationTransport means the classifier failed after retries.
type ErrClassificationTransport struct {
	Err error
}

func (e *ErrClassificationTransport) Error() string {
	return fmt.Sprintf("classification failed: %v", e.Err)
}

func (e *ErrClassificationTransport) Unwrap() error {
	return e.Err
}

func (e *ErrClassificationTransport) UserMessage() string {
	return "Não foi possível processar o comando. Verifique sua conexão e tente de novo."
}

// ErrCommitRejected means nothing was written: validation or the first write failed.
type ErrCommitRejected struct {
	Err error
}

func (e *ErrCommitRejected) Error() string {
	return fmt.Sprintf("commit rejected: %v", e.Err)
}

func (e *ErrCommitRejected) Unwrap() error {
	return e.Err
}

func (e *ErrCommitRejected) UserMessage() string {
	var v *ErrValidation
	if errors.As(e.Err, &v) && v.Field == "customer_name" {
		return "Informe o nome do cliente para lançar o fiado."
	}
	return "Erro ao salvar. Verifique os dados e tente novamente."
}

// ErrCommitPartialFailure means an earlier step was written and a later one
// failed. The written step is not rolled back.
type ErrCommitPartialFailure struct {
	Step          string // "debt" or "products"
	TransactionID string
	DebtID        string
	Err           error
}

func (e *ErrCommitPartialFailure) Error() string {
	return fmt.Sprintf("commit partially applied (transaction %s), step %s failed: %v", e.TransactionID, e.Step, e.Err)
}

func (e *ErrCommitPartialFailure) Unwrap() error {
	return e.Err
}

func (e *ErrCommitPartialFailure) UserMessage() string {
	return "Erro ao salvar. Tente novamente."
}

// ErrDraftLocked means an edit touched fields already persisted by a
// partially failed commit.
type ErrDraftLocked struct {
	Fields []string
}

func (e *ErrDraftLocked) Error() string {
	return fmt.Sprintf("draft already partially committed, fields locked: %s", strings.Join(e.Fields, ", "))
}

func (e *ErrDraftLocked) UserMessage() string {
	return "O lançamento já foi salvo. Só o valor do fiado ainda pode ser corrigido; para mudar o resto, descarte e registre de novo."
}

// ErrInvalidPhase means an operation is not allowed in the session's current phase.
type ErrInvalidPhase struct {
	Operation string
	Phase     string
}

func (e *ErrInvalidPhase) Error() string {
	return fmt.Sprintf("operation %s not allowed in phase %s", e.Operation, e.Phase)
}

func (e *ErrInvalidPhase) UserMessage() string {
	return "Ação indisponível neste momento."
}

// ErrBusy means a classification or commit is already in flight.
type ErrBusy struct {
	Operation string
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("%s already in progress", e.Operation)
}

func (e *ErrBusy) UserMessage() string {
	return "Aguarde, ainda estou processando."
}
