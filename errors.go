package taskengine

import (
	"errors"
	"fmt"
)

// Error variables returned by the engine's components. Callers match them with errors.Is.
var (
	// ErrTaskNotFound is returned when a requested task does not exist in the tenant.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskAlreadyExists is returned by AddTask when the (tenant, id) pair is taken.
	ErrTaskAlreadyExists = errors.New("task already exists")
	// ErrPushNotificationConfigNotFound is returned when a push notification config does not exist.
	ErrPushNotificationConfigNotFound = errors.New("push notification config not found")
	// ErrUnsupportedOperation is returned when an action is not valid for the current task state.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrTaskNotCancelable is returned when cancel is attempted outside the cancelable states.
	ErrTaskNotCancelable = errors.New("task cannot be canceled")
	// ErrContention is returned when optimistic concurrency retries are exhausted.
	ErrContention = errors.New("optimistic concurrency retries exhausted")
	// ErrVerificationFailed is returned when a push notification URL fails verification.
	ErrVerificationFailed = errors.New("push notification url verification failed")
	// ErrAgentFailure wraps opaque failures surfaced from the agent runtime.
	ErrAgentFailure = errors.New("agent failure")
	// ErrPushNotificationNotSupported is returned by config operations when push notifications are disabled.
	ErrPushNotificationNotSupported = errors.New("push notification is not supported")
	// ErrInvalidParams is returned for malformed requests.
	ErrInvalidParams = errors.New("invalid parameters")
)

// ErrorKind names one entry of the error taxonomy.
type ErrorKind string

const (
	ErrorKindUnknown            ErrorKind = "unknown"
	ErrorKindNotFound           ErrorKind = "not-found"
	ErrorKindAlreadyExists      ErrorKind = "already-exists"
	ErrorKindUnsupported        ErrorKind = "unsupported-operation"
	ErrorKindNotCancelable      ErrorKind = "not-cancelable"
	ErrorKindContention         ErrorKind = "contention"
	ErrorKindVerificationFailed ErrorKind = "verification-failed"
	ErrorKindAgentFailure       ErrorKind = "agent-failure"
	ErrorKindInvalidParams      ErrorKind = "invalid-params"
)

// KindOf classifies err. Verification failures are reported as such even
// though they also match ErrUnsupportedOperation.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrVerificationFailed):
		return ErrorKindVerificationFailed
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrPushNotificationConfigNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrTaskAlreadyExists):
		return ErrorKindAlreadyExists
	case errors.Is(err, ErrUnsupportedOperation), errors.Is(err, ErrPushNotificationNotSupported):
		return ErrorKindUnsupported
	case errors.Is(err, ErrTaskNotCancelable):
		return ErrorKindNotCancelable
	case errors.Is(err, ErrContention):
		return ErrorKindContention
	case errors.Is(err, ErrAgentFailure):
		return ErrorKindAgentFailure
	case errors.Is(err, ErrInvalidParams):
		return ErrorKindInvalidParams
	default:
		return ErrorKindUnknown
	}
}

func taskNotFound(taskID string) error {
	return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}
