package utils

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrDuplicate    = "DUPLICATE"
	ErrInvalidInput = "INVALID_INPUT"

	// Connection admission errors
	ErrInvalidCredential = "INVALID_CREDENTIAL" // expired or malformed token
	ErrNotAuthorized     = "NOT_AUTHORIZED"     // valid identity, not a member of the target scope

	// Entity state errors
	ErrInvalidState = "INVALID_STATE" // e.g. editing a deleted message, regressing a status

	// Delivery errors
	ErrTransportFailure = "TRANSPORT_FAILURE" // a push to one connection failed; local to that connection

	// Actor communication errors
	ErrActorTimeout = "ACTOR_TIMEOUT"

	ErrDatabase = "database_error"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

// Specific error creators for common cases
func NewNotFoundError(what string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: what + " not found",
	}
}

func NewNotAuthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrNotAuthorized,
		Message: "Not authorized: " + reason,
	}
}

func NewInvalidCredentialError(reason string) *AppError {
	return &AppError{
		Code:    ErrInvalidCredential,
		Message: "Invalid credential: " + reason,
	}
}

func NewInvalidStateError(reason string) *AppError {
	return &AppError{
		Code:    ErrInvalidState,
		Message: "Invalid state: " + reason,
	}
}

func NewActorTimeoutError(actorName string) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
	}
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound:
		return 404 // http.StatusNotFound
	case ErrInvalidInput:
		return 400 // http.StatusBadRequest
	case ErrInvalidCredential:
		return 401 // http.StatusUnauthorized
	case ErrNotAuthorized:
		return 403 // http.StatusForbidden
	case ErrDuplicate:
		return 409 // http.StatusConflict
	case ErrInvalidState:
		return 409 // http.StatusConflict
	case ErrDatabase, ErrActorTimeout, ErrTransportFailure:
		return 500 // http.StatusInternalServerError
	default:
		return 500 // http.StatusInternalServerError for unknown errors
	}
}
