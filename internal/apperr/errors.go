package apperr

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced to pages
var (
	ErrBridgeUnavailable         = errors.New("native bridge unavailable")
	ErrScanFailed                = errors.New("wifi scan failed")
	ErrConnectFailed             = errors.New("wifi connect failed")
	ErrRequestFailed             = errors.New("request failed")
	ErrProvisioningRequestFailed = errors.New("provisioning request failed")
	ErrPollingTimedOut           = errors.New("provisioning polling timed out")
	ErrProvisioningTerminal      = errors.New("provisioning ended without completion")
	ErrSessionExpired            = errors.New("provisioning session expired")
	ErrMissingState              = errors.New("provisioning state missing")
	ErrInvalidState              = errors.New("invalid provisioning transition")
	ErrUnauthenticated           = errors.New("not authenticated")
	ErrInvalidInput              = errors.New("invalid input")
)

// RequestError is a non-2xx backend response
type RequestError struct {
	Op         string
	StatusCode int
	Message    string
	kind       error
}

// NewRequestError builds a RequestError. kind defaults to ErrRequestFailed.
func NewRequestError(op string, status int, message string, kind error) *RequestError {
	if kind == nil {
		kind = ErrRequestFailed
	}
	return &RequestError{Op: op, StatusCode: status, Message: message, kind: kind}
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Is matches the kind of the error and ErrRequestFailed
func (e *RequestError) Is(target error) bool {
	return target == e.kind || target == ErrRequestFailed
}

// UserMessage returns the inline error text for a failed operation
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}

	switch {
	case errors.Is(err, ErrBridgeUnavailable):
		return "이 기기에서는 WiFi 기능을 사용할 수 없습니다."
	case errors.Is(err, ErrScanFailed):
		return "WiFi 스캔 중 오류가 발생했습니다."
	case errors.Is(err, ErrConnectFailed):
		return "베개프로에 연결하지 못했습니다. 다시 시도해주세요."
	case errors.Is(err, ErrPollingTimedOut):
		return "기기 연결 시간이 초과되었습니다. 처음부터 다시 시도해주세요."
	case errors.Is(err, ErrProvisioningTerminal):
		return "기기 등록에 실패했습니다. 처음부터 다시 시도해주세요."
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrMissingState):
		return "등록 세션이 만료되었습니다. 처음부터 다시 시도해주세요."
	case errors.Is(err, ErrInvalidState):
		return "등록 단계가 올바르지 않습니다. 처음부터 다시 시도해주세요."
	case errors.Is(err, ErrInvalidInput):
		return "입력값을 확인해주세요."
	case errors.Is(err, ErrUnauthenticated):
		return "로그인이 필요합니다."
	case errors.Is(err, ErrProvisioningRequestFailed):
		return "기기 등록 코드를 발급받지 못했습니다."
	case errors.Is(err, ErrRequestFailed):
		return "서버와 통신 중 오류가 발생했습니다."
	}
	return "알 수 없는 오류가 발생했습니다."
}
