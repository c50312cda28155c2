package dto

import "net/http"

// API error codes returned in ErrorInfo.Code
const (
	ErrCodeInternal        = "ERR_INTERNAL"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	ErrCodeUnauthorized    = "ERR_UNAUTHORIZED"
	ErrCodeNotFound        = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists   = "ERR_ALREADY_EXISTS"
	ErrCodeBusinessRule    = "ERR_BUSINESS_RULE"
	ErrCodeSyncInProgress  = "ERR_SYNC_IN_PROGRESS"
	ErrCodeSyncNotAllowed  = "ERR_SYNC_NOT_ALLOWED"
	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
	ErrCodeUnavailable     = "ERR_UNAVAILABLE"
)

var codeStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeAlreadyExists:   http.StatusConflict,
	ErrCodeBusinessRule:    http.StatusUnprocessableEntity,
	ErrCodeSyncInProgress:  http.StatusConflict,
	ErrCodeSyncNotAllowed:  http.StatusUnprocessableEntity,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the status for an API code, 500 for unknown codes
func GetHTTPStatus(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodes folds the codes raised by the domain packages onto API codes
var domainCodes = map[string]string{
	"SYNC_RECORD_NOT_FOUND":     ErrCodeNotFound,
	"CONNECTION_PAIR_NOT_FOUND": ErrCodeNotFound,
	"COMPANY_NOT_FOUND":         ErrCodeNotFound,
	"PRODUCT_NOT_FOUND":         ErrCodeNotFound,
	"PRICING_RULE_NOT_FOUND":    ErrCodeNotFound,
	"SYNC_RECORD_EXISTS":        ErrCodeAlreadyExists,
	"SYNC_IN_PROGRESS":          ErrCodeSyncInProgress,
	"SYNC_NOT_ALLOWED":          ErrCodeSyncNotAllowed,
	"SUPPLIER_MISMATCH":         ErrCodeBusinessRule,
	"INVALID_NAME":              ErrCodeInvalidInput,
	"INVALID_SKU":               ErrCodeInvalidInput,
	"INVALID_PRICE":             ErrCodeInvalidInput,
	"INVALID_STOCK":             ErrCodeInvalidInput,
	"INVALID_SUPPLIER":          ErrCodeInvalidInput,
	"INVALID_TIER":              ErrCodeInvalidInput,
	"INVALID_RULE_TYPE":         ErrCodeInvalidInput,
}

// NormalizeErrorCode maps a domain code to its API code. API codes and
// unknown codes pass through.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainCodes[code]; ok {
		return apiCode
	}
	return code
}
