package util

import "errors"

var (
	// NotFound
	ErrUserNotFound    = errors.New("用户不存在")
	ErrItemNotFound    = errors.New("item not found")
	ErrSessionNotFound = errors.New("session not found")

	// InvalidInput
	ErrEmailRegistered         = errors.New("该邮箱已被注册")
	ErrInvalidReliability      = errors.New("reliability must be within [0,1]")
	ErrUnsupportedConfidence   = errors.New("unsupported confidence level")
	ErrInvalidQualityFlag      = errors.New("invalid quality flag value")
	ErrFlagReasonRequired      = errors.New("reason is required when deactivating an item")
	ErrItemNotInSession        = errors.New("item was not administered in this session")
	ErrInvalidMetricType       = errors.New("invalid reliability metric type")

	// ConflictingState
	ErrSessionNotInProgress = errors.New("session is not in progress")
	ErrSessionAlreadyDone   = errors.New("session already completed or abandoned")
)
