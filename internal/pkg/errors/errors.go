package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния (например, повторная вставка уникальной записи).
	ErrConflict = errors.New("resource state conflict")

	// ErrCacheUnavailable возвращается заглушкой кеша и при недоступности Redis.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrQueueFull используется, когда ограниченная очередь переполнена.
	ErrQueueFull = errors.New("queue is full")

	// ErrAccountNotFound используется, когда у пользователя нет счёта баллов.
	ErrAccountNotFound = errors.New("point account not found")

	// ErrInsufficientPoints используется, когда доступных баллов меньше стоимости.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrStopped возвращается компонентами после остановки.
	ErrStopped = errors.New("component stopped")
)
