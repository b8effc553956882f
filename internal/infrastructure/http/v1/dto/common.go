// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"strings"
	"time"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/domain"
)

// DateLayout is the calendar date format accepted by the API.
const DateLayout = "2006-01-02"

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// FromListResult wraps a domain page.
func FromListResult[T any](r domain.ListResult[T]) ListResponse {
	items := r.Items
	if items == nil {
		items = []T{}
	}
	return ListResponse{
		Items:      items,
		TotalCount: r.TotalCount,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}

// ItemsResponse wraps an unpaginated collection.
type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}

// NewItemsResponse never renders items as null.
func NewItemsResponse[T any](items []T) ItemsResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ItemsResponse[T]{Items: items}
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Parsing helpers ---

// ParseDate reads a YYYY-MM-DD value as midnight UTC.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, apperror.NewValidation(field+" must be a YYYY-MM-DD date").WithDetail("field", field)
	}
	return t, nil
}

// ParseOptionalDate is ParseDate for nullable fields.
func ParseOptionalDate(field string, value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	t, err := ParseDate(field, *value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseID reads a UUID field.
func ParseID(field, value string) (id.ID, error) {
	v, err := id.Parse(value)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid "+field).WithDetail("field", field)
	}
	return v, nil
}

// ParseOptionalID is ParseID for nullable fields.
func ParseOptionalID(field string, value *string) (*id.ID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	v, err := ParseID(field, *value)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
