package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Service types reported by downstream services. Upload-consuming types
// count against the daily upload dimension; the rest count against the
// query dimensions.
const (
	ServiceOCRText         = "ocr_text"
	ServiceOCRTextFile     = "ocr_text_file"
	ServiceOCRStructured   = "ocr_structured"
	ServiceDocumentProcess = "document_process"
	ServiceResearchQuery   = "research_query"
)

// IsValidServiceType reports whether a service type is one the gateway tracks
func IsValidServiceType(serviceType string) bool {
	switch serviceType {
	case ServiceOCRText, ServiceOCRTextFile, ServiceOCRStructured,
		ServiceDocumentProcess, ServiceResearchQuery:
		return true
	}
	return false
}

// IsUploadServiceType reports whether a service type consumes the daily
// upload quota dimension.
func IsUploadServiceType(serviceType string) bool {
	switch serviceType {
	case ServiceOCRTextFile, ServiceDocumentProcess:
		return true
	}
	return false
}

// UsageLog is one entry in the append-only consumption ledger. The
// idempotency key is unique per user so at-least-once callers never double
// count.
type UsageLog struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	UserID         uuid.UUID       `json:"user_id" db:"user_id"`
	ServiceType    string          `json:"service_type" db:"service_type"`
	Quantity       float64         `json:"quantity" db:"quantity"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the UsageLog model
func (UsageLog) TableName() string {
	return "usage_logs"
}

// UsageCounter is the incrementally maintained per-period counter that the
// quota enforcer's conditional update targets. One row per
// (user, period bucket, dimension).
type UsageCounter struct {
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	PeriodBucket string    `json:"period_bucket" db:"period_bucket"`
	Dimension    string    `json:"dimension" db:"dimension"`
	Used         float64   `json:"used" db:"used"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the UsageCounter model
func (UsageCounter) TableName() string {
	return "usage_counters"
}
