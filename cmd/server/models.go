package main

import (
	"github.com/eliaszeru/Excel-splitter/history"
	"github.com/eliaszeru/Excel-splitter/rules"
)

// API Request and Response Models

// UploadResponse is returned after a dataset upload
type UploadResponse struct {
	Success      bool                `json:"success" example:"true"`
	SessionID    string              `json:"session_id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Columns      []string            `json:"columns"`
	ColumnValues map[string][]string `json:"column_values"`
	TotalRows    int                 `json:"total_rows" example:"100"`
} // @name UploadResponse

// ProcessRequest is the body of a split request
type ProcessRequest struct {
	SessionID string             `json:"session_id" binding:"required"`
	Rules     []rules.Descriptor `json:"rules" binding:"required"`
} // @name ProcessRequest

// CleanupRequest is the body of a cleanup request
type CleanupRequest struct {
	SessionID string `json:"session_id"`
} // @name CleanupRequest

// CleanupResponse reports what a cleanup removed
type CleanupResponse struct {
	Success bool `json:"success" example:"true"`
	Removed bool `json:"removed" example:"true"`
} // @name CleanupResponse

// RunsResponse lists a session's runs
type RunsResponse struct {
	SessionID string         `json:"session_id"`
	Runs      []*history.Run `json:"runs"`
} // @name RunsResponse

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	Sessions int    `json:"sessions" example:"3"`
	Database string `json:"database,omitempty" example:"connected"`
	Error    string `json:"error,omitempty"`
} // @name HealthResponse

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid request"`
	Details string `json:"details,omitempty" example:"validation failed"`
} // @name ErrorResponse
