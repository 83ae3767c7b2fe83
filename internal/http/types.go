package http

import (
	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// ProcessRequest is the request body for POST /process_request.
// Both fields must be present; text may be empty.
type ProcessRequest struct {
	UserRequest *string `json:"user_request"`
	Text        *string `json:"text"`
}

// RunRequest is the request body for POST /api/v1/runs.
//
// When Plan is present (even empty) the planner is skipped and Instruction
// is ignored. A null or missing plan means "plan the instruction".
type RunRequest struct {
	Instruction string            `json:"instruction,omitempty"`
	Text        string            `json:"text"`
	Plan        []registry.TaskID `json:"plan"`
}

// TasksResponse is the response body for GET /api/v1/tasks.
type TasksResponse struct {
	Tasks []registry.TaskID `json:"tasks"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
