package domain

import "time"

type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

var TaskPriorities = []TaskPriority{TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityCritical}

type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

type Task struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenant_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	Tags        []string     `json:"tags,omitempty"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type IncidentRef struct {
	IncidentID string `json:"incident_id"`
	Title      string `json:"title"`
	Severity   string `json:"severity"`
	Status     string `json:"status"`
}

// IncidentSummary aggregates a tenant's incidents over a trailing window.
type IncidentSummary struct {
	TimeframeDays     int            `json:"timeframe_days"`
	TotalIncidents    int            `json:"total_incidents"`
	OpenIncidents     int            `json:"open_incidents"`
	ResolvedIncidents int            `json:"resolved_incidents"`
	BySeverity        map[string]int `json:"incidents_by_severity"`
	ByStatus          map[string]int `json:"incidents_by_status"`
	Recent            []IncidentRef  `json:"recent_incidents"`
}
