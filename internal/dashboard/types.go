package dashboard

import "time"

// StatCard is one headline figure of the dashboard.
type StatCard struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Value  int    `json:"value"`
	Change string `json:"change"`
	Icon   string `json:"icon,omitempty"`
}

// Task is an open task on the dashboard.
type Task struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Project      string `json:"project"`
	ProjectColor string `json:"projectColor,omitempty"`
	Due          string `json:"due"`
	Completed    bool   `json:"completed"`
}

// Project is a tracked project.
type Project struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	StatusColor string    `json:"statusColor,omitempty"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	Done        int       `json:"done"`
	Due         string    `json:"due"`
	Owner       string    `json:"owner"`
	OwnerImg    string    `json:"ownerImg,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectInput is the writable part of a project.
type ProjectInput struct {
	Name        string   `json:"name"`
	Status      string   `json:"status,omitempty"`
	Progress    int      `json:"progress,omitempty"`
	Total       int      `json:"total,omitempty"`
	Done        int      `json:"done,omitempty"`
	Due         string   `json:"due,omitempty"`
	Owner       string   `json:"owner,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ProjectUpdate addresses an update to an existing project.
type ProjectUpdate struct {
	ID    int
	Input ProjectInput
}

// PerformancePoint is one bar of the performance chart.
type PerformancePoint struct {
	Day    string `json:"day"`
	Value  int    `json:"value"`
	Label  string `json:"label,omitempty"`
	Active bool   `json:"active,omitempty"`
}

// Performance is the weekly performance chart.
type Performance struct {
	Overall int                `json:"overall"`
	Change  string             `json:"change"`
	Period  string             `json:"period"`
	Data    []PerformancePoint `json:"data"`
}

// Summary counts upcoming work.
type Summary struct {
	TasksDueToday     int `json:"tasksDueToday"`
	OverdueTasks      int `json:"overdueTasks"`
	UpcomingDeadlines int `json:"upcomingDeadlines"`
}

// Overview is the combined dashboard payload.
type Overview struct {
	Stats       []StatCard  `json:"stats"`
	Tasks       []Task      `json:"tasks"`
	Projects    []Project   `json:"projects"`
	Performance Performance `json:"performance"`
	Summary     Summary     `json:"summary"`
}

// Health is the API liveness report. It is served without an envelope.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
