package mockapi

import (
	"time"

	"github.com/oriys/vantage/internal/dashboard"
)

var statusColors = map[string]string{
	"In Progress": "text-blue-400 border-blue-400/20 bg-blue-400/10",
	"Completed":   "text-green-400 border-green-400/20 bg-green-400/10",
	"On Hold":     "text-gray-400 border-gray-400/20 bg-gray-400/10",
	"Pending":     "text-yellow-400 border-yellow-400/20 bg-yellow-400/10",
}

func statusColor(status string) string {
	if c, ok := statusColors[status]; ok {
		return c
	}
	return statusColors["In Progress"]
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedStats() []dashboard.StatCard {
	return []dashboard.StatCard{
		{ID: 1, Title: "Total Projects", Value: 15, Change: "+5", Icon: "📊"},
		{ID: 2, Title: "Total Task", Value: 10, Change: "+2", Icon: "📋"},
		{ID: 3, Title: "In Reviews", Value: 23, Change: "+12", Icon: "👁️"},
		{ID: 4, Title: "Completed Tasks", Value: 50, Change: "+15", Icon: "✅"},
	}
}

func seedTasks() []dashboard.Task {
	return []dashboard.Task{
		{ID: 1, Name: "Prepare Q2 report", Project: "Fintech Project", ProjectColor: "bg-blue-500", Due: "12 Mar 2024"},
		{ID: 2, Name: "Finalize homepage design", Project: "Brodo Redesign", ProjectColor: "bg-purple-500", Due: "12 Mar 2024"},
		{ID: 3, Name: "Review onboarding checklist", Project: "HR Setup", ProjectColor: "bg-cyan-500", Due: "12 Mar 2024"},
		{ID: 4, Name: "Finalize homepage design", Project: "Lucas Projects", ProjectColor: "bg-indigo-500", Due: "12 Mar 2024"},
		{ID: 5, Name: "Finalize homepage design", Project: "All in One Project", ProjectColor: "bg-pink-500", Due: "12 Mar 2024"},
	}
}

func seedProjects() []dashboard.Project {
	return []dashboard.Project{
		{
			ID: 1, Name: "Fintech Project", Status: "In Progress", StatusColor: statusColor("In Progress"),
			Progress: 70, Total: 20, Done: 14, Due: "12 Mar 2024",
			Owner: "Michael M", OwnerImg: "https://i.pravatar.cc/150?u=1",
			Description: "A comprehensive fintech platform for managing financial transactions and analytics.",
			Tags:        []string{"Finance", "Analytics", "Dashboard"},
			CreatedAt:   mustTime("2024-01-15T10:00:00Z"),
			UpdatedAt:   mustTime("2024-03-01T14:30:00Z"),
		},
		{
			ID: 2, Name: "Brodo Redesign", Status: "Completed", StatusColor: statusColor("Completed"),
			Progress: 100, Total: 25, Done: 25, Due: "16 Mar 2024",
			Owner: "Jhon Cena", OwnerImg: "https://i.pravatar.cc/150?u=2",
			Description: "Complete redesign of the Brodo e-commerce platform with modern UI/UX.",
			Tags:        []string{"Design", "E-commerce", "UI/UX"},
			CreatedAt:   mustTime("2024-01-20T09:00:00Z"),
			UpdatedAt:   mustTime("2024-03-10T16:45:00Z"),
		},
		{
			ID: 3, Name: "HR Setup", Status: "On Hold", StatusColor: statusColor("On Hold"),
			Progress: 40, Total: 20, Done: 8, Due: "18 May 2024",
			Owner: "Dawne Jay", OwnerImg: "https://i.pravatar.cc/150?u=3",
			Description: "Setting up HR management system for employee onboarding and tracking.",
			Tags:        []string{"HR", "Management", "Internal"},
			CreatedAt:   mustTime("2024-02-01T11:00:00Z"),
			UpdatedAt:   mustTime("2024-02-28T10:15:00Z"),
		},
	}
}

func seedPerformance() dashboard.Performance {
	return dashboard.Performance{
		Overall: 86,
		Change:  "+15%",
		Period:  "vs last Week",
		Data: []dashboard.PerformancePoint{
			{Day: "Mon", Value: 40, Label: "+82%"},
			{Day: "Tue", Value: 60, Label: "+51%"},
			{Day: "Wed", Value: 85, Label: "+86%", Active: true},
			{Day: "Thu", Value: 45, Label: "+45%"},
			{Day: "Fri", Value: 70, Label: "+82%"},
		},
	}
}

func seedSummary() dashboard.Summary {
	return dashboard.Summary{TasksDueToday: 4, OverdueTasks: 2, UpcomingDeadlines: 8}
}
