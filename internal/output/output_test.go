package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oriys/vantage/internal/dashboard"
	"github.com/oriys/vantage/internal/logging"
)

func newTestPrinter(format Format) (*Printer, *bytes.Buffer) {
	var buf bytes.Buffer
	p := NewPrinter(format)
	p.SetWriter(&buf)
	p.SetNoColor(true)
	return p, &buf
}

var projects = []dashboard.Project{
	{ID: 1, Name: "Fintech Project", Status: "In Progress", Progress: 70, Total: 20, Done: 14, Due: "12 Mar 2024", Owner: "Michael M", Tags: []string{"Finance"}},
	{ID: 2, Name: "Brodo Redesign", Status: "Completed", Progress: 100, Total: 25, Done: 25, Due: "16 Mar 2024", Owner: "Jhon Cena"},
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatYAML, ParseFormat("yml"))
	assert.Equal(t, FormatWide, ParseFormat("wide"))
	assert.Equal(t, FormatTable, ParseFormat("bogus"))
}

func TestPrintProjectsTable(t *testing.T) {
	p, buf := newTestPrinter(FormatTable)
	require.NoError(t, p.PrintProjects(projects))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ID", "NAME", "STATUS", "PROGRESS", "DUE", "OWNER"}, strings.Fields(lines[0]))
	assert.Contains(t, lines[1], "Fintech Project")
	assert.Contains(t, lines[1], "70%")
	assert.NotContains(t, lines[1], "Finance")
}

func TestPrintProjectsWide(t *testing.T) {
	p, buf := newTestPrinter(FormatWide)
	require.NoError(t, p.PrintProjects(projects))
	assert.Contains(t, buf.String(), "TAGS")
	assert.Contains(t, buf.String(), "14/20")
	assert.Contains(t, buf.String(), "Finance")
}

func TestPrintProjectsEmpty(t *testing.T) {
	p, buf := newTestPrinter(FormatTable)
	require.NoError(t, p.PrintProjects(nil))
	assert.Equal(t, "No projects found\n", buf.String())
}

func TestPrintProjectsJSON(t *testing.T) {
	p, buf := newTestPrinter(FormatJSON)
	require.NoError(t, p.PrintProjects(projects))

	var out []dashboard.Project
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "Brodo Redesign", out[1].Name)
}

func TestPrintSummaryYAML(t *testing.T) {
	p, buf := newTestPrinter(FormatYAML)
	require.NoError(t, p.PrintSummary(dashboard.Summary{TasksDueToday: 4, OverdueTasks: 2, UpcomingDeadlines: 8}))

	var out map[string]int
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 2, out["overduetasks"])
}

func TestPrintPerformance(t *testing.T) {
	p, buf := newTestPrinter(FormatTable)
	require.NoError(t, p.PrintPerformance(dashboard.Performance{
		Overall: 86, Change: "+15%", Period: "vs last Week",
		Data: []dashboard.PerformancePoint{{Day: "Mon", Value: 40, Label: "+82%"}},
	}))
	assert.Contains(t, buf.String(), "86% +15% vs last Week")
	assert.Contains(t, buf.String(), "Mon ######## +82%")
}

func TestPrintOverviewSections(t *testing.T) {
	p, buf := newTestPrinter(FormatTable)
	require.NoError(t, p.PrintOverview(dashboard.Overview{
		Stats:    []dashboard.StatCard{{ID: 1, Title: "Total Projects", Value: 15, Change: "+5"}},
		Projects: projects,
	}))
	out := buf.String()
	assert.Contains(t, out, "Total Projects")
	assert.Contains(t, out, "Due today:")
	assert.Contains(t, out, "Fintech Project")
	assert.Contains(t, out, "No tasks found")
}

func TestPrintResources(t *testing.T) {
	p, buf := newTestPrinter(FormatTable)
	require.NoError(t, p.PrintResources([]dashboard.Status{
		{Key: "stats", HasData: true, Enabled: true, UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Key: "tasks", Enabled: true, Stale: true, Error: "HTTP 503: Service Unavailable"},
		{Key: "project-0"},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "fresh")
	assert.Contains(t, lines[1], "2026-01-01T00:00:00Z")
	assert.Contains(t, lines[2], "stale")
	assert.Contains(t, lines[2], "HTTP 503")
	assert.Contains(t, lines[3], "disabled")
}

func TestPrintFetch(t *testing.T) {
	p, buf := newTestPrinter(FormatTable)
	require.NoError(t, p.PrintFetch(logging.FetchLog{
		Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Key:        "summary",
		DurationMs: 12,
		Attempts:   2,
		Error:      "HTTP 500: Internal Server Error",
	}))
	assert.Equal(t, "2026-01-01T00:00:00Z [summary] failed 12ms attempts=2 HTTP 500: Internal Server Error\n", buf.String())
}

func TestColorize(t *testing.T) {
	p, _ := newTestPrinter(FormatTable)
	assert.Equal(t, "x", p.Colorize(Red, "x"))
	p.SetNoColor(false)
	assert.Equal(t, Red+"x"+Reset, p.Colorize(Red, "x"))
}
