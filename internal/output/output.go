package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oriys/vantage/internal/dashboard"
	"github.com/oriys/vantage/internal/logging"
)

// Format represents output format
type Format string

const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "wide":
		return FormatWide
	default:
		return FormatTable
	}
}

// Printer handles formatted output
type Printer struct {
	format  Format
	writer  io.Writer
	noColor bool
}

// NewPrinter creates a new printer
func NewPrinter(format Format) *Printer {
	return &Printer{
		format:  format,
		writer:  os.Stdout,
		noColor: os.Getenv("NO_COLOR") != "",
	}
}

// SetWriter sets the output writer
func (p *Printer) SetWriter(w io.Writer) {
	p.writer = w
}

// SetNoColor disables ANSI colors
func (p *Printer) SetNoColor(noColor bool) {
	p.noColor = noColor
}

// Structured reports whether the printer emits JSON or YAML
func (p *Printer) Structured() bool {
	return p.format == FormatJSON || p.format == FormatYAML
}

// Print outputs data in the configured format
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatJSON:
		return p.printJSON(data)
	case FormatYAML:
		return p.printYAML(data)
	default:
		// Table and Wide are handled by specific methods
		return p.printJSON(data)
	}
}

func (p *Printer) printJSON(data any) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (p *Printer) printYAML(data any) error {
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	return enc.Encode(data)
}

// Color codes
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"
)

// Colorize adds color to text
func (p *Printer) Colorize(color, text string) string {
	if p.noColor {
		return text
	}
	return color + text + Reset
}

// TableWriter creates a tabwriter for aligned output
func (p *Printer) TableWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
}

// PrintStats prints the headline figures
func (p *Printer) PrintStats(stats []dashboard.StatCard) error {
	if p.Structured() {
		return p.Print(stats)
	}
	if len(stats) == 0 {
		fmt.Fprintln(p.writer, "No stats available")
		return nil
	}

	w := p.TableWriter()
	fmt.Fprintln(w, p.Colorize(Bold, "METRIC\tVALUE\tCHANGE"))
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%s\n", s.Title, s.Value, p.change(s.Change))
	}
	return w.Flush()
}

// PrintTasks prints open tasks
func (p *Printer) PrintTasks(tasks []dashboard.Task) error {
	if p.Structured() {
		return p.Print(tasks)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(p.writer, "No tasks found")
		return nil
	}

	w := p.TableWriter()
	fmt.Fprintln(w, p.Colorize(Bold, "ID\tTASK\tPROJECT\tDUE\tDONE"))
	for _, t := range tasks {
		done := "no"
		if t.Completed {
			done = p.Colorize(Green, "yes")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Project, t.Due, done)
	}
	return w.Flush()
}

// PrintProjects prints the project list
func (p *Printer) PrintProjects(projects []dashboard.Project) error {
	if p.Structured() {
		return p.Print(projects)
	}
	if len(projects) == 0 {
		fmt.Fprintln(p.writer, "No projects found")
		return nil
	}

	w := p.TableWriter()
	if p.format == FormatWide {
		fmt.Fprintln(w, p.Colorize(Bold, "ID\tNAME\tSTATUS\tPROGRESS\tTASKS\tDUE\tOWNER\tTAGS\tUPDATED"))
	} else {
		fmt.Fprintln(w, p.Colorize(Bold, "ID\tNAME\tSTATUS\tPROGRESS\tDUE\tOWNER"))
	}

	for _, pr := range projects {
		if p.format == FormatWide {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%d/%d\t%s\t%s\t%s\t%s\n",
				pr.ID,
				p.Colorize(Cyan, pr.Name),
				p.status(pr.Status),
				pr.Progress,
				pr.Done,
				pr.Total,
				pr.Due,
				pr.Owner,
				strings.Join(pr.Tags, ","),
				formatTime(pr.UpdatedAt),
			)
		} else {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%s\t%s\n",
				pr.ID,
				p.Colorize(Cyan, pr.Name),
				p.status(pr.Status),
				pr.Progress,
				pr.Due,
				pr.Owner,
			)
		}
	}

	return w.Flush()
}

// PrintProjectDetail prints one project
func (p *Printer) PrintProjectDetail(pr dashboard.Project) error {
	if p.Structured() {
		return p.Print(pr)
	}

	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Project:"), p.Colorize(Cyan, pr.Name))
	fmt.Fprintf(p.writer, "  %s %d\n", p.Colorize(Gray, "ID:"), pr.ID)
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Status:"), p.status(pr.Status))
	fmt.Fprintf(p.writer, "  %s %d%% (%d/%d tasks)\n", p.Colorize(Gray, "Progress:"), pr.Progress, pr.Done, pr.Total)
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Due:"), pr.Due)
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Owner:"), pr.Owner)
	if pr.Description != "" {
		fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Description:"), pr.Description)
	}
	if len(pr.Tags) > 0 {
		fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Tags:"), strings.Join(pr.Tags, ", "))
	}
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Created:"), formatTime(pr.CreatedAt))
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Updated:"), formatTime(pr.UpdatedAt))
	return nil
}

// PrintPerformance prints the performance chart as bars
func (p *Printer) PrintPerformance(perf dashboard.Performance) error {
	if p.Structured() {
		return p.Print(perf)
	}

	fmt.Fprintf(p.writer, "%s %d%% %s %s\n",
		p.Colorize(Bold, "Performance:"), perf.Overall, p.change(perf.Change), p.Colorize(Gray, perf.Period))
	for _, pt := range perf.Data {
		bar := strings.Repeat("#", max(pt.Value/5, 0))
		if pt.Active {
			bar = p.Colorize(Cyan, bar)
		}
		fmt.Fprintf(p.writer, "  %-3s %s %s\n", pt.Day, bar, p.Colorize(Gray, pt.Label))
	}
	return nil
}

// PrintSummary prints the upcoming work counters
func (p *Printer) PrintSummary(s dashboard.Summary) error {
	if p.Structured() {
		return p.Print(s)
	}

	fmt.Fprintf(p.writer, "%s %d\n", p.Colorize(Bold, "Due today:"), s.TasksDueToday)
	overdue := fmt.Sprint(s.OverdueTasks)
	if s.OverdueTasks > 0 {
		overdue = p.Colorize(Red, overdue)
	}
	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Overdue:"), overdue)
	fmt.Fprintf(p.writer, "%s %d\n", p.Colorize(Bold, "Upcoming deadlines:"), s.UpcomingDeadlines)
	return nil
}

// PrintOverview prints every dashboard section
func (p *Printer) PrintOverview(o dashboard.Overview) error {
	if p.Structured() {
		return p.Print(o)
	}

	sections := []func() error{
		func() error { return p.PrintStats(o.Stats) },
		func() error { return p.PrintSummary(o.Summary) },
		func() error { return p.PrintPerformance(o.Performance) },
		func() error { return p.PrintProjects(o.Projects) },
		func() error { return p.PrintTasks(o.Tasks) },
	}
	for i, section := range sections {
		if i > 0 {
			fmt.Fprintln(p.writer)
		}
		if err := section(); err != nil {
			return err
		}
	}
	return nil
}

// PrintResources prints the state of cached resources
func (p *Printer) PrintResources(statuses []dashboard.Status) error {
	if p.Structured() {
		return p.Print(statuses)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(p.writer, "No resources opened")
		return nil
	}

	w := p.TableWriter()
	fmt.Fprintln(w, p.Colorize(Bold, "KEY\tDATA\tSTATE\tUPDATED\tERROR"))
	for _, st := range statuses {
		state := p.Colorize(Green, "fresh")
		switch {
		case st.Loading:
			state = p.Colorize(Blue, "loading")
		case !st.Enabled:
			state = p.Colorize(Gray, "disabled")
		case st.Stale:
			state = p.Colorize(Yellow, "stale")
		}
		data := "no"
		if st.HasData {
			data = "yes"
		}
		errMsg := st.Error
		if errMsg != "" {
			errMsg = p.Colorize(Red, errMsg)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", st.Key, data, state, formatTime(st.UpdatedAt), errMsg)
	}
	return w.Flush()
}

// PrintFetch prints one settled fetch sequence
func (p *Printer) PrintFetch(entry logging.FetchLog) error {
	if p.format == FormatJSON {
		return p.printJSON(entry)
	}

	result := p.Colorize(Green, "ok")
	if !entry.Success {
		result = p.Colorize(Red, "failed")
	}
	line := fmt.Sprintf("%s %s %s",
		p.Colorize(Gray, entry.Timestamp.Format(time.RFC3339)),
		p.Colorize(Cyan, "["+entry.Key+"]"),
		result,
	)
	if entry.Attempts > 0 {
		line += fmt.Sprintf(" %dms attempts=%d", entry.DurationMs, entry.Attempts)
	}
	if entry.Error != "" {
		line += " " + p.Colorize(Red, entry.Error)
	}
	fmt.Fprintln(p.writer, line)
	return nil
}

func (p *Printer) status(status string) string {
	switch status {
	case "Completed":
		return p.Colorize(Green, status)
	case "On Hold":
		return p.Colorize(Gray, status)
	case "Pending":
		return p.Colorize(Yellow, status)
	default:
		return p.Colorize(Blue, status)
	}
}

func (p *Printer) change(change string) string {
	switch {
	case strings.HasPrefix(change, "+"):
		return p.Colorize(Green, change)
	case strings.HasPrefix(change, "-"):
		return p.Colorize(Red, change)
	default:
		return change
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// Success prints a success message
func (p *Printer) Success(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Green, "✓ ")+msg)
}

// Error prints an error message
func (p *Printer) Error(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Red, "✗ ")+msg)
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Yellow, "⚠ ")+msg)
}

// Info prints an info message
func (p *Printer) Info(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Blue, "ℹ ")+msg)
}
