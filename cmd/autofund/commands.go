package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/infrastructure/queue/nats"
	"github.com/kirillkom/autofund-client/internal/infrastructure/report"
)

func newFlagSet(c *cli, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, positional int) error {
	if err := fs.Parse(args); err != nil {
		return usageError{msg: fs.Name() + ": " + err.Error()}
	}
	if fs.NArg() < positional {
		return usageError{msg: fmt.Sprintf("%s: expected %d argument(s), got %d", fs.Name(), positional, fs.NArg())}
	}
	return nil
}

func analyzeCmd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "analyze")
	file := fs.String("file", "", "path to the IES PDF")
	nif := fs.String("nif", "", "company NIF (9 digits)")
	year := fs.String("ano", "", "fiscal year (4 digits)")
	name := fs.String("nome", "", "company name (designacao social)")
	email := fs.String("email", "", "contact email")
	extra := fs.String("context", "", "additional context for the analysis")
	download := fs.String("download", "", "report types to save when done, comma separated (excel,json)")
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}
	if *file == "" {
		return usageError{msg: "analyze: -file is required"}
	}
	fileTypes, err := parseFileTypes(*download)
	if err != nil {
		return usageError{msg: "analyze: " + err.Error()}
	}

	content, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read %s: %w", *file, err)
	}

	client := c.app.Client
	task, err := client.UploadFile(ctx, domain.UploadRequest{
		Filename:    filepath.Base(*file),
		Content:     content,
		NIF:         strings.TrimSpace(*nif),
		FiscalYear:  strings.TrimSpace(*year),
		CompanyName: strings.TrimSpace(*name),
		Email:       strings.TrimSpace(*email),
		Context:     *extra,
	}, progressPrinter(c.stderr))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "task %s submitted\n", task.ID)

	err = client.Poll(ctx, task.ID, func(update domain.Task) {
		fmt.Fprintf(c.stdout, "status: %s\n", update.Status)
	})
	if err != nil {
		return err
	}

	final, _ := client.Task(task.ID)
	if final.Status == domain.TaskStatusError {
		return domain.NewFailure(domain.CodeProcessing, 0, final.Error, false)
	}
	result := final.Result
	if result == nil {
		if result, err = client.GetTaskResult(ctx, task.ID, false); err != nil {
			return err
		}
	}
	printResult(c.stdout, result)

	if len(fileTypes) == 0 {
		return nil
	}
	saved, err := client.DownloadAll(ctx, task.ID, fileTypes)
	if err != nil {
		return err
	}
	for _, file := range saved {
		fmt.Fprintf(c.stdout, "saved %s (%d bytes) to %s\n", file.FileType, file.Size, file.Location)
	}
	return nil
}

func statusCmd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "status")
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}
	task, err := c.app.Client.GetTaskStatus(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(c.stdout, task)
}

func resultCmd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "result")
	refresh := fs.Bool("refresh", false, "bypass the local result cache")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}
	result, err := c.app.Client.GetTaskResult(ctx, fs.Arg(0), *refresh)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(c.stdout, result)
	}
	printResult(c.stdout, result)
	return nil
}

func downloadCmd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "download")
	if err := parseFlags(fs, args, 2); err != nil {
		return err
	}
	fileTypes, err := parseFileTypes(strings.Join(fs.Args()[1:], ","))
	if err != nil {
		return usageError{msg: "download: " + err.Error()}
	}
	saved, err := c.app.Client.DownloadAll(ctx, fs.Arg(0), fileTypes)
	if err != nil {
		return err
	}
	for _, file := range saved {
		fmt.Fprintf(c.stdout, "saved %s (%d bytes) to %s\n", file.FileType, file.Size, file.Location)
	}
	return nil
}

func tasksCmd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "tasks")
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}
	tasks, err := c.app.Client.ListTasks(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATUS\tCREATED\tCOMPLETED")
	for _, task := range tasks {
		completed := "-"
		if task.CompletedAt != nil && !task.CompletedAt.IsZero() {
			completed = task.CompletedAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", task.ID, task.Status, formatTime(task.CreatedAt.Time), completed)
	}
	return tw.Flush()
}

func deleteCmd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "delete")
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}
	if err := c.app.Client.DeleteTask(ctx, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "task %s deleted\n", fs.Arg(0))
	return nil
}

func healthCmd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "health")
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}
	health, err := c.app.Client.HealthCheck(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(c.stdout, health); err != nil {
		return err
	}
	if !health.Healthy() {
		return domain.NewFailure(domain.CodeServer, 0, "backend reports status "+health.Status, true)
	}
	return nil
}

func watchCmd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "watch")
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}
	if c.app.Publisher == nil {
		return usageError{msg: "watch: NATS_URL is not configured"}
	}
	return c.app.Publisher.SubscribeStatus(ctx, fs.Arg(0), func(_ context.Context, event nats.StatusEvent) {
		line := fmt.Sprintf("%s %s %s", event.ObservedAt.Format(time.RFC3339), event.TaskID, event.Status)
		if event.Optimistic {
			line += " (optimistic)"
		}
		if event.Error != "" {
			line += ": " + event.Error
		}
		fmt.Fprintln(c.stdout, line)
	})
}

func historyCmd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "history")
	limit := fs.Int("limit", 20, "number of entries to show")
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}
	if c.app.History == nil {
		return usageError{msg: "history: POSTGRES_DSN is not configured"}
	}
	if fs.NArg() == 1 {
		entry, err := c.app.History.GetByTaskID(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		return printJSON(c.stdout, entry)
	}
	entries, err := c.app.History.ListRecent(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tNIF\tYEAR\tCOMPANY\tSTATUS\tRATING\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.TaskID, e.NIF, e.FiscalYear, e.CompanyName, e.Status, dash(e.Rating), formatTime(e.CreatedAt))
	}
	return tw.Flush()
}

func inspectCmd(_ context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "inspect")
	rows := fs.Int("rows", 5, "preview rows per sheet")
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}
	summary, err := report.NewInspector(*rows).SummarizeFile(fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(c.stdout, summary)
}

func parseFileTypes(raw string) ([]domain.FileType, error) {
	var out []domain.FileType
	seen := make(map[domain.FileType]bool)
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		fileType, err := domain.ParseFileType(part)
		if err != nil {
			return nil, err
		}
		if !seen[fileType] {
			seen[fileType] = true
			out = append(out, fileType)
		}
	}
	return out, nil
}

// progressPrinter reports upload progress in 10% steps.
func progressPrinter(w io.Writer) func(domain.UploadProgress) {
	lastStep := -1
	return func(p domain.UploadProgress) {
		step := int(p.Percentage) / 10
		if step == lastStep {
			return
		}
		lastStep = step
		fmt.Fprintf(w, "upload %3.0f%% (%d/%d bytes)\n", p.Percentage, p.Loaded, p.Total)
	}
}

func printResult(w io.Writer, result *domain.AnalysisResult) {
	if result == nil {
		fmt.Fprintln(w, "no result available")
		return
	}
	meta := result.Metadata
	fmt.Fprintf(w, "company:  %s (NIF %s, %s)\n", meta.CompanyName, meta.NIF, meta.FiscalYear)
	fmt.Fprintf(w, "rating:   %s\n", result.Analysis.Rating)
	fmt.Fprintf(w, "turnover: %.2f\n", result.Financials.Turnover)
	fmt.Fprintf(w, "ebitda:   %.2f (margin %.1f%%)\n", result.Financials.EBITDA, result.Financials.EBITDAMargin*100)
	for _, rec := range result.Analysis.Recommendations {
		fmt.Fprintf(w, "  - %s\n", rec)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateTime)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
