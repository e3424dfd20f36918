package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lzqa/feature-qa/internal/orchestrator"
	"github.com/lzqa/feature-qa/internal/request"
	"github.com/lzqa/feature-qa/internal/targets"
)

// outcome is everything a run reports back, successful or not.
type outcome struct {
	Action     request.Action
	Ticket     string
	RunID      string
	Report     []orchestrator.ReportEntry
	Violations []string
	// Failure is the sanitized reason a run stopped before producing a report.
	Failure string
	Err     error
}

// writeReport prints the per-repository report as JSON to stdout. When the run stopped
// at validation, the joined violations are printed instead.
func (r *Runner) writeReport(out outcome) error {
	if r.stdout == nil {
		return nil
	}

	if len(out.Violations) > 0 {
		_, err := fmt.Fprintln(r.stdout, strings.Join(out.Violations, ", "))
		return err
	}
	if out.Report == nil {
		if out.Failure != "" {
			_, err := fmt.Fprintln(r.stdout, out.Failure)
			return err
		}
		return nil
	}

	enc := json.NewEncoder(r.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out.Report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func (r *Runner) writeStepSummary(out outcome) error {
	path := strings.TrimSpace(r.cfg.Output.SummaryFile)
	if path == "" {
		return nil
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("## feature-qa %s `%s`\n\n", out.Action, sanitizeMarkdownCell(out.Ticket)))
	builder.WriteString(renderOutcomeDetails(out))

	return appendToFile(path, "step summary", builder.String())
}

func (r *Runner) writeOutputs(out outcome) error {
	path := strings.TrimSpace(r.cfg.Output.OutputsFile)
	if path == "" {
		return nil
	}

	report := out.Report
	if report == nil {
		report = []orchestrator.ReportEntry{}
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	violations := out.Violations
	if violations == nil {
		violations = []string{}
	}
	violationsJSON, err := json.Marshal(violations)
	if err != nil {
		return fmt.Errorf("marshal violations: %w", err)
	}

	var builder strings.Builder
	writeMultilineOutput(&builder, "report", string(reportJSON))
	writeMultilineOutput(&builder, "violations", string(violationsJSON))
	builder.WriteString(fmt.Sprintf("run_id=%s\n", out.RunID))
	builder.WriteString(fmt.Sprintf("failed=%t\n", out.Err != nil))

	return appendToFile(path, "outputs", builder.String())
}

func renderOutcomeDetails(out outcome) string {
	var builder strings.Builder

	if len(out.Violations) > 0 {
		builder.WriteString("Preconditions failed:\n\n")
		for _, v := range out.Violations {
			builder.WriteString(fmt.Sprintf("- %s\n", sanitizeMarkdownCell(v)))
		}
		return builder.String()
	}

	if len(out.Report) == 0 {
		if out.Failure != "" {
			builder.WriteString(fmt.Sprintf("Run failed before any repository was processed: %s\n", sanitizeMarkdownCell(out.Failure)))
		} else if out.Err != nil {
			builder.WriteString(fmt.Sprintf("Run failed before any repository was processed: %s\n", sanitizeMarkdownCell(describeRunError(out.Err))))
		} else {
			builder.WriteString("No repositories were processed.\n")
		}
		return builder.String()
	}

	builder.WriteString("| Environment | Repository | Pipeline | Status |\n")
	builder.WriteString("| --- | --- | --- | --- |\n")
	for _, entry := range out.Report {
		pipeline := "-"
		if entry.PipelineURL != nil {
			pipeline = fmt.Sprintf("[pipeline](%s)", *entry.PipelineURL)
		}

		status := "ok"
		if entry.Error != "" {
			status = "failed: " + entry.Error
		} else if len(entry.Warnings) > 0 {
			status = "ok (" + strings.Join(entry.Warnings, "; ") + ")"
		}

		repo := "-"
		if entry.RepositoryURL != "" {
			repo = fmt.Sprintf("[repo](%s)", entry.RepositoryURL)
		}

		builder.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			sanitizeMarkdownCell(entry.Environment),
			sanitizeMarkdownCell(repo),
			sanitizeMarkdownCell(pipeline),
			sanitizeMarkdownCell(status),
		))
	}

	return builder.String()
}

// describeRunError keeps configuration problems readable and hides remote error bodies.
func describeRunError(err error) string {
	var sanitized *runError
	if errors.As(err, &sanitized) {
		return sanitized.Error()
	}
	var unknownEnv *targets.UnknownEnvironmentError
	if errors.As(err, &unknownEnv) {
		return unknownEnv.Error()
	}
	var cfgErr *orchestrator.ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.Error()
	}
	return "remote call failed"
}

func appendToFile(path, what, content string) error {
	// The directory is normally created by the CI runner; creating it is best effort.
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not create %s directory: %v\n", what, mkErr)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", what, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close %s file: %v\n", what, closeErr)
		}
	}()

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if _, err := file.WriteString(content); err != nil {
		return fmt.Errorf("write %s: %w", what, err)
	}
	return nil
}

func writeMultilineOutput(builder *strings.Builder, key, value string) {
	builder.WriteString(fmt.Sprintf("%s<<EOF\n%s\nEOF\n", key, value))
}

func sanitizeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", "<br>")
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}
