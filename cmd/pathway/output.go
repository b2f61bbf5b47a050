package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/care-pathway-engine/internal/domain"
)

type stageRow struct {
	PersonID string `json:"person_id"`
	domain.StageResult
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	return tw
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func (c *cli) renderEvaluation(evaluation *domain.Evaluation) {
	fmt.Fprintf(c.out, "Person:    %s\n", evaluation.PersonID)
	fmt.Fprintf(c.out, "Evaluated: %s\n", evaluation.EvaluatedAt.Format(time.RFC3339))
	fmt.Fprintf(c.out, "Stage:     %s (%s)\n", evaluation.Stage.Stage, evaluation.Stage.Rule)
	fmt.Fprintf(c.out, "Open:      %d of %d tasks\n\n", len(evaluation.OpenTasks()), len(evaluation.Tasks))

	if len(evaluation.Tasks) == 0 {
		fmt.Fprintln(c.out, "No tasks scheduled.")
		return
	}

	tw := c.newTable()
	tw.AppendHeader(table.Row{"Task", "Definition", "Status", "Start", "Due", "End"})
	for _, task := range evaluation.Tasks {
		end := ""
		if task.Window.End != nil {
			end = formatDay(*task.Window.End)
		}
		tw.AppendRow(table.Row{
			task.ID, task.Definition, task.Status,
			formatDay(task.Window.Start), formatDay(task.Window.Due), end,
		})
	}
	tw.Render()
}

func (c *cli) renderBatch(result *domain.BatchEvaluationResult) {
	tw := c.newTable()
	tw.AppendHeader(table.Row{"Person", "Stage", "Open tasks", "Error"})
	for _, item := range result.Results {
		if item.Evaluation == nil {
			tw.AppendRow(table.Row{item.PersonID, "", "", item.Error})
			continue
		}
		tw.AppendRow(table.Row{
			item.PersonID, item.Evaluation.Stage.Stage, len(item.Evaluation.OpenTasks()), "",
		})
	}
	tw.AppendFooter(table.Row{"", "", fmt.Sprintf("%d ok", result.Succeeded), fmt.Sprintf("%d failed", result.Failed)})
	tw.Render()
}

func (c *cli) renderStages(stages []stageRow) {
	tw := c.newTable()
	tw.AppendHeader(table.Row{"Person", "Stage", "Rule", "Life status", "Postpartum days"})
	for _, row := range stages {
		days := ""
		if row.PostpartumDays != nil {
			days = fmt.Sprint(*row.PostpartumDays)
		}
		tw.AppendRow(table.Row{row.PersonID, row.Stage, row.Rule, row.LifeStatus, days})
	}
	tw.Render()
}

func (c *cli) renderCatalog(summaries []domain.DefinitionSummary) {
	tw := c.newTable()
	tw.AppendHeader(table.Row{"Name", "Title", "Triggers", "Target form", "Events"})
	for _, s := range summaries {
		tw.AppendRow(table.Row{s.Name, s.Title, strings.Join(s.TriggerForms, ", "), s.TargetForm, len(s.Events)})
	}
	tw.Render()
}

func (c *cli) renderSnapshots(snapshots []*domain.Snapshot) {
	if len(snapshots) == 0 {
		fmt.Fprintln(c.out, "No snapshots recorded.")
		return
	}
	tw := c.newTable()
	tw.AppendHeader(table.Row{"ID", "Evaluated", "Stage", "Life status", "Open tasks"})
	for _, snap := range snapshots {
		tw.AppendRow(table.Row{snap.ID, snap.EvaluatedAt.Format(time.RFC3339), snap.Stage, snap.LifeStatus, snap.OpenTasks})
	}
	tw.Render()
}
