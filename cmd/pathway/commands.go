package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/care-pathway-engine/internal/audit"
	"github.com/care-pathway-engine/internal/bootstrap"
	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/service"
	"github.com/care-pathway-engine/internal/timeline"
)

// fixture holds a single request or a batch under "requests".
type fixture struct {
	domain.EvaluationRequest `yaml:",inline"`
	Requests                 []domain.EvaluationRequest `json:"requests" yaml:"requests"`
}

func readFixture(path string) ([]domain.EvaluationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	var f fixture
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode fixture %s: %w", path, err)
	}

	if len(f.Requests) > 0 {
		return f.Requests, nil
	}
	if f.Person.ID == "" {
		return nil, fmt.Errorf("fixture %s holds no person", path)
	}
	return []domain.EvaluationRequest{f.EvaluationRequest}, nil
}

// applyNow pins every request to the --now flag when one is given.
func applyNow(reqs []domain.EvaluationRequest, raw string) error {
	if raw == "" {
		return nil
	}
	now, ok := timeline.ParseDate(raw, time.UTC)
	if !ok {
		return fmt.Errorf("invalid --now %q: want RFC3339 or YYYY-MM-DD", raw)
	}
	for i := range reqs {
		reqs[i].Now = &now
	}
	return nil
}

func (c *cli) loadRequests(file, now string) ([]domain.EvaluationRequest, error) {
	if file == "" {
		return nil, errors.New("--file is required")
	}
	reqs, err := readFixture(file)
	if err != nil {
		return nil, err
	}
	if err := applyNow(reqs, now); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (c *cli) withEngine(ctx context.Context, fn func(*bootstrap.Engine) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	engine, err := bootstrap.NewEngine(ctx, cfg, c.logger())
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine)
}

func (c *cli) evaluateCmd() *cobra.Command {
	var file, now string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the persons in a fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := c.loadRequests(file, now)
			if err != nil {
				return err
			}
			return c.withEngine(cmd.Context(), func(engine *bootstrap.Engine) error {
				if len(reqs) == 1 {
					evaluation, err := engine.Pathway.Evaluate(cmd.Context(), &reqs[0])
					if err != nil {
						return err
					}
					if c.v.GetBool("json") {
						return c.printJSON(evaluation)
					}
					c.renderEvaluation(evaluation)
					return nil
				}

				result := engine.Pathway.BatchEvaluate(cmd.Context(), reqs)
				if c.v.GetBool("json") {
					return c.printJSON(result)
				}
				c.renderBatch(result)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture file (.json, .yaml)")
	cmd.Flags().StringVar(&now, "now", "", "evaluation instant, RFC3339 or YYYY-MM-DD")
	return cmd
}

func (c *cli) stageCmd() *cobra.Command {
	var file, now string
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Classify the care stage of the persons in a fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := c.loadRequests(file, now)
			if err != nil {
				return err
			}
			return c.withEngine(cmd.Context(), func(engine *bootstrap.Engine) error {
				stages := make([]stageRow, 0, len(reqs))
				for i := range reqs {
					stage, err := engine.Evaluator.Classify(cmd.Context(), &reqs[i])
					if err != nil {
						return fmt.Errorf("person %q: %w", reqs[i].Person.ID, err)
					}
					stages = append(stages, stageRow{PersonID: reqs[i].Person.ID, StageResult: stage})
				}
				if c.v.GetBool("json") {
					return c.printJSON(stages)
				}
				c.renderStages(stages)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture file (.json, .yaml)")
	cmd.Flags().StringVar(&now, "now", "", "evaluation instant, RFC3339 or YYYY-MM-DD")
	return cmd
}

func (c *cli) catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the task catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries := service.NewCatalog().Summaries()
			if c.v.GetBool("json") {
				return c.printJSON(summaries)
			}
			c.renderCatalog(summaries)
			return nil
		},
	}
}

func (c *cli) auditCmd() *cobra.Command {
	auditCmd := &cobra.Command{Use: "audit", Short: "Manage evaluation snapshots"}
	auditCmd.AddCommand(c.auditExportCmd())
	auditCmd.AddCommand(c.auditImportCmd())
	auditCmd.AddCommand(c.auditHistoryCmd())
	return auditCmd
}

func (c *cli) withAuditStore(ctx context.Context, fn func(store audit.Store) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	store, closer, err := bootstrap.OpenAuditStore(ctx, cfg, c.logger())
	if err != nil {
		return err
	}
	defer closer()
	return fn(store)
}

func (c *cli) auditExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all snapshots as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAuditStore(cmd.Context(), func(store audit.Store) error {
				if output == "" || output == "-" {
					return store.ExportJSON(cmd.Context(), c.out)
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				if err := store.ExportJSON(cmd.Context(), f); err != nil {
					return err
				}
				fmt.Fprintf(c.errOut, "exported snapshots to %s\n", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (c *cli) auditImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import snapshots from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			return c.withAuditStore(cmd.Context(), func(store audit.Store) error {
				imported, skipped, err := store.ImportJSON(cmd.Context(), f)
				if err != nil {
					return err
				}
				if c.v.GetBool("json") {
					return c.printJSON(map[string]int{"imported": imported, "skipped": skipped})
				}
				fmt.Fprintf(c.out, "imported %d snapshots, skipped %d\n", imported, skipped)
				return nil
			})
		},
	}
}

func (c *cli) auditHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <person-id>",
		Short: "Show recorded evaluations of one person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAuditStore(cmd.Context(), func(store audit.Store) error {
				snapshots, err := store.ListByPerson(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if c.v.GetBool("json") {
					return c.printJSON(snapshots)
				}
				c.renderSnapshots(snapshots)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum snapshots")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	migrate := &cobra.Command{Use: "migrate", Short: "Apply or roll back the audit schema in PostgreSQL"}
	for _, dir := range []struct {
		use, short string
		up         bool
	}{
		{"up", "Apply all pending migrations", true},
		{"down", "Roll back the latest migration", false},
	} {
		migrate.AddCommand(&cobra.Command{
			Use:   dir.use,
			Short: dir.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := c.loadConfig()
				if err != nil {
					return err
				}
				return bootstrap.Migrate(cmd.Context(), cfg.Database, c.logger(), dir.up)
			},
		})
	}
	return migrate
}
