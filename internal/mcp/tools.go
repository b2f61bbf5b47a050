package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/logging"
	"github.com/care-pathway-engine/internal/timeline"
)

const (
	ToolEvaluatePerson = "evaluate_person"
	ToolClassifyStage  = "classify_stage"
	ToolListCatalog    = "list_task_catalog"
	ToolAuditHistory   = "person_audit_history"
	ToolEvaluateByID   = "evaluate_contact"

	maxHistoryLimit = 200
)

// EvaluateParams are the arguments of evaluate_person and classify_stage.
// Now accepts RFC3339 or a plain date.
type EvaluateParams struct {
	Person  domain.Person   `json:"person"`
	Reports []domain.Report `json:"reports"`
	Now     string          `json:"now,omitempty"`
}

// CatalogParams filter list_task_catalog by definition name.
type CatalogParams struct {
	Name string `json:"name,omitempty"`
}

// HistoryParams are the arguments of person_audit_history.
type HistoryParams struct {
	PersonID string `json:"person_id"`
	Limit    int    `json:"limit,omitempty"`
}

// ContactParams are the arguments of evaluate_contact.
type ContactParams struct {
	ContactID string `json:"contact_id"`
	Now       string `json:"now,omitempty"`
}

// HistoryResult is the payload of person_audit_history.
type HistoryResult struct {
	PersonID  string             `json:"person_id"`
	Count     int                `json:"count"`
	Snapshots []*domain.Snapshot `json:"snapshots"`
}

// toRequest builds an engine request from tool arguments.
func (p *EvaluateParams) toRequest() (*domain.EvaluationRequest, error) {
	req := &domain.EvaluationRequest{Person: p.Person, Reports: p.Reports}
	now, err := parseNow(p.Now)
	if err != nil {
		return nil, err
	}
	req.Now = now
	return req, nil
}

func parseNow(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, ok := timeline.ParseDate(raw, time.UTC)
	if !ok {
		return nil, fmt.Errorf("now must be RFC3339 or YYYY-MM-DD, got %q", raw)
	}
	return &t, nil
}

// decodeArguments copies raw tool arguments into params.
func decodeArguments(req *mcp.CallToolRequest, params any) error {
	if req == nil || req.Params == nil || req.Params.Arguments == nil {
		return nil
	}
	data, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return fmt.Errorf("failed to read arguments: %w", err)
	}
	if err := json.Unmarshal(data, params); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) handleEvaluatePerson(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params EvaluateParams
	if err := decodeArguments(req, &params); err != nil {
		return s.errorResult(ctx, domain.ErrInvalidInput, err), nil
	}
	evalReq, err := params.toRequest()
	if err != nil {
		return s.errorResult(ctx, domain.ErrInvalidDate, err), nil
	}

	evaluation, err := s.deps.Evaluator.Evaluate(ctx, evalReq)
	if err != nil {
		return s.evaluationError(ctx, err), nil
	}
	return s.jsonResult(evaluation)
}

func (s *Server) handleClassifyStage(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params EvaluateParams
	if err := decodeArguments(req, &params); err != nil {
		return s.errorResult(ctx, domain.ErrInvalidInput, err), nil
	}
	evalReq, err := params.toRequest()
	if err != nil {
		return s.errorResult(ctx, domain.ErrInvalidDate, err), nil
	}

	stage, err := s.deps.Classifier.Classify(ctx, evalReq)
	if err != nil {
		return s.evaluationError(ctx, err), nil
	}
	return s.jsonResult(stage)
}

func (s *Server) handleListCatalog(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params CatalogParams
	if err := decodeArguments(req, &params); err != nil {
		return s.errorResult(ctx, domain.ErrInvalidInput, err), nil
	}

	summaries := s.deps.Catalog.Summaries()
	if params.Name == "" {
		return s.jsonResult(summaries)
	}
	for _, summary := range summaries {
		if summary.Name == params.Name {
			return s.jsonResult([]domain.DefinitionSummary{summary})
		}
	}
	return s.errorResult(ctx, domain.ErrInvalidInput, fmt.Errorf("%w: task definition %q", domain.ErrNotFound, params.Name)), nil
}

func (s *Server) handleAuditHistory(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params HistoryParams
	if err := decodeArguments(req, &params); err != nil {
		return s.errorResult(ctx, domain.ErrInvalidInput, err), nil
	}
	if params.PersonID == "" {
		return s.errorResult(ctx, domain.ErrMissingField, errors.New("person_id is required")), nil
	}
	if s.deps.Snapshots == nil {
		return s.errorResult(ctx, domain.ErrDatabaseError, errors.New("audit history is disabled")), nil
	}
	if params.Limit <= 0 || params.Limit > maxHistoryLimit {
		params.Limit = 20
	}

	snapshots, err := s.deps.Snapshots.ListByPerson(ctx, params.PersonID, params.Limit)
	if err != nil {
		return s.errorResult(ctx, domain.ErrDatabaseError, err), nil
	}
	if snapshots == nil {
		snapshots = []*domain.Snapshot{}
	}
	return s.jsonResult(HistoryResult{PersonID: params.PersonID, Count: len(snapshots), Snapshots: snapshots})
}

func (s *Server) handleEvaluateContact(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ContactParams
	if err := decodeArguments(req, &params); err != nil {
		return s.errorResult(ctx, domain.ErrInvalidInput, err), nil
	}
	if params.ContactID == "" {
		return s.errorResult(ctx, domain.ErrMissingField, errors.New("contact_id is required")), nil
	}
	now, err := parseNow(params.Now)
	if err != nil {
		return s.errorResult(ctx, domain.ErrInvalidDate, err), nil
	}

	evalReq, err := s.deps.Source.FetchContact(ctx, params.ContactID)
	if err != nil {
		return s.errorResult(ctx, domain.ErrExternalAPI, err), nil
	}
	if now != nil {
		evalReq.Now = now
	}

	evaluation, err := s.deps.Evaluator.Evaluate(ctx, evalReq)
	if err != nil {
		return s.evaluationError(ctx, err), nil
	}
	return s.jsonResult(evaluation)
}

func (s *Server) evaluationError(ctx context.Context, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, domain.ErrInvalidPerson), errors.Is(err, domain.ErrInvalidReport):
		return s.errorResult(ctx, domain.ErrValidation, err)
	case errors.Is(err, domain.ErrAmbiguousDefinition):
		return s.errorResult(ctx, domain.ErrAmbiguousCatalog, err)
	default:
		return s.errorResult(ctx, domain.ErrInternalServer, err)
	}
}

// errorResult reports a failure inside the tool result so the client sees
// the engine error code instead of a protocol error.
func (s *Server) errorResult(ctx context.Context, code string, err error) *mcp.CallToolResult {
	ctx, requestID := logging.EnsureCorrelationID(ctx)
	logging.FromContext(ctx, s.logger).WithError(err).WithField("code", code).Warn("Tool call failed")

	payload, _ := json.Marshal(domain.NewEngineError(code, err.Error(), "", requestID))
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		IsError: true,
	}
}

func (s *Server) jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func objectSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func evaluateSchema() *jsonschema.Schema {
	return objectSchema([]string{"person"}, map[string]*jsonschema.Schema{
		"person": {
			Type:        "object",
			Description: "Contact record with id, type (c82_person), date_of_birth, sex and marital_status",
		},
		"reports": {
			Type:        "array",
			Description: "Submitted reports with id, form, reported_at and a fields tree",
			Items:       &jsonschema.Schema{Type: "object"},
		},
		"now": {
			Type:        "string",
			Description: "Evaluation instant, RFC3339 or YYYY-MM-DD. Defaults to the current time",
		},
	})
}

// toolDefinitions lists the registered tools with their input schemas.
func (s *Server) toolDefinitions() []toolDefinition {
	defs := []toolDefinition{
		{
			tool: &mcp.Tool{
				Name:        ToolEvaluatePerson,
				Description: "Derive the care-pathway stage, context and scheduled tasks for one person",
				InputSchema: evaluateSchema(),
			},
			handler: s.handleEvaluatePerson,
		},
		{
			tool: &mcp.Tool{
				Name:        ToolClassifyStage,
				Description: "Classify the care-pathway stage of one person without scheduling tasks",
				InputSchema: evaluateSchema(),
			},
			handler: s.handleClassifyStage,
		},
		{
			tool: &mcp.Tool{
				Name:        ToolListCatalog,
				Description: "List the task definitions the engine schedules from",
				InputSchema: objectSchema(nil, map[string]*jsonschema.Schema{
					"name": {Type: "string", Description: "Return only this definition"},
				}),
			},
			handler: s.handleListCatalog,
		},
		{
			tool: &mcp.Tool{
				Name:        ToolAuditHistory,
				Description: "List recorded evaluation snapshots of one person, newest first",
				InputSchema: objectSchema([]string{"person_id"}, map[string]*jsonschema.Schema{
					"person_id": {Type: "string"},
					"limit":     {Type: "integer", Description: "Maximum snapshots to return, default 20"},
				}),
			},
			handler: s.handleAuditHistory,
		},
	}

	if s.deps.Source != nil {
		defs = append(defs, toolDefinition{
			tool: &mcp.Tool{
				Name:        ToolEvaluateByID,
				Description: "Fetch a contact and its reports from the report source and evaluate it",
				InputSchema: objectSchema([]string{"contact_id"}, map[string]*jsonschema.Schema{
					"contact_id": {Type: "string"},
					"now":        {Type: "string"},
				}),
			},
			handler: s.handleEvaluateContact,
		})
	}
	return defs
}

type toolDefinition struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}
