// Package mcpserver exposes read-only handover data to MCP clients over
// stdio.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"nurse-handover/backend/internal/database"
	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

const maxResults = 100

type PatientSearcher interface {
	SearchPatients(ctx context.Context, f database.PatientFilter) ([]*models.Patient, error)
}

type HandoverReader interface {
	GetHandover(ctx context.Context, id int64) (*models.Handover, error)
	ListRecent(ctx context.Context, limit int) ([]*models.HandoverDetail, error)
}

type Tools struct {
	patients  PatientSearcher
	handovers HandoverReader
	log       zerolog.Logger
}

func NewTools(patients PatientSearcher, handovers HandoverReader, log zerolog.Logger) *Tools {
	return &Tools{patients: patients, handovers: handovers, log: log.With().Str("component", "mcp").Logger()}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(t *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer("nurse-handover", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("search_patients",
		mcp.WithDescription("Search patients by name or patient id, optionally filtered by ward (room) and status."),
		mcp.WithString("query", mcp.Description("Case-insensitive substring of the name or patient id")),
		mcp.WithString("ward", mcp.Description("Case-insensitive substring of the room")),
		mcp.WithString("status", mcp.Description("Patient status"), mcp.Enum("active", "discharged", "transferred")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of patients to return")),
	), t.SearchPatients)

	s.AddTool(mcp.NewTool("get_handover",
		mcp.WithDescription("Fetch one handover with its transcription and ISBAR report."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Handover id")),
	), t.GetHandover)

	s.AddTool(mcp.NewTool("recent_handovers",
		mcp.WithDescription("List the most recent handovers with patient and nurse details."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of handovers to return, default 10")),
	), t.RecentHandovers)

	return s
}

// ServeStdio blocks serving s on stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (t *Tools) SearchPatients(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := models.PatientStatus(req.GetString("status", ""))
	if status != "" && !status.Valid() {
		return mcp.NewToolResultError("unknown patient status " + string(status)), nil
	}

	patients, err := t.patients.SearchPatients(ctx, database.PatientFilter{
		Query:  req.GetString("query", ""),
		Ward:   req.GetString("ward", ""),
		Status: status,
		Limit:  clampLimit(req.GetInt("limit", maxResults)),
	})
	if err != nil {
		return t.failure("search_patients", err), nil
	}
	return jsonResult(patients)
}

func (t *Tools) GetHandover(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil || id <= 0 {
		return mcp.NewToolResultError("id must be a positive integer"), nil
	}

	h, err := t.handovers.GetHandover(ctx, int64(id))
	if err != nil {
		return t.failure("get_handover", err), nil
	}
	return jsonResult(h)
}

func (t *Tools) RecentHandovers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := t.handovers.ListRecent(ctx, clampLimit(req.GetInt("limit", 10)))
	if err != nil {
		return t.failure("recent_handovers", err), nil
	}
	return jsonResult(list)
}

// failure turns store errors into tool errors. Only classified messages are
// shown to the client.
func (t *Tools) failure(tool string, err error) *mcp.CallToolResult {
	if errs.KindOf(err) == errs.KindInternal {
		t.log.Error().Err(err).Str("tool", tool).Msg("tool call failed")
		return mcp.NewToolResultError("internal error")
	}
	return mcp.NewToolResultError(err.Error())
}

func clampLimit(n int) int {
	if n <= 0 || n > maxResults {
		return maxResults
	}
	return n
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
