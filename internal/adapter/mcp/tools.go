package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/ReviewLoop/internal/domain/inspection"
	"github.com/Strob0t/ReviewLoop/internal/domain/revision"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.getLatestReadyBuildTool(),
		s.getBuildTool(),
		s.submitInspectionTool(),
		s.requestRevisionTool(),
		s.getPendingRevisionsTool(),
		s.approveBuildTool(),
	)
}

func (s *Server) getLatestReadyBuildTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_latest_ready_build",
		mcplib.WithDescription("Get the newest build of a project that signalled READY_FOR_REVIEW and has no verdict yet"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project to poll"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetLatestReadyBuild}
}

func (s *Server) getBuildTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_build",
		mcplib.WithDescription("Get a build by its build_id, including diff, test evidence, and review state"),
		mcplib.WithString("build_id",
			mcplib.Required(),
			mcplib.Description("The build to look up"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetBuild}
}

func (s *Server) submitInspectionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("submit_inspection",
		mcplib.WithDescription("Submit a pass/fail verdict for a build. Idempotent per (build, inspector): a replay returns the stored verdict."),
		mcplib.WithString("build_id", mcplib.Required(), mcplib.Description("The inspected build")),
		mcplib.WithString("inspector", mcplib.Required(), mcplib.Description("Identifier of the inspecting model")),
		mcplib.WithBoolean("passed", mcplib.Required(), mcplib.Description("Whether the build passed inspection")),
		mcplib.WithArray("issues", mcplib.Description("Structured findings, each with severity, description, and optional file/line/evidence/fix_hint")),
		mcplib.WithString("suggestions", mcplib.Description("Free-form improvement suggestions")),
		mcplib.WithNumber("confidence", mcplib.Description("Verdict confidence between 0 and 1")),
		mcplib.WithString("raw_response", mcplib.Description("Raw model output, kept for audit")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSubmitInspection}
}

func (s *Server) requestRevisionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("request_revision",
		mcplib.WithDescription("Record structured feedback for a failed build so the builder can act on it"),
		mcplib.WithString("build_id", mcplib.Required(), mcplib.Description("The build to revise")),
		mcplib.WithString("feedback_summary", mcplib.Required(), mcplib.Description("One-paragraph summary of what must change")),
		mcplib.WithArray("priority_fixes", mcplib.Required(), mcplib.Description("Ordered list of fixes, most important first")),
		mcplib.WithString("patch_guidance", mcplib.Description("Concrete guidance on how to patch")),
		mcplib.WithArray("do_not_change", mcplib.Description("Files or areas the builder must leave alone")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleRequestRevision}
}

func (s *Server) getPendingRevisionsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_pending_revisions",
		mcplib.WithDescription("List open revision requests for a project, newest first"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("The project to poll")),
		mcplib.WithString("build_id", mcplib.Description("Narrow the list to one build")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetPendingRevisions}
}

func (s *Server) approveBuildTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("approve_build",
		mcplib.WithDescription("Run the approval gate for a build. The result carries an explicit outcome; only 'approved' deploys."),
		mcplib.WithString("build_id", mcplib.Required(), mcplib.Description("The build to approve")),
		mcplib.WithString("approved_by", mcplib.Description("Human approver, required when the build touched guarded paths")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleApproveBuild}
}

func (s *Server) handleGetLatestReadyBuild(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.deps.Builds == nil {
		return mcplib.NewToolResultError("build service not configured"), nil
	}
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	b, err := s.deps.Builds.LatestReady(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("no ready build for project %s", projectID), err), nil
	}
	return resultJSON(b)
}

func (s *Server) handleGetBuild(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.deps.Builds == nil {
		return mcplib.NewToolResultError("build service not configured"), nil
	}
	buildID := req.GetString("build_id", "")
	if buildID == "" {
		return mcplib.NewToolResultError("build_id is required"), nil
	}
	b, err := s.deps.Builds.Get(ctx, buildID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get build %s", buildID), err), nil
	}
	return resultJSON(b)
}

func (s *Server) handleSubmitInspection(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review service not configured"), nil
	}
	args := req.GetArguments()

	sub := &inspection.SubmitRequest{
		BuildID:     req.GetString("build_id", ""),
		Inspector:   req.GetString("inspector", ""),
		Passed:      req.GetBool("passed", false),
		Suggestions: req.GetString("suggestions", ""),
		Confidence:  req.GetFloat("confidence", 0),
		RawResponse: req.GetString("raw_response", ""),
	}
	if raw, ok := args["issues"]; ok && raw != nil {
		issues, err := decodeAs[[]inspection.Issue](raw)
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("invalid issues", err), nil
		}
		sub.Issues = issues
	}

	insp, created, err := s.deps.Reviews.SubmitInspection(ctx, sub)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to submit inspection", err), nil
	}
	return resultJSON(map[string]any{"created": created, "inspection": insp})
}

func (s *Server) handleRequestRevision(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review service not configured"), nil
	}
	cr := &revision.CreateRequest{
		BuildID:         req.GetString("build_id", ""),
		FeedbackSummary: req.GetString("feedback_summary", ""),
		PriorityFixes:   req.GetStringSlice("priority_fixes", nil),
		PatchGuidance:   req.GetString("patch_guidance", ""),
		DoNotChange:     req.GetStringSlice("do_not_change", nil),
	}
	rv, err := s.deps.Reviews.RequestRevision(ctx, cr)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to request revision", err), nil
	}
	return resultJSON(rv)
}

func (s *Server) handleGetPendingRevisions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review service not configured"), nil
	}
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	list, err := s.deps.Reviews.PendingRevisions(ctx, projectID, req.GetString("build_id", ""))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list pending revisions", err), nil
	}
	if list == nil {
		list = []*revision.Revision{}
	}
	return resultJSON(list)
}

func (s *Server) handleApproveBuild(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review service not configured"), nil
	}
	buildID := req.GetString("build_id", "")
	if buildID == "" {
		return mcplib.NewToolResultError("build_id is required"), nil
	}
	res, err := s.deps.Reviews.ApproveBuild(ctx, buildID, req.GetString("approved_by", ""))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("approval gate failed", err), nil
	}
	return resultJSON(res)
}

// resultJSON marshals v into a text tool result.
func resultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

// decodeAs round-trips a loosely typed argument through JSON into T.
func decodeAs[T any](raw any) (T, error) {
	var out T
	data, err := json.Marshal(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
