package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/staykeep/internal/checklist"
	"github.com/starford/staykeep/internal/viewstate"
)

func (s *Server) registerInspectionTools() {
	s.mcp.AddTool(mcp.NewTool("start_inspection",
		mcp.WithDescription("Start an inspection from a checklist template, or resume the one in progress."),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("Checklist template id")),
	), s.startInspection)

	s.mcp.AddTool(mcp.NewTool("get_inspection",
		mcp.WithDescription("Return the inspection in progress for a template."),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("Checklist template id")),
	), s.getInspection)

	s.mcp.AddTool(mcp.NewTool("check_item",
		mcp.WithDescription("Mark an item of the inspection in progress as done or not done, optionally with notes."),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("Checklist template id")),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item id from the inspection")),
		mcp.WithBoolean("completed", mcp.Description("Done state (default true)")),
		mcp.WithString("notes", mcp.Description("Replaces the item's notes when given")),
	), s.checkItem)

	s.mcp.AddTool(mcp.NewTool("complete_inspection",
		mcp.WithDescription("Save the inspection in progress as a record and schedule the next one."),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("Checklist template id")),
	), s.completeInspection)

	s.mcp.AddTool(mcp.NewTool("discard_inspection",
		mcp.WithDescription("Drop the inspection in progress without saving."),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("Checklist template id")),
	), s.discardInspection)
}

type inspectionResult struct {
	checklist.Instance
	Done  int `json:"done"`
	Total int `json:"total"`
}

func inspectionView(in checklist.Instance) inspectionResult {
	done, total := in.Progress()
	return inspectionResult{Instance: in, Done: done, Total: total}
}

func (s *Server) startInspection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateID, err := req.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var propertyID *string
	if p := s.deps.Selection.SelectedProperty(); p != nil {
		propertyID = &p.ID
	}
	in, err := s.deps.Checklist.Start(ctx, templateID, propertyID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.nav.Open(viewstate.Detail{ID: templateID}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(inspectionView(in))
}

func (s *Server) getInspection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateID, err := req.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in, ok, err := s.deps.Checklist.Active(templateID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return errorf("no inspection in progress for %s", templateID), nil
	}
	return jsonResult(inspectionView(in))
}

func (s *Server) checkItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateID, err := req.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	itemID, err := req.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in, err := s.deps.Checklist.SetCompleted(templateID, itemID, req.GetBool("completed", true))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if notes, ok := req.GetArguments()["notes"].(string); ok {
		if in, err = s.deps.Checklist.SetNotes(templateID, itemID, notes); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return jsonResult(inspectionView(in))
}

func (s *Server) completeInspection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateID, err := req.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var by *string
	if u := s.deps.User; u != nil {
		id := u.ProfileID
		if id == "" {
			id = u.UserID
		}
		by = &id
	}
	rec, err := s.deps.Checklist.Complete(ctx, templateID, by)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.nav.Back()
	return jsonResult(rec)
}

func (s *Server) discardInspection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateID, err := req.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.deps.Checklist.Discard(templateID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.nav.Back()
	return mcp.NewToolResultText("discarded: " + templateID), nil
}
