// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the StayKeep dashboard core to LLM clients via stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/staykeep/internal/checklist"
	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/identity"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/rules"
	"github.com/starford/staykeep/internal/scope"
	"github.com/starford/staykeep/internal/selection"
	"github.com/starford/staykeep/internal/viewstate"
)

// Deps are the collaborators the tools read from. Checklist and Photos may
// be nil, which leaves their tools unregistered. User is recorded as the
// inspector of completed inspections.
type Deps struct {
	Selection *selection.Store
	Checklist *checklist.Synchronizer
	User      *identity.User
	Templates entity.Repository[models.ChecklistTemplate]
	Records   entity.Repository[models.InspectionRecord]
	Items     entity.Repository[models.InventoryItem]
	Damage    entity.Repository[models.DamageReport]
	Photos    PhotoUploader
}

// Server wraps the MCP server with StayKeep tools.
type Server struct {
	mcp  *server.MCPServer
	deps Deps
	nav  *viewstate.Navigator
	now  func() time.Time
}

// New creates a new MCP server with all StayKeep tools registered.
func New(deps Deps) *Server {
	s := &Server{deps: deps, nav: viewstate.NewNavigator(), now: time.Now}

	s.mcp = server.NewMCPServer(
		"StayKeep",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_properties",
		mcp.WithDescription("List the properties visible to the current user."),
	), s.listProperties)

	s.mcp.AddTool(mcp.NewTool("get_selection",
		mcp.WithDescription("Return the selected property and the scoping mode (all, property, unassigned)."),
	), s.getSelection)

	s.mcp.AddTool(mcp.NewTool("select_property",
		mcp.WithDescription("Select a property. This switches the scoping mode to 'property'."),
		mcp.WithString("property_id", mcp.Required(), mcp.Description("Id of a visible property")),
	), s.selectProperty)

	s.mcp.AddTool(mcp.NewTool("set_property_mode",
		mcp.WithDescription("Change the scoping mode. Mode 'property' needs a selected property, "+
			"either already selected or given as property_id."),
		mcp.WithString("mode", mcp.Required(), mcp.Description("One of all, property, unassigned")),
		mcp.WithString("property_id", mcp.Description("Optional property to select at the same time")),
	), s.setPropertyMode)

	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List checklist templates in the current scope."),
	), s.listTemplates)

	s.mcp.AddTool(mcp.NewTool("list_inspections",
		mcp.WithDescription("List saved inspection records in the current scope, newest first."),
		mcp.WithString("template_id", mcp.Description("Only records of this template")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 20)")),
	), s.listInspections)

	s.mcp.AddTool(mcp.NewTool("inventory_report",
		mcp.WithDescription("Summarize inventory in the current scope: stock status per item, "+
			"items needing restock and the total value."),
	), s.inventoryReport)

	s.mcp.AddTool(mcp.NewTool("claim_deadlines",
		mcp.WithDescription("List damage claims still open in the current scope with their "+
			"deadlines and urgency, most urgent first."),
	), s.claimDeadlines)

	s.mcp.AddTool(mcp.NewTool("navigate",
		mcp.WithDescription("Move the session to another view: list, add, edit, history or detail."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("View kind")),
		mcp.WithString("id", mcp.Description("Entry id for edit and detail, template id for history")),
	), s.navigate)

	s.mcp.AddTool(mcp.NewTool("current_view",
		mcp.WithDescription("Return the session's current view."),
	), s.currentView)

	s.mcp.AddTool(mcp.NewTool("go_back",
		mcp.WithDescription("Return to the previous view."),
	), s.goBack)

	s.mcp.AddTool(mcp.NewTool("get_rules",
		mcp.WithDescription("Returns how stock status and claim deadlines are derived."),
	), s.getRules)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Dashboard Rules",
			mcp.WithResourceDescription("How stock status and claim deadlines are derived."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRulesResource,
	)

	if deps.Checklist != nil {
		s.registerInspectionTools()
	}

	if deps.Photos != nil {
		s.mcp.AddTool(mcp.NewTool("upload_photo",
			mcp.WithDescription("Upload a property or damage photo given as a base64 data URI."),
			mcp.WithString("data", mcp.Required(), mcp.Description("data:image/...;base64,... URI")),
			mcp.WithString("filename", mcp.Description("Optional file name; derived from the MIME type when empty")),
			mcp.WithString("property_id", mcp.Description("Property the photo belongs to")),
		), s.uploadPhoto)
	}

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listProperties(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.deps.Selection.UserProperties())
}

func (s *Server) getSelection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.deps.Selection.State()
	return jsonResult(map[string]any{
		"mode":              st.Mode,
		"selected_property": st.Selected,
	})
}

func (s *Server) selectProperty(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("property_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.deps.Selection.SetSelectedProperty(&models.Property{Meta: models.Meta{ID: id}}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.getSelection(ctx, req)
}

func (s *Server) setPropertyMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("mode")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := scope.ParseMode(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var p *models.Property
	if id := req.GetString("property_id", ""); id != "" {
		p = &models.Property{Meta: models.Meta{ID: id}}
	}
	if err := s.deps.Selection.SetPropertyMode(mode, p); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.getSelection(ctx, req)
}

func (s *Server) listTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.deps.Templates.List(ctx, entity.Filter{Scope: s.deps.Selection.Selection(), Order: entity.OrderName})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rows)
}

func (s *Server) listInspections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.deps.Records.List(ctx, entity.Filter{Scope: s.deps.Selection.Selection(), Order: entity.OrderCreatedDesc})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	templateID := req.GetString("template_id", "")
	out := make([]models.InspectionRecord, 0, len(rows))
	for _, r := range rows {
		if templateID != "" && r.TemplateID != templateID {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return jsonResult(out)
}

type stockLine struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Quantity  int               `json:"current_quantity"`
	Threshold int               `json:"restock_threshold"`
	Status    rules.StockStatus `json:"status"`
	UnitPrice *float64          `json:"unit_price,omitempty"`
	Value     float64           `json:"value"`
}

type inventorySummary struct {
	Items        []stockLine               `json:"items"`
	Counts       map[rules.StockStatus]int `json:"counts"`
	NeedsRestock []string                  `json:"needs_restock"`
	TotalValue   float64                   `json:"total_value"`
}

func (s *Server) inventoryReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.deps.Items.List(ctx, entity.Filter{Scope: s.deps.Selection.Selection(), Order: entity.OrderName})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sum := inventorySummary{
		Items:        make([]stockLine, 0, len(items)),
		Counts:       map[rules.StockStatus]int{rules.StockOut: 0, rules.StockLow: 0, rules.StockOK: 0},
		NeedsRestock: []string{},
		TotalValue:   rules.InventoryValue(items),
	}
	for _, it := range items {
		st := rules.ItemStock(it)
		sum.Counts[st]++
		// Lines price from the stored unit price, as the total does.
		sum.Items = append(sum.Items, stockLine{
			ID:        it.ID,
			Name:      it.Name,
			Quantity:  it.CurrentQuantity,
			Threshold: it.RestockThreshold,
			Status:    st,
			UnitPrice: it.UnitPrice,
			Value:     rules.InventoryValue([]models.InventoryItem{it}),
		})
	}
	for _, it := range rules.NeedsRestock(items) {
		sum.NeedsRestock = append(sum.NeedsRestock, it.Name)
	}
	return jsonResult(sum)
}

type claimLine struct {
	ReportID string `json:"report_id"`
	Title    string `json:"title"`
	Platform string `json:"platform"`
	rules.ClaimView
}

func (s *Server) claimDeadlines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reports, err := s.deps.Damage.List(ctx, entity.Filter{Scope: s.deps.Selection.Selection()})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	today := s.now()
	out := []claimLine{}
	var bad []string
	for _, r := range reports {
		view, err := rules.Claim(r, today)
		if err != nil {
			bad = append(bad, r.ID)
			continue
		}
		if view.Filed {
			continue
		}
		out = append(out, claimLine{ReportID: r.ID, Title: r.Title, Platform: r.Platform, ClaimView: view})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysRemaining < out[j].DaysRemaining })
	if len(bad) > 0 {
		return jsonResult(map[string]any{"claims": out, "invalid_dates": bad})
	}
	return jsonResult(map[string]any{"claims": out})
}

func (s *Server) navigate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := viewstate.Parse(strings.ToLower(kind), req.GetString("id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.nav.Go(v); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.currentView(ctx, req)
}

func (s *Server) currentView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := viewstate.Encode(s.nav.Current())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) goBack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.nav.Back()
	return s.currentView(ctx, req)
}

func (s *Server) getRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DashboardRules), nil
}

func (s *Server) readRulesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     DashboardRules,
		},
	}, nil
}

func errorf(format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...))
}
