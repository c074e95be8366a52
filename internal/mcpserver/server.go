// Package mcpserver exposes reminder creation, listing and cancellation as
// Model Context Protocol tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"remindd/internal/reminder"
	"remindd/internal/services/reminders"
	logx "remindd/pkg/logx"
)

const serverName = "remindd"

type Server struct {
	mcpServer *server.MCPServer
	rem       *reminders.Service
	log       logx.Logger
}

func New(rem *reminders.Service, version string, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{rem: rem, log: log.With(logx.String("comp", "mcp"))}
	s.mcpServer = server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))
	s.registerTools()
	return s
}

func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// Serve speaks MCP on in/out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.log.Info("mcp server listening on stdio")
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("create_reminder",
			mcp.WithDescription("Create a reminder. Recurring reminders fire every day at time; one-time reminders fire once at date+time. "+
				"A recurring reminder whose time already passed today fires immediately and then daily."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Notification title")),
			mcp.WithString("message", mcp.Description("Notification body")),
			mcp.WithString("time", mcp.Required(), mcp.Description("Local time of day, HH:MM (24-hour)")),
			mcp.WithString("date", mcp.Description("YYYY-MM-DD; required when recurring is false")),
			mcp.WithBoolean("recurring", mcp.Description("Fire every day (default false)")),
		),
		s.handleCreate,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List stored reminders with their next scheduled run"),
		),
		s.handleList,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("cancel_reminder",
			mcp.WithDescription("Cancel a reminder by id or unique id prefix"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder id (or prefix) from list_reminders")),
		),
		s.handleCancel,
	)
}

// reminderView is the JSON shape returned to clients.
type reminderView struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message,omitempty"`
	Time      string     `json:"time"`
	Date      *string    `json:"date"`
	Recurring bool       `json:"recurring"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	Status    string     `json:"status"`
}

func (s *Server) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := strings.TrimSpace(req.GetString("title", ""))
	hhmm := strings.TrimSpace(req.GetString("time", ""))
	date := strings.TrimSpace(req.GetString("date", ""))
	recurring := req.GetBool("recurring", false)
	if title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}
	if hhmm == "" {
		return mcp.NewToolResultError("time is required"), nil
	}
	if !recurring && date == "" {
		return mcp.NewToolResultError("date is required for a one-time reminder"), nil
	}

	var r reminder.Reminder
	if recurring {
		r = reminder.Daily(title, req.GetString("message", ""), hhmm)
	} else {
		r = reminder.Once(title, req.GetString("message", ""), date, hhmm)
	}
	c, err := s.rem.CreateReminder(ctx, r)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reminder %s stored but not scheduled: %v", c.ID, err)), nil
	}

	r.ID = c.ID
	reg := c.Registration
	var next *time.Time
	if reg.Armed {
		n := reg.Job.NextRun
		next = &n
	}
	v := view(r, next)
	switch {
	case !reg.Armed:
		v.Status = "dropped: " + reg.DropReason
	case reg.CaughtUp && reg.DeliveryErr != nil:
		v.Status = "armed; immediate delivery failed: " + reg.DeliveryErr.Error()
	case reg.CaughtUp:
		v.Status = "armed; delivered now because today's time has passed"
	}
	return jsonResult(v)
}

func (s *Server) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := s.rem.Overview()
	if len(items) == 0 {
		return mcp.NewToolResultText("No reminders."), nil
	}
	out := make([]reminderView, 0, len(items))
	for _, it := range items {
		var next *time.Time
		if it.Job != nil {
			n := it.Job.NextRun
			next = &n
		}
		out = append(out, view(it.Reminder, next))
	}
	return jsonResult(out)
}

func (s *Server) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("id", ""))
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	r, err := s.rem.Resolve(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !s.rem.CancelReminder(ctx, r.ID) {
		return mcp.NewToolResultError(fmt.Sprintf("reminder %s no longer exists", r.ID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %q (%s) cancelled.", r.Title, r.ID)), nil
}

func view(r reminder.Reminder, next *time.Time) reminderView {
	v := reminderView{
		ID:        r.ID,
		Title:     r.Title,
		Message:   r.Message,
		Time:      r.Time,
		Date:      r.Date,
		Recurring: r.Recurring,
		NextRun:   next,
		Status:    "armed",
	}
	if next == nil {
		v.Status = "inactive"
	}
	return v
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
