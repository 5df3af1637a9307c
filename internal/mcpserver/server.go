// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Capsule workspaces and vertices over stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/capsule/internal/assets"
	"github.com/starford/capsule/internal/engine"
	"github.com/starford/capsule/internal/models"
)

const dataFormatURI = "capsule://data-format"

// Server wraps the MCP server with Capsule tools.
type Server struct {
	mcp    *server.MCPServer
	engine *engine.Engine
	assets *assets.Store
}

// New creates a new MCP server with all Capsule tools registered.
func New(e *engine.Engine, a *assets.Store) *Server {
	s := &Server{engine: e, assets: a}

	s.mcp = server.NewMCPServer(
		"Capsule",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_workspaces",
		mcp.WithDescription("List every registered workspace with its root vertex ids."),
	), s.listWorkspaces)

	s.mcp.AddTool(mcp.NewTool("list_vertices",
		mcp.WithDescription("List the children of a vertex, or all root vertices when parent_id is empty."),
		mcp.WithString("parent_id", mcp.Description("Optional parent vertex id")),
	), s.listVertices)

	s.mcp.AddTool(mcp.NewTool("get_vertex",
		mcp.WithDescription("Read a single vertex including its derived workspace and asset directory."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Vertex id")),
	), s.getVertex)

	s.mcp.AddTool(mcp.NewTool("create_vertex",
		mcp.WithDescription("Create a vertex. Give workspace_id for a root vertex or parent_id for a child. "+
			"Read the capsule://data-format resource first."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Display title")),
		mcp.WithString("workspace_id", mcp.Description("Workspace for a root vertex")),
		mcp.WithString("parent_id", mcp.Description("Parent vertex for a child")),
		mcp.WithString("kind", mcp.Description("Free-form kind, e.g. folder or list")),
		mcp.WithString("description", mcp.Description("Optional description")),
	), s.createVertex)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the notes attached to a vertex."),
		mcp.WithString("vertex_id", mcp.Required(), mcp.Description("Vertex id")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full text of a note."),
		mcp.WithString("vertex_id", mcp.Required(), mcp.Description("Vertex id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name without extension")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Attach a new Markdown note to a vertex. The name is generated."),
		mcp.WithString("vertex_id", mcp.Required(), mcp.Description("Vertex id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Markdown text")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("list_links",
		mcp.WithDescription("List the links of a vertex in order."),
		mcp.WithString("vertex_id", mcp.Required(), mcp.Description("Vertex id")),
	), s.listLinks)

	s.mcp.AddTool(mcp.NewTool("add_link",
		mcp.WithDescription("Append a link to a vertex."),
		mcp.WithString("vertex_id", mcp.Required(), mcp.Description("Vertex id")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute URL")),
		mcp.WithString("title", mcp.Description("Optional title")),
	), s.addLink)

	s.mcp.AddTool(mcp.NewTool("add_image",
		mcp.WithDescription("Store an image in a vertex's asset directory from an http(s) URL or a base64 data URI."),
		mcp.WithString("vertex_id", mcp.Required(), mcp.Description("Vertex id")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when empty")),
	), s.addImage)

	s.mcp.AddTool(mcp.NewTool("prune_missing_workspaces",
		mcp.WithDescription("Drop workspaces whose folders no longer exist. Files are never deleted."),
	), s.pruneWorkspaces)

	s.mcp.AddTool(mcp.NewTool("get_data_format",
		mcp.WithDescription("Returns the Capsule on-disk format description."),
	), s.getDataFormat)

	s.mcp.AddResource(
		mcp.NewResource(dataFormatURI, "Capsule Data Format",
			mcp.WithResourceDescription("How workspaces, vertices and assets are stored on disk."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDataFormatResource,
	)

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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// optString returns an optional string argument, or "" when absent.
func optString(req mcp.CallToolRequest, name string) string {
	v, err := req.RequireString(name)
	if err != nil {
		return ""
	}
	return v
}

// assetDir resolves the asset directory of the vertex named by vertex_id.
func (s *Server) assetDir(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	id, err := req.RequireString("vertex_id")
	if err != nil {
		return "", err
	}
	v, err := s.engine.Vertex(ctx, id)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("vertex not found: %s", id)
	}
	if v.AssetDirectory == "" {
		return "", fmt.Errorf("vertex %s has no asset directory", id)
	}
	return v.AssetDirectory, nil
}

func (s *Server) listWorkspaces(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.engine.Workspaces(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(list), nil
}

func (s *Server) listVertices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.engine.Vertices(ctx, optString(req, "parent_id"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(list), nil
}

func (s *Server) getVertex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.engine.Vertex(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if v == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(v), nil
}

func (s *Server) createVertex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.engine.CreateVertex(ctx, models.Vertex{
		Title:       title,
		WorkspaceID: optString(req, "workspace_id"),
		ParentID:    optString(req, "parent_id"),
		Kind:        optString(req, "kind"),
		Description: optString(req, "description"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(v), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.assetDir(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := s.assets.Notes(dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	type entry struct {
		Name  string   `json:"name"`
		Title string   `json:"title,omitempty"`
		Tags  []string `json:"tags"`
	}
	out := make([]entry, 0, len(notes))
	for _, n := range notes {
		out = append(out, entry{Name: n.Name, Title: n.Title, Tags: n.Tags})
	}
	return jsonResult(out), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.assetDir(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.assets.Note(dir, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if n == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name)), nil
	}
	return mcp.NewToolResultText(n.Text), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.assetDir(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.assets.CreateNote(dir, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.Name)), nil
}

func (s *Server) listLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.assetDir(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.assets.Links(dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(links), nil
}

func (s *Server) addLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := s.assetDir(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, err := s.assets.CreateLink(dir, models.Link{URL: rawURL, Title: optString(req, "title")})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(l), nil
}

func (s *Server) pruneWorkspaces(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.engine.PruneMissingWorkspaces(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) getDataFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DataFormatContract), nil
}

func (s *Server) readDataFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      dataFormatURI,
			MIMEType: "text/markdown",
			Text:     DataFormatContract,
		},
	}, nil
}
