// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes syndication tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/syndicator/internal/apperr"
	"github.com/starford/syndicator/internal/syndication"
)

// ContractURI is the URI of the front matter contract resource.
const ContractURI = "syndicator://front-matter"

// Syndicator is the part of the engine the MCP tools use.
type Syndicator interface {
	Syndicate(ctx context.Context, req syndication.ManualRequest) (*syndication.Report, error)
	Post(ctx context.Context, id string) (*syndication.PostView, error)
	Posts(ctx context.Context, pendingOnly bool) ([]syndication.PostView, error)
}

// Server wraps the MCP server with syndication tools.
type Server struct {
	mcp *server.MCPServer
	svc Syndicator
}

// New creates a new MCP server with all tools registered.
func New(svc Syndicator, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Syndicator",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("syndication_status",
		mcp.WithDescription("Show the per-target syndication state of one post."),
		mcp.WithString("post", mcp.Required(), mcp.Description("Post slug, file name, content path or URL")),
	), s.syndicationStatus)

	s.mcp.AddTool(mcp.NewTool("list_pending",
		mcp.WithDescription("List posts that still have syndication targets without a published URL."),
	), s.listPending)

	s.mcp.AddTool(mcp.NewTool("syndicate_post",
		mcp.WithDescription("Run syndication for one post now and return the run report. "+
			"Targets inside their cooldown or backoff are left alone."),
		mcp.WithString("post", mcp.Required(), mcp.Description("Post slug, file name, content path or URL")),
	), s.syndicatePost)

	s.mcp.AddTool(mcp.NewTool("get_front_matter_contract",
		mcp.WithDescription("Returns the front matter fields the syndicator reads and writes. "+
			"Call this before editing syndication fields by hand."),
	), s.getContract)

	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Syndication Front Matter",
			mcp.WithResourceDescription("Front matter fields used to request and track syndication."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func toolJSON(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(post string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", post))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) syndicationStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	post, err := req.RequireString("post")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := s.svc.Post(ctx, post)
	if err != nil {
		return toolError(post, err), nil
	}
	return toolJSON(view)
}

func (s *Server) listPending(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	posts, err := s.svc.Posts(ctx, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(posts) == 0 {
		return mcp.NewToolResultText("no pending posts"), nil
	}
	return toolJSON(posts)
}

func (s *Server) syndicatePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	post, err := req.RequireString("post")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.svc.Syndicate(ctx, syndication.ManualRequest{Post: post})
	if err != nil {
		return toolError(post, err), nil
	}
	return toolJSON(rep)
}

func (s *Server) getContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FrontMatterContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     FrontMatterContract,
		},
	}, nil
}
