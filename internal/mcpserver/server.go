// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the site's pages to LLM clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/leaf/internal/apperr"
	"github.com/starford/leaf/internal/site"
	"github.com/starford/leaf/internal/storage"
)

const siteConfigURI = "leaf://site-config"

// Server wraps the MCP server with the leaf tools.
type Server struct {
	mcp  *server.MCPServer
	site *site.Site
}

// New creates an MCP server reading pages through s.
func New(s *site.Site, version string) *Server {
	srv := &Server{site: s}

	srv.mcp = server.NewMCPServer(
		"Leaf",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	srv.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List the pages of the site, optionally below a folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for the whole site)")),
	), srv.listPages)

	srv.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read a rendered page: its title, front matter and HTML body."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL of the page (e.g. / or /notes/go/)")),
		mcp.WithString("format", mcp.Description(`"json" (default) or "html" for the full page`)),
	), srv.readPage)

	srv.mcp.AddResource(
		mcp.NewResource(siteConfigURI, "Site configuration",
			mcp.WithResourceDescription("The site config currently in effect."),
			mcp.WithMIMEType("application/json"),
		),
		srv.readSiteConfig,
	)

	return srv
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listPages(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.Trim(req.GetString("folder", ""), "/")
	pages, err := s.site.Store().Pages(folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if pages == nil {
		pages = []storage.PageInfo{}
	}
	out, _ := json.MarshalIndent(pages, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

type pageResult struct {
	URL   string            `json:"url"`
	Title string            `json:"title"`
	Meta  map[string]string `json:"meta"`
	HTML  string            `json:"html"`
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	if !site.ValidURL(url) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid url: %s", url)), nil
	}

	if req.GetString("format", "json") == "html" {
		body, err := s.site.RenderPage(ctx, url)
		if err != nil {
			return pageError(url, err), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}

	p, err := s.site.Page(ctx, storage.PageName(url))
	if err != nil {
		return pageError(url, err), nil
	}
	out, _ := json.MarshalIndent(pageResult{
		URL:   url,
		Title: p.Title,
		Meta:  p.Meta,
		HTML:  string(p.Contents),
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func pageError(url string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", url))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) readSiteConfig(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.MarshalIndent(s.site.Config(ctx), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      siteConfigURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
