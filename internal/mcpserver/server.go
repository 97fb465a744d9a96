// Package mcpserver exposes a long-lived sync engine as MCP tools, so an
// agent can browse, open, close, save and attach to wiki pages.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/klauern/wikisync/internal/engine"
	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/model"
)

// Engine is the part of the sync engine the tools use.
type Engine interface {
	Structure(ctx context.Context) ([]model.Space, error)
	IsProtected(id model.Identity) bool
	OpenDocument(ctx context.Context, id model.Identity) (engine.LocalHandle, error)
	LocalPath(id model.Identity) string
	CloseDocument(path string) bool
	SaveDocument(ctx context.Context, path string) error
	SaveCurrentDocument(ctx context.Context) error
	ListAttachments(ctx context.Context, id model.Identity) ([]string, error)
	SyncPublishedStatus(ctx context.Context, id model.Identity) (bool, error)
	AttachFiles(ctx context.Context, id model.Identity, paths []string) error
	DownloadAttachment(ctx context.Context, id model.Identity, name, dest string) (engine.FileHandle, error)
}

// PageRequest names a page.
type PageRequest struct {
	Space string `json:"space"`
	Page  string `json:"page"`
}

func (r PageRequest) identity() (model.Identity, error) {
	return model.NewIdentity(r.Space, r.Page)
}

// ListSpacesRequest are the arguments of list_spaces.
type ListSpacesRequest struct {
	All bool `json:"all"` // include hidden spaces
}

// SpaceSummary is one entry of list_spaces.
type SpaceSummary struct {
	Name      string `json:"name"`
	Pages     int    `json:"pages"`
	Hidden    bool   `json:"hidden,omitempty"`
	Published bool   `json:"published"`
}

// ListPagesRequest are the arguments of list_pages.
type ListPagesRequest struct {
	Space string `json:"space"`
}

// PageSummary is one entry of list_pages.
type PageSummary struct {
	Name      string `json:"name"`
	Published bool   `json:"published"`
	Protected bool   `json:"protected,omitempty"`
}

// SaveRequest are the arguments of save_document. An empty path saves the
// current document.
type SaveRequest struct {
	Path string `json:"path"`
}

// AttachRequest are the arguments of attach_files.
type AttachRequest struct {
	Space string   `json:"space"`
	Page  string   `json:"page"`
	Paths []string `json:"paths"`
}

// DownloadRequest are the arguments of download_attachment.
type DownloadRequest struct {
	Space string `json:"space"`
	Page  string `json:"page"`
	Name  string `json:"name"`
	Dest  string `json:"dest"`
}

// NewServer creates an MCP server with the wiki tools bound to eng.
func NewServer(eng Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"wikisync",
		version,
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("list_spaces",
		mcp.WithDescription("List the wiki spaces with their page counts"),
		mcp.WithBoolean("all",
			mcp.Description("Include hidden spaces"),
		),
	), mcp.NewTypedToolHandler(listSpacesHandler(eng)))

	s.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List the pages of a wiki space"),
		mcp.WithString("space",
			mcp.Required(),
			mcp.Description("The space name"),
		),
	), mcp.NewTypedToolHandler(listPagesHandler(eng)))

	s.AddTool(mcp.NewTool("open_document",
		pageTool("Fetch a wiki page into a local HTML file for editing")...,
	), mcp.NewTypedToolHandler(openHandler(eng)))

	s.AddTool(mcp.NewTool("close_document",
		pageTool("Forget the local copy of an open wiki page so it can be opened again")...,
	), mcp.NewTypedToolHandler(closeHandler(eng)))

	s.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Save a local page file back to the wiki"),
		mcp.WithString("path",
			mcp.Description("Local file of the page; the current document when empty"),
		),
	), mcp.NewTypedToolHandler(saveHandler(eng)))

	s.AddTool(mcp.NewTool("list_attachments",
		pageTool("List the attachments of a wiki page")...,
	), mcp.NewTypedToolHandler(listAttachmentsHandler(eng)))

	s.AddTool(mcp.NewTool("attach_files",
		pageTool("Upload local files as attachments of a published wiki page, in order, stopping at the first failure",
			mcp.WithArray("paths",
				mcp.Required(),
				mcp.Description("Local files to upload"),
				mcp.Items(map[string]any{"type": "string"}),
			),
		)...,
	), mcp.NewTypedToolHandler(attachHandler(eng)))

	s.AddTool(mcp.NewTool("download_attachment",
		pageTool("Download an attachment of a wiki page",
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("The attachment file name"),
			),
			mcp.WithString("dest",
				mcp.Description("Destination path; a free name in the download folder when empty"),
			),
		)...,
	), mcp.NewTypedToolHandler(downloadHandler(eng)))

	return s
}

// pageTool returns the options of a tool that acts on one page.
func pageTool(description string, extra ...mcp.ToolOption) []mcp.ToolOption {
	opts := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("space",
			mcp.Required(),
			mcp.Description("The space of the page"),
		),
		mcp.WithString("page",
			mcp.Required(),
			mcp.Description("The page name"),
		),
	}
	return append(opts, extra...)
}

// ServeStdio serves s over stdin and stdout until ctx is done or the input
// ends.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

func listSpacesHandler(eng Engine) mcp.TypedToolHandlerFunc[ListSpacesRequest] {
	return func(ctx context.Context, _ mcp.CallToolRequest, args ListSpacesRequest) (*mcp.CallToolResult, error) {
		spaces, err := eng.Structure(ctx)
		if err != nil {
			return failure("list_spaces", err), nil
		}
		out := make([]SpaceSummary, 0, len(spaces))
		for _, sp := range spaces {
			if sp.Hidden && !args.All {
				continue
			}
			out = append(out, SpaceSummary{Name: sp.Name, Pages: len(sp.Documents), Hidden: sp.Hidden, Published: sp.Published})
		}
		return jsonResult(out)
	}
}

func listPagesHandler(eng Engine) mcp.TypedToolHandlerFunc[ListPagesRequest] {
	return func(ctx context.Context, _ mcp.CallToolRequest, args ListPagesRequest) (*mcp.CallToolResult, error) {
		if args.Space == "" {
			return mcp.NewToolResultError("space is required"), nil
		}
		spaces, err := eng.Structure(ctx)
		if err != nil {
			return failure("list_pages", err), nil
		}
		for _, sp := range spaces {
			if sp.Name != args.Space {
				continue
			}
			out := make([]PageSummary, 0, len(sp.Documents))
			for _, d := range sp.Documents {
				out = append(out, PageSummary{Name: d.Name, Published: d.Published, Protected: eng.IsProtected(d.Identity())})
			}
			return jsonResult(out)
		}
		return mcp.NewToolResultError(fmt.Sprintf("space %q not found", args.Space)), nil
	}
}

func openHandler(eng Engine) mcp.TypedToolHandlerFunc[PageRequest] {
	return func(ctx context.Context, _ mcp.CallToolRequest, args PageRequest) (*mcp.CallToolResult, error) {
		id, err := args.identity()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		h, err := eng.OpenDocument(ctx, id)
		if err != nil {
			return failure("open_document", err), nil
		}
		return jsonResult(h)
	}
}

func closeHandler(eng Engine) mcp.TypedToolHandlerFunc[PageRequest] {
	return func(_ context.Context, _ mcp.CallToolRequest, args PageRequest) (*mcp.CallToolResult, error) {
		id, err := args.identity()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !eng.CloseDocument(eng.LocalPath(id)) {
			return mcp.NewToolResultError(fmt.Sprintf("%s is not open", id)), nil
		}
		return mcp.NewToolResultText("closed " + id.String()), nil
	}
}

func saveHandler(eng Engine) mcp.TypedToolHandlerFunc[SaveRequest] {
	return func(ctx context.Context, _ mcp.CallToolRequest, args SaveRequest) (*mcp.CallToolResult, error) {
		var err error
		if args.Path == "" {
			err = eng.SaveCurrentDocument(ctx)
		} else {
			err = eng.SaveDocument(ctx, args.Path)
		}
		if err != nil {
			return failure("save_document", err), nil
		}
		return mcp.NewToolResultText("saved"), nil
	}
}

func listAttachmentsHandler(eng Engine) mcp.TypedToolHandlerFunc[PageRequest] {
	return func(ctx context.Context, _ mcp.CallToolRequest, args PageRequest) (*mcp.CallToolResult, error) {
		id, err := args.identity()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		names, err := eng.ListAttachments(ctx, id)
		if err != nil {
			return failure("list_attachments", err), nil
		}
		if names == nil {
			names = []string{}
		}
		return jsonResult(names)
	}
}

func attachHandler(eng Engine) mcp.TypedToolHandlerFunc[AttachRequest] {
	return func(ctx context.Context, _ mcp.CallToolRequest, args AttachRequest) (*mcp.CallToolResult, error) {
		id, err := model.NewIdentity(args.Space, args.Page)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(args.Paths) == 0 {
			return mcp.NewToolResultError("paths is required"), nil
		}
		// Pages that were not opened in this session are published when the
		// wiki lists them.
		if _, err := eng.SyncPublishedStatus(ctx, id); err != nil {
			return failure("attach_files", err), nil
		}
		if err := eng.AttachFiles(ctx, id, args.Paths); err != nil {
			return failure("attach_files", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("attached %d files to %s", len(args.Paths), id)), nil
	}
}

func downloadHandler(eng Engine) mcp.TypedToolHandlerFunc[DownloadRequest] {
	return func(ctx context.Context, _ mcp.CallToolRequest, args DownloadRequest) (*mcp.CallToolResult, error) {
		id, err := model.NewIdentity(args.Space, args.Page)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if args.Name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		fh, err := eng.DownloadAttachment(ctx, id, args.Name, args.Dest)
		if err != nil {
			return failure("download_attachment", err), nil
		}
		return jsonResult(fh)
	}
}

func failure(tool string, err error) *mcp.CallToolResult {
	logging.Warn("tool failed", logging.Operation(tool), logging.Err(err))
	return mcp.NewToolResultError(engine.UserMessage(err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
