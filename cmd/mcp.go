package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fimwatch/internal/baseline"
	"fimwatch/internal/dashboard"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// maxListedRecords bounds get_baseline output.
const maxListedRecords = 500

var mcpCmd = &cobra.Command{
	Use:   "mcp [dir]",
	Short: "Start an MCP server exposing read-only integrity status tools",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, args, false)
	if err != nil {
		return err
	}
	defer a.Close()

	return mcpserver.ServeStdio(newMCPServer(a.sources(nil)))
}

func newMCPServer(src dashboard.Sources) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("fimwatch", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(getStatusTool(), makeStatusHandler(src))
	s.AddTool(getBaselineTool(), makeBaselineHandler(src))
	s.AddTool(listReportsTool(), makeReportsHandler(src))
	return s
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func getStatusTool() mcp.Tool {
	return mcp.NewTool("get_status",
		mcp.WithDescription("Get the integrity status of the monitored directory: baseline summary, counts of verified and drifted files in the last scan, and the drifted paths."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func getBaselineTool() mcp.Tool {
	return mcp.NewTool("get_baseline",
		mcp.WithDescription("List recorded files with their SHA-256 digests, from the current baseline or the one in effect at a past time."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("as_of",
			mcp.Description("Optional RFC 3339 time; returns the baseline that was current then"),
		),
		mcp.WithString("prefix",
			mcp.Description("Optional path prefix filter, relative to the monitored directory"),
		),
	)
}

func listReportsTool() mcp.Tool {
	return mcp.NewTool("list_reports",
		mcp.WithDescription("List the most recent scan reports, newest last."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of reports to return (default 10)"),
		),
	)
}

// --- Handler factories ---

func makeStatusHandler(src dashboard.Sources) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sum, err := src.Summary(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatSummary(sum)), nil
	}
}

func makeBaselineHandler(src dashboard.Sources) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var asOf time.Time
		if s := req.GetString("as_of", ""); s != "" {
			var err error
			if asOf, err = time.Parse(time.RFC3339, s); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("as_of must be an RFC 3339 time: %v", err)), nil
			}
		}
		prefix := req.GetString("prefix", "")

		view, err := src.Baseline(ctx, asOf, prefix)
		if errors.Is(err, baseline.ErrNoBaseline) {
			return mcp.NewToolResultText("No baseline was recorded at that time. Run 'fimwatch check' to create one."), nil
		} else if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load baseline failed: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## Baseline of `%s` recorded %s (%d files", view.Root, view.CreatedAt.Format(time.RFC3339), len(view.Files))
		if prefix != "" {
			fmt.Fprintf(&sb, " under %q", prefix)
		}
		sb.WriteString(")\n\n")
		for i, r := range view.Files {
			if i == maxListedRecords {
				fmt.Fprintf(&sb, "\n… %d more; narrow the listing with prefix.\n", len(view.Files)-maxListedRecords)
				break
			}
			fmt.Fprintf(&sb, "- `%s` %s (%d bytes)\n", r.Path, r.Digest, r.Size)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeReportsHandler(src dashboard.Sources) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if src.Journal == nil {
			return mcp.NewToolResultText("No report journal configured. Run checks with --report to record scan results."), nil
		}
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		entries, err := src.Journal.Tail(limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read reports failed: %v", err)), nil
		}
		if len(entries) == 0 {
			return mcp.NewToolResultText("No scans have been recorded yet."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## Recent scans (%d)\n\n", len(entries))
		for _, e := range entries {
			state := "clean"
			if e.Drift {
				state = "DRIFT"
			}
			fmt.Fprintf(&sb, "- %s **%s**: %d unchanged, %d modified, %d new, %d missing\n",
				e.FinishedAt.Format(time.RFC3339), state, e.Unchanged, len(e.Modified), len(e.New), len(e.Missing))
			writePaths(&sb, "modified", e.Modified)
			writePaths(&sb, "new", e.New)
			writePaths(&sb, "missing", e.Missing)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- Formatting helpers ---

func formatSummary(s dashboard.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Integrity status of `%s`\n\n", s.Root)

	switch {
	case s.BaselineCorrupt:
		sb.WriteString("**Baseline is corrupt.** Run 'fimwatch update' to re-create it.\n\n")
	case s.Baseline == nil:
		sb.WriteString("No baseline recorded.\n\n")
	default:
		fmt.Fprintf(&sb, "**Baseline:** %d files, recorded %s  \n", s.Baseline.Files, s.Baseline.CreatedAt.Format(time.RFC3339))
	}
	if s.LastScan != nil {
		fmt.Fprintf(&sb, "**Last scan:** %s  \n", s.LastScan.Format(time.RFC3339))
	} else {
		sb.WriteString("**Last scan:** none recorded  \n")
	}
	fmt.Fprintf(&sb, "**Verified:** %d  \n**Drifted:** %d  \n", s.Safe, s.Corrupted)
	if s.LastAnomaly != nil {
		fmt.Fprintf(&sb, "**Last anomaly:** %s  \n", s.LastAnomaly.Format(time.RFC3339))
	}
	writePaths(&sb, "modified", s.Modified)
	writePaths(&sb, "new", s.New)
	writePaths(&sb, "missing", s.Missing)
	return sb.String()
}

func writePaths(sb *strings.Builder, kind string, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintf(sb, "  - %s: %s\n", kind, strings.Join(paths, ", "))
}
