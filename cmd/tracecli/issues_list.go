package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kouak/tracecli/internal/pipeline"
)

var issuesCmd = &cobra.Command{
	Use:     "issues",
	GroupID: "issues",
	Short:   "Work with issues",
}

var issuesListCmd = &cobra.Command{
	Use:   "list [target]",
	Short: "List issues for one or more projects",
	Long: `List issues for a target: "org/project", "org/" (all projects in an
org), "/project" or a bare project slug (searched across every accessible
org), or no argument at all to auto-detect the current project.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runE(runIssuesList),
}

func init() {
	issuesListCmd.Flags().StringP("query", "q", "", "Search query")
	issuesListCmd.Flags().IntP("limit", "n", 25, "Max issues to return (1-1000)")
	issuesListCmd.Flags().StringP("sort", "s", pipeline.DefaultSort, "Sort order: date, new, freq, user")
	issuesListCmd.Flags().StringP("period", "t", pipeline.DefaultPeriod, "Stats period, e.g. 14d, 90d")
	issuesListCmd.Flags().StringP("cursor", "c", "", `Pagination cursor, or "last" to resume`)

	issuesCmd.AddCommand(issuesListCmd)
	rootCmd.AddCommand(issuesCmd)
}

func runIssuesList(ctx context.Context, cmd *cobra.Command, args []string) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	var targetArg string
	if len(args) == 1 {
		targetArg = args[0]
	}

	query, _ := cmd.Flags().GetString("query")
	limit, _ := cmd.Flags().GetInt("limit")
	sortKey, _ := cmd.Flags().GetString("sort")
	period, _ := cmd.Flags().GetString("period")
	cursorArg, _ := cmd.Flags().GetString("cursor")

	req := pipeline.Request{
		TargetArg: targetArg,
		CLIOrg:    org,
		CLIProj:   project,
		Query:     query,
		Limit:     limit,
		Sort:      sortKey,
		Period:    period,
		Cursor:    cursorArg,
	}

	result, err := d.pipe.Run(ctx, req)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printIssuesJSON(result)
	}
	printIssuesText(result)
	return nil
}

// printIssuesJSON follows §6's JSON output contract: "data" holds the raw
// issue objects as returned by the service. A multi-target listing tags
// each with its assigned alias and project slug, since those don't exist
// on the single-target response the service itself returns.
func printIssuesJSON(result pipeline.Result) error {
	data := make([]map[string]interface{}, 0, len(result.Rows))
	for _, r := range result.Rows {
		obj := r.Issue.Raw
		if obj == nil {
			obj = map[string]interface{}{}
		}
		if r.Alias != "" {
			obj["alias"] = r.Alias
			obj["project"] = r.ProjectSlug
		}
		data = append(data, obj)
	}
	out := struct {
		Data       []map[string]interface{} `json:"data"`
		HasMore    bool                      `json:"hasMore"`
		NextCursor string                    `json:"nextCursor,omitempty"`
		Errors     []pipeline.IssueError     `json:"errors,omitempty"`
	}{
		Data:       data,
		HasMore:    result.HasMore,
		NextCursor: result.NextCursor,
		Errors:     result.Errors,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printIssuesText(result pipeline.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	for _, r := range result.Rows {
		label := r.ProjectSlug
		if r.Alias != "" {
			label = r.Alias
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", label, r.Issue.ShortID, r.Issue.Level, r.Issue.Title)
	}
	w.Flush()
	if result.MultiTargetFooter != "" {
		fmt.Println(result.MultiTargetFooter)
	}
	if result.ContinuationHint != "" {
		fmt.Println(result.ContinuationHint)
	}
}
