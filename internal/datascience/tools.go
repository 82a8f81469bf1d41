package datascience

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/orchestrax/workflow-orchestrator/internal/sandbox"
	"github.com/orchestrax/workflow-orchestrator/internal/tool"
)

// savedPathRe extracts a file path out of tool output text that follows
// PersistentSandbox.WriteFile's fixed "wrote %d bytes to %s" phrasing, or a
// model-authored "saved to <path>" / "written to <path>" note.
var savedPathRe = regexp.MustCompile(`(?i)(?:wrote \d+ bytes to|saved to|written to)\s+(\S+)`)

// extractSavedPaths appends every path savedPathRe finds in out to produced.
func extractSavedPaths(out string, produced *[]string) {
	for _, m := range savedPathRe.FindAllStringSubmatch(out, -1) {
		*produced = append(*produced, m[1])
	}
}

// ErrSandboxOutage marks a tool invocation that failed because the bound
// sandbox was unreachable or evicted (§4.8.7), as opposed to the user's
// code simply erroring.
var ErrSandboxOutage = errors.New("datascience: sandbox outage")

// isSandboxOutage reports whether a PersistentSandbox failure string
// originates from ErrUnavailable or ErrSandboxGone rather than ordinary
// user code failure. PersistentSandbox folds every failure into text
// (manager.go's withSandbox), so this matches on the wrapped error's
// message rather than errors.Is.
func isSandboxOutage(out string) bool {
	return strings.Contains(out, sandbox.ErrUnavailable.Error()) || strings.Contains(out, sandbox.ErrSandboxGone.Error())
}

func codeParam(params map[string]any) string {
	if v, ok := params["code"].(string); ok {
		return v
	}
	v, _ := params["input"].(string)
	return v
}

func pathParam(params map[string]any) string {
	if v, ok := params["path"].(string); ok {
		return v
	}
	v, _ := params["input"].(string)
	return v
}

// codeTools builds execute_code, pip_install, list, describe_data for the
// Coder role (§4.8.1). outage is set to true the first time any call hits
// an outage, letting the calling node inspect it after Run returns.
func codeTools(sbx *sandbox.PersistentSandbox, outage *bool, produced *[]string) *tool.Registry {
	return tool.NewRegistry(
		tool.Tool{
			Name:        "execute_code",
			Description: "Run a code snippet in the persistent sandbox and return its output.",
			ParamSchema: []tool.Param{{Name: "code", Description: "code to execute", Required: true}},
			Invoke: func(ctx context.Context, params map[string]any) (string, error) {
				ok, out := sbx.ExecuteCode(ctx, codeParam(params), 0)
				if !ok && isSandboxOutage(out) {
					*outage = true
				}
				extractSavedPaths(out, produced)
				return out, nil
			},
		},
		tool.Tool{
			Name:        "pip_install",
			Description: "Install Python packages in the sandbox.",
			ParamSchema: []tool.Param{{Name: "packages", Description: "space-separated package list", Required: true}},
			Invoke: func(ctx context.Context, params map[string]any) (string, error) {
				raw, _ := params["packages"].(string)
				if raw == "" {
					raw, _ = params["input"].(string)
				}
				ok, out := sbx.PipInstall(ctx, strings.Fields(raw))
				if !ok && isSandboxOutage(out) {
					*outage = true
				}
				return out, nil
			},
		},
		tool.Tool{
			Name:        "list",
			Description: "List files at a directory path in the sandbox.",
			ParamSchema: []tool.Param{{Name: "path", Description: "directory path", Required: true}},
			Invoke: func(ctx context.Context, params map[string]any) (string, error) {
				ok, out := sbx.ListFiles(ctx, pathParam(params))
				if !ok && isSandboxOutage(out) {
					*outage = true
				}
				return out, nil
			},
		},
		tool.Tool{
			Name:        "describe_data",
			Description: "Profile a CSV file's shape, columns, dtypes, and null counts.",
			ParamSchema: []tool.Param{{Name: "path", Description: "CSV file path", Required: true}},
			Invoke: func(ctx context.Context, params map[string]any) (string, error) {
				ok, out := sbx.DescribeData(ctx, pathParam(params))
				if !ok && isSandboxOutage(out) {
					*outage = true
				}
				return out, nil
			},
		},
	)
}

// visualizationTools builds the single execute_code tool the Visualization
// role uses (§4.8.1).
func visualizationTools(sbx *sandbox.PersistentSandbox, outage *bool, produced *[]string) *tool.Registry {
	return tool.NewRegistry(tool.Tool{
		Name:        "execute_code",
		Description: "Run a plotting code snippet in the persistent sandbox and return its output.",
		ParamSchema: []tool.Param{{Name: "code", Description: "code to execute", Required: true}},
		Invoke: func(ctx context.Context, params map[string]any) (string, error) {
			ok, out := sbx.ExecuteCode(ctx, codeParam(params), 0)
			if !ok && isSandboxOutage(out) {
				*outage = true
			}
			extractSavedPaths(out, produced)
			return out, nil
		},
	})
}

// fileTools builds write_file/read_file for the Report role (§4.8.1).
func fileTools(sbx *sandbox.PersistentSandbox, produced *[]string) *tool.Registry {
	return tool.NewRegistry(
		tool.Tool{
			Name:        "write_file",
			Description: "Write text content to a path in the sandbox.",
			ParamSchema: []tool.Param{
				{Name: "path", Description: "destination path", Required: true},
				{Name: "content", Description: "file content", Required: true},
			},
			Invoke: func(ctx context.Context, params map[string]any) (string, error) {
				path, _ := params["path"].(string)
				content, _ := params["content"].(string)
				_, out := sbx.WriteFile(ctx, path, content)
				extractSavedPaths(out, produced)
				return out, nil
			},
		},
		tool.Tool{
			Name:        "read_file",
			Description: "Read a file's contents from the sandbox.",
			ParamSchema: []tool.Param{{Name: "path", Description: "file path", Required: true}},
			Invoke: func(ctx context.Context, params map[string]any) (string, error) {
				_, out := sbx.ReadFile(ctx, pathParam(params))
				return out, nil
			},
		},
	)
}

// hypothesisTools builds the Hypothesis role's tools: search, file read,
// CSV describe (§4.8.1).
func hypothesisTools(sbx *sandbox.PersistentSandbox, search *SearchClient) *tool.Registry {
	return tool.NewRegistry(
		webSearchTool(search),
		wikiSearchTool(search),
		arxivSearchTool(search),
		tool.Tool{
			Name:        "read_file",
			Description: "Read a file's contents from the sandbox.",
			ParamSchema: []tool.Param{{Name: "path", Description: "file path", Required: true}},
			Invoke: func(ctx context.Context, params map[string]any) (string, error) {
				_, out := sbx.ReadFile(ctx, pathParam(params))
				return out, nil
			},
		},
		tool.Tool{
			Name:        "describe_data",
			Description: "Profile a CSV file's shape, columns, dtypes, and null counts.",
			ParamSchema: []tool.Param{{Name: "path", Description: "CSV file path", Required: true}},
			Invoke: func(ctx context.Context, params map[string]any) (string, error) {
				_, out := sbx.DescribeData(ctx, pathParam(params))
				return out, nil
			},
		},
	)
}

// searchTools builds the Search role's web search tools (§4.8.1).
func searchTools(search *SearchClient) *tool.Registry {
	return tool.NewRegistry(webSearchTool(search), wikiSearchTool(search), arxivSearchTool(search))
}

func webSearchTool(search *SearchClient) tool.Tool {
	return tool.Tool{
		Name:        "web_search",
		Description: "Search the web for current information.",
		ParamSchema: []tool.Param{{Name: "query", Description: "search query", Required: true}},
		Invoke: func(ctx context.Context, params map[string]any) (string, error) {
			return search.Web(ctx, queryParam(params))
		},
	}
}

func wikiSearchTool(search *SearchClient) tool.Tool {
	return tool.Tool{
		Name:        "wiki_search",
		Description: "Search Wikipedia for background information.",
		ParamSchema: []tool.Param{{Name: "query", Description: "search query", Required: true}},
		Invoke: func(ctx context.Context, params map[string]any) (string, error) {
			return search.Wiki(ctx, queryParam(params))
		},
	}
}

func arxivSearchTool(search *SearchClient) tool.Tool {
	return tool.Tool{
		Name:        "arxiv_search",
		Description: "Search arXiv for related papers.",
		ParamSchema: []tool.Param{{Name: "query", Description: "search query", Required: true}},
		Invoke: func(ctx context.Context, params map[string]any) (string, error) {
			return search.Arxiv(ctx, queryParam(params))
		},
	}
}

func queryParam(params map[string]any) string {
	if v, ok := params["query"].(string); ok {
		return v
	}
	v, _ := params["input"].(string)
	return v
}
