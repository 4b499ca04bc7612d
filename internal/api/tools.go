package api

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// ToolDefinitions returns the schemas for the gateway's builtin tool set.
// Names and argument keys must match the gateway registry exactly: the model
// calls these by name and the gateway looks them up by the same name.
func ToolDefinitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Read",
				Description: anthropic.String("Read a file relative to the working directory."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Path relative to the working directory",
						},
					},
					Required: []string{"path"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Write",
				Description: anthropic.String("Write content to a file, creating parent directories. The file must be inside your resource claims."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Path relative to the working directory",
						},
						"content": map[string]interface{}{
							"type":        "string",
							"description": "Content to write",
						},
					},
					Required: []string{"path", "content"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Edit",
				Description: anthropic.String("Replace the first occurrence of old with new in a file. The file must be inside your resource claims."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Path relative to the working directory",
						},
						"old": map[string]interface{}{
							"type":        "string",
							"description": "Exact text to find",
						},
						"new": map[string]interface{}{
							"type":        "string",
							"description": "Replacement text",
						},
					},
					Required: []string{"path", "old", "new"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Bash",
				Description: anthropic.String("Run a shell command in the working directory."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"command": map[string]interface{}{
							"type":        "string",
							"description": "The command to run",
						},
					},
					Required: []string{"command"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "ListDir",
				Description: anthropic.String("List the entries of a directory."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Directory path relative to the working directory (default: .)",
						},
					},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Glob",
				Description: anthropic.String("Find files matching a glob pattern; ** matches across directories."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"pattern": map[string]interface{}{
							"type":        "string",
							"description": "Glob pattern (e.g., '**/*.go')",
						},
					},
					Required: []string{"pattern"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "MemoryGet",
				Description: anthropic.String("Read a value from session memory. Artifacts from completed subtasks live under artifact:<subtask-id>:<name>."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"key": map[string]interface{}{
							"type":        "string",
							"description": "Memory key",
						},
					},
					Required: []string{"key"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "MemorySet",
				Description: anthropic.String("Write a value into session memory. Use scope 'persistent' for facts that should outlive this session."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"key": map[string]interface{}{
							"type":        "string",
							"description": "Memory key",
						},
						"value": map[string]interface{}{
							"type":        "string",
							"description": "Value to store",
						},
						"scope": map[string]interface{}{
							"type":        "string",
							"description": "Memory scope: 'session' (default) or 'persistent'",
						},
					},
					Required: []string{"key", "value"},
				},
			},
		},
	}
}
