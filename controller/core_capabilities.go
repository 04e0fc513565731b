package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultShellTimeoutMs = 120000
	maxShellTimeoutMs     = 600000
	defaultHTTPTimeout    = 30 * time.Second
)

// coreDeps bundles the collaborators the built-in capabilities close over.
type coreDeps struct {
	env     ExecutionEnvironment
	store   MemoryStore
	swarm   *SwarmManager
	summary *ExecutionSummary
	emitter *EventEmitter
	latch   *completionLatch
	userID  string
}

// coreCapabilities assembles the fixed built-in set in its canonical order.
// The registry appends caller extensions after these.
func coreCapabilities(d coreDeps) []Capability {
	return []Capability{
		newSwarmCapability(d),
		newEditorCapability(d),
		newCreateToolCapability(d),
		newMemoryCapability(d),
		newThinkCapability(),
		newRunCodeCapability(d),
		newHTTPRequestCapability(),
		newShellCapability(d),
		newCurrentTimeCapability(),
		newStopCapability(d),
	}
}

func newSwarmCapability(d coreDeps) Capability {
	return NewCapability(Descriptor{
		Name:        "swarm",
		Description: "Deploy multiple sub-agents to work on a scoped task concurrently. Blocks until all agents finish and returns their aggregated outputs.",
		Signature:   "swarm(task, size=3)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"task": map[string]interface{}{
					"type":        "string",
					"description": "Scoped task description: CONTEXT, OBJECTIVE, AVOID, SUCCESS. Max ~120 words.",
				},
				"size": map[string]interface{}{
					"type":        "integer",
					"description": "Number of sub-agents to deploy. Default: 3.",
				},
			},
			"required": []string{"task"},
		},
	}, func(ctx context.Context, arguments json.RawMessage) (string, error) {
		args, err := ParseArguments(arguments)
		if err != nil {
			return "", err
		}
		task, ok := GetStringArg(args, "task")
		if !ok || task == "" {
			return "", fmt.Errorf("task is required")
		}
		size, _ := GetIntArg(args, "size")

		results, err := d.swarm.Deploy(ctx, task, size)
		if err != nil {
			return "", err
		}
		for _, r := range results {
			if r.AgentID != "" {
				d.summary.recordAgentSpawned(r.AgentID)
			}
		}
		d.emitter.Emit(EventSwarmSpawned, map[string]interface{}{
			"task": FirstLine(task),
			"size": len(results),
		})
		return formatSwarmResults(results), nil
	})
}

func newEditorCapability(d coreDeps) Capability {
	return NewCapability(Descriptor{
		Name:        "editor",
		Description: "View, create, or modify files. Actions: view, create (full content), str_replace (old_str must be unique in the file).",
		Signature:   "editor(action, path, ...)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action": map[string]interface{}{
					"type":        "string",
					"description": "One of: view, create, str_replace.",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File path, absolute or relative to the working directory.",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Full file content for create.",
				},
				"old_str": map[string]interface{}{
					"type":        "string",
					"description": "Exact text to find for str_replace.",
				},
				"new_str": map[string]interface{}{
					"type":        "string",
					"description": "Replacement text for str_replace.",
				},
			},
			"required": []string{"action", "path"},
		},
	}, func(ctx context.Context, arguments json.RawMessage) (string, error) {
		args, err := ParseArguments(arguments)
		if err != nil {
			return "", err
		}
		action, _ := GetStringArg(args, "action")
		filePath, ok := GetStringArg(args, "path")
		if !ok || filePath == "" {
			return "", fmt.Errorf("path is required")
		}

		switch action {
		case "view":
			return d.env.ReadFile(filePath)

		case "create":
			content, ok := GetStringArg(args, "content")
			if !ok {
				return "", fmt.Errorf("content is required for create")
			}
			if err := d.env.WriteFile(filePath, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Created %s (%d bytes)", filePath, len(content)), nil

		case "str_replace":
			oldStr, ok := GetStringArg(args, "old_str")
			if !ok || oldStr == "" {
				return "", fmt.Errorf("old_str is required for str_replace")
			}
			newStr, _ := GetStringArg(args, "new_str")

			content, err := d.env.ReadFile(filePath)
			if err != nil {
				return "", err
			}
			count := strings.Count(content, oldStr)
			if count == 0 {
				return "", fmt.Errorf("old_str not found in %s", filePath)
			}
			if count > 1 {
				return "", fmt.Errorf("old_str found %d times in %s; provide more context to make it unique", count, filePath)
			}
			if err := d.env.WriteFile(filePath, strings.Replace(content, oldStr, newStr, 1)); err != nil {
				return "", err
			}
			return fmt.Sprintf("Replaced 1 occurrence in %s", filePath), nil

		default:
			return "", fmt.Errorf("unknown editor action: %s", action)
		}
	})
}

func newCreateToolCapability(d coreDeps) Capability {
	return NewCapability(Descriptor{
		Name:        "create_tool",
		Description: "Persist a new tool script under tools/ and record it in the execution summary. Validate the script with run_code before relying on it.",
		Signature:   "create_tool(name, code)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Tool name; becomes the script filename.",
				},
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Tool source code (python).",
				},
			},
			"required": []string{"name", "code"},
		},
	}, func(ctx context.Context, arguments json.RawMessage) (string, error) {
		args, err := ParseArguments(arguments)
		if err != nil {
			return "", err
		}
		name, ok := GetStringArg(args, "name")
		if !ok || name == "" {
			return "", fmt.Errorf("name is required")
		}
		code, ok := GetStringArg(args, "code")
		if !ok || code == "" {
			return "", fmt.Errorf("code is required")
		}

		scriptPath := path.Join("tools", sanitizeToolName(name)+".py")
		if err := d.env.WriteFile(scriptPath, code); err != nil {
			return "", err
		}
		d.summary.recordToolCreated(name)
		d.emitter.Emit(EventToolCreated, map[string]interface{}{"name": name, "path": scriptPath})
		return fmt.Sprintf("Tool %q written to %s. Validate it with run_code, then invoke it via shell.", name, scriptPath), nil
	})
}

func sanitizeToolName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "tool"
	}
	return sb.String()
}

func newMemoryCapability(d coreDeps) Capability {
	return NewCapability(Descriptor{
		Name:        "memory",
		Description: "Persistent cross-session memory. Actions: retrieve (query), store (content + metadata), list.",
		Signature:   `memory(action, query|content, metadata={type, domain, confidence})`,
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action": map[string]interface{}{
					"type":        "string",
					"description": "One of: retrieve, store, list.",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query for retrieve.",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Content to store. Format: [INSIGHT] [CONTEXT] [OUTCOME] [REUSABILITY].",
				},
				"metadata": map[string]interface{}{
					"type":        "object",
					"description": "Tags for store: type (tool|strategy|knowledge|failure), domain, confidence.",
				},
			},
			"required": []string{"action"},
		},
	}, func(ctx context.Context, arguments json.RawMessage) (string, error) {
		if d.store == nil {
			return "", fmt.Errorf("memory system is disabled")
		}
		args, err := ParseArguments(arguments)
		if err != nil {
			return "", err
		}
		action, _ := GetStringArg(args, "action")

		switch action {
		case "retrieve":
			query, ok := GetStringArg(args, "query")
			if !ok || query == "" {
				return "", fmt.Errorf("query is required for retrieve")
			}
			records, err := d.store.Retrieve(ctx, query, d.userID, 10)
			if err != nil {
				return "", err
			}
			return formatMemoryRecords(records), nil

		case "store":
			content, ok := GetStringArg(args, "content")
			if !ok || content == "" {
				return "", fmt.Errorf("content is required for store")
			}
			meta := parseMemoryMetadata(args)
			rec, err := d.store.Store(ctx, content, d.userID, meta)
			if err != nil {
				return "", err
			}
			d.summary.recordMemoryWrite()
			d.emitter.Emit(EventMemoryWrite, map[string]interface{}{"id": rec.ID, "type": meta.Type})
			return fmt.Sprintf("Stored memory %s", rec.ID), nil

		case "list":
			records, err := d.store.List(ctx, d.userID, 20)
			if err != nil {
				return "", err
			}
			return formatMemoryRecords(records), nil

		default:
			return "", fmt.Errorf("unknown memory action: %s", action)
		}
	})
}

func parseMemoryMetadata(args map[string]interface{}) MemoryMetadata {
	var meta MemoryMetadata
	raw, ok := args["metadata"].(map[string]interface{})
	if !ok {
		return meta
	}
	if v, ok := raw["type"].(string); ok {
		meta.Type = v
	}
	if v, ok := raw["domain"].(string); ok {
		meta.Domain = v
	}
	switch v := raw["confidence"].(type) {
	case string:
		meta.Confidence = v
	case float64:
		meta.Confidence = fmt.Sprintf("%g", v)
	}
	return meta
}

func formatMemoryRecords(records []MemoryRecord) string {
	if len(records) == 0 {
		return "No memories found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d memor(ies):\n", len(records))
	for _, rec := range records {
		tag := ""
		if rec.Metadata.Type != "" {
			tag = " [" + rec.Metadata.Type + "]"
		}
		fmt.Fprintf(&sb, "- (%s)%s %s\n", rec.CreatedAt.Format("2006-01-02"), tag, rec.Content)
	}
	return sb.String()
}

func newThinkCapability() Capability {
	return NewCapability(Descriptor{
		Name:        "think",
		Description: "Structured reflection. Use it to assess the current approach, confidence level, and alternative strategies before committing more steps.",
		Signature:   "think(prompt)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"prompt": map[string]interface{}{
					"type":        "string",
					"description": "What to reflect on.",
				},
			},
			"required": []string{"prompt"},
		},
	}, func(ctx context.Context, arguments json.RawMessage) (string, error) {
		args, err := ParseArguments(arguments)
		if err != nil {
			return "", err
		}
		prompt, ok := GetStringArg(args, "prompt")
		if !ok || prompt == "" {
			return "", fmt.Errorf("prompt is required")
		}
		// The reflection itself happens in the model's next round; the
		// capability returns a scaffold that frames it.
		return fmt.Sprintf("Reflect on: %s\nConsider: current confidence level, alternative strategies, capability gaps, and remaining step budget. State your conclusion before acting.", prompt), nil
	})
}

func newRunCodeCapability(d coreDeps) Capability {
	return NewCapability(Descriptor{
		Name:        "run_code",
		Description: "Execute a python script in a subprocess and return its output. Use for computation, validation of created tools, and quick experiments.",
		Signature:   "run_code(code)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Python source to execute.",
				},
				"timeout_ms": map[string]interface{}{
					"type":        "integer",
					"description": "Execution timeout in milliseconds. Default: 30000.",
				},
			},
			"required": []string{"code"},
		},
	}, func(ctx context.Context, arguments json.RawMessage) (string, error) {
		args, err := ParseArguments(arguments)
		if err != nil {
			return "", err
		}
		code, ok := GetStringArg(args, "code")
		if !ok || code == "" {
			return "", fmt.Errorf("code is required")
		}
		timeoutMs, _ := GetIntArg(args, "timeout_ms")
		if timeoutMs <= 0 {
			timeoutMs = 30000
		}

		scriptPath := path.Join(".metagent", "run_"+uuid.New().String()[:8]+".py")
		if err := d.env.WriteFile(scriptPath, code); err != nil {
			return "", err
		}

		result, err := d.env.ExecCommand(ctx, "python3 "+scriptPath, timeoutMs)
		if err != nil {
			return "", err
		}
		return formatExecResult(result, timeoutMs), nil
	})
}

func newHTTPRequestCapability() Capability {
	return NewCapability(Descriptor{
		Name:        "http_request",
		Description: "Make an HTTP request and return the response status and body.",
		Signature:   "http_request(method, url, headers={}, body=\"\")",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"method": map[string]interface{}{
					"type":        "string",
					"description": "HTTP method. Default: GET.",
				},
				"url": map[string]interface{}{
					"type":        "string",
					"description": "Request URL.",
				},
				"headers": map[string]interface{}{
					"type":        "object",
					"description": "Request headers.",
				},
				"body": map[string]interface{}{
					"type":        "string",
					"description": "Request body.",
				},
			},
			"required": []string{"url"},
		},
	}, func(ctx context.Context, arguments json.RawMessage) (string, error) {
		args, err := ParseArguments(arguments)
		if err != nil {
			return "", err
		}
		url, ok := GetStringArg(args, "url")
		if !ok || url == "" {
			return "", fmt.Errorf("url is required")
		}
		method, _ := GetStringArg(args, "method")
		if method == "" {
			method = http.MethodGet
		}
		body, _ := GetStringArg(args, "body")

		req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, strings.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("build request: %w", err)
		}
		if headers, ok := args["headers"].(map[string]interface{}); ok {
			for k, v := range headers {
				if s, ok := v.(string); ok {
					req.Header.Set(k, s)
				}
			}
		}

		client := &http.Client{Timeout: defaultHTTPTimeout}
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return fmt.Sprintf("HTTP %s\n\n%s", resp.Status, string(respBody)), nil
	})
}

func newShellCapability(d coreDeps) Capability {
	return NewCapability(Descriptor{
		Name:        "shell",
		Description: "Execute a shell command in the working directory. Returns stdout, stderr, and exit code.",
		Signature:   "shell(command, timeout_ms=120000)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "The command to run.",
				},
				"timeout_ms": map[string]interface{}{
					"type":        "integer",
					"description": "Override the default command timeout in milliseconds.",
				},
			},
			"required": []string{"command"},
		},
	}, func(ctx context.Context, arguments json.RawMessage) (string, error) {
		args, err := ParseArguments(arguments)
		if err != nil {
			return "", err
		}
		command, ok := GetStringArg(args, "command")
		if !ok || command == "" {
			return "", fmt.Errorf("command is required")
		}
		timeoutMs, _ := GetIntArg(args, "timeout_ms")
		if timeoutMs <= 0 {
			timeoutMs = defaultShellTimeoutMs
		}
		if timeoutMs > maxShellTimeoutMs {
			timeoutMs = maxShellTimeoutMs
		}

		result, err := d.env.ExecCommand(ctx, command, timeoutMs)
		if err != nil {
			return "", err
		}
		return formatExecResult(result, timeoutMs), nil
	})
}

func formatExecResult(result *ExecResult, timeoutMs int) string {
	var sb strings.Builder
	sb.WriteString(result.Output())
	if result.TimedOut {
		fmt.Fprintf(&sb, "\n\n[Command timed out after %dms. Partial output shown above; retry with a longer timeout_ms if needed.]", timeoutMs)
	} else if result.ExitCode != 0 {
		fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
	}
	return sb.String()
}

func newCurrentTimeCapability() Capability {
	return NewCapability(Descriptor{
		Name:        "current_time",
		Description: "Return the current time, optionally in a named timezone (e.g. US/Pacific, Europe/London).",
		Signature:   "current_time(timezone=\"\")",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"timezone": map[string]interface{}{
					"type":        "string",
					"description": "IANA timezone name. Default: local time.",
				},
			},
		},
	}, func(ctx context.Context, arguments json.RawMessage) (string, error) {
		args, err := ParseArguments(arguments)
		if err != nil {
			return "", err
		}
		now := time.Now()
		if tz, ok := GetStringArg(args, "timezone"); ok && tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return "", fmt.Errorf("unknown timezone %q: %w", tz, err)
			}
			now = now.In(loc)
		}
		return now.Format(time.RFC3339), nil
	})
}

func newStopCapability(d coreDeps) Capability {
	return NewCapability(Descriptor{
		Name:        "stop",
		Description: "Signal completion and end the session. Required when the objective is achieved, progress is blocked, or the step budget is exhausted.",
		Signature:   "stop(reason)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"reason": map[string]interface{}{
					"type":        "string",
					"description": "Why the session is ending.",
				},
			},
			"required": []string{"reason"},
		},
	}, func(ctx context.Context, arguments json.RawMessage) (string, error) {
		args, err := ParseArguments(arguments)
		if err != nil {
			return "", err
		}
		reason, ok := GetStringArg(args, "reason")
		if !ok || reason == "" {
			return "", fmt.Errorf("reason is required")
		}
		d.latch.signal(reason)
		d.emitter.Emit(EventCompletion, map[string]interface{}{"reason": reason})
		return "Completion signaled: " + reason, nil
	})
}
