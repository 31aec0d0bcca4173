package cli

import (
	"encoding/json"
	"fmt"
	"strings"
)

// schemaTypes lists every schema the command can print, in output order
var schemaTypes = []string{"event", "context", "projection", "insight", "session_start", "session_end", "stats", "cleared", "error"}

// SchemaCmd outputs JSON Schema for dcw input and output records
type SchemaCmd struct {
	Type []string `short:"t" help:"Types to include (event,context,projection,insight,session_start,session_end,stats,cleared,error). Default: all"`
	List bool     `help:"List the record types instead of printing schemas"`
}

// Run executes the schema command
func (c *SchemaCmd) Run(globals *Globals) error {
	if c.List {
		c.outputTextHelp(globals)
		return nil
	}

	schemas := map[string]interface{}{
		"event":         eventSchema(),
		"context":       contextSchema(),
		"projection":    projectionSchema(),
		"insight":       insightSchema(),
		"session_start": sessionStartSchema(),
		"session_end":   sessionEndSchema(),
		"stats":         statsSchema(),
		"cleared":       clearedSchema(),
		"error":         errorSchema(),
	}

	typesToOutput := c.Type
	if len(typesToOutput) == 0 {
		typesToOutput = schemaTypes
	}

	output := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "Debug Context Watcher Schemas",
		"description": "JSON Schema definitions for the dcw input event stream and NDJSON output records",
		"definitions": map[string]interface{}{},
	}

	defs := output["definitions"].(map[string]interface{})
	for _, t := range typesToOutput {
		t = strings.ToLower(strings.TrimSpace(t))
		if schema, ok := schemas[t]; ok {
			defs[t] = schema
		}
	}

	encoder := json.NewEncoder(globals.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func str(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func integer(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func constType(name string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "const": name}
}

func schemaVersion() map[string]interface{} {
	return map[string]interface{}{"type": "integer", "const": 1}
}

func arrayOf(items map[string]interface{}, description string) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": items, "description": description}
}

func eventTypeEnum() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"enum":        []string{"breakpoint", "exception", "step", "console"},
		"description": "Kind of debug event; unknown values become breakpoint",
	}
}

func frameSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":   str("Function name"),
			"file":   str("Source file, home directories sanitized"),
			"line":   integer("1-based line"),
			"column": integer("1-based column"),
			"scope": map[string]interface{}{
				"type": "string",
				"enum": []string{"user_code", "external_library", "runtime_internal", "unknown"},
			},
		},
	}
}

func variableSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":        str("Variable name"),
			"value":       str("Rendered value, [REDACTED] when sensitive"),
			"type":        str("Inferred value type"),
			"scope":       map[string]interface{}{"type": "string", "enum": []string{"local", "closure", "global"}},
			"is_redacted": map[string]interface{}{"type": "boolean"},
			"size":        integer("Rendered size in bytes"),
			"complexity":  integer("Nesting depth for objects and arrays"),
		},
		"required": []string{"name", "value", "type", "scope", "is_redacted"},
	}
}

func logEntrySchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"level":          map[string]interface{}{"type": "string", "enum": []string{"debug", "log", "info", "warn", "error"}},
			"message":        str("Console message, sensitive values scrubbed"),
			"timestamp":      map[string]interface{}{"type": "string", "format": "date-time"},
			"source":         str("Emitting file or module"),
			"correlation_id": str("Request or trace correlation identifier"),
		},
		"required": []string{"level", "message", "timestamp"},
	}
}

func networkSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":          str("Record identifier"),
			"method":      str("HTTP method"),
			"url":         str("Sanitized URL"),
			"domain":      str("Host name or \"unknown\""),
			"category":    str("api, graphql, authentication, file_upload, static_resource, websocket or general"),
			"is_external": map[string]interface{}{"type": "boolean"},
			"status":      integer("HTTP status, >= 400 is a failure"),
			"duration":    integer("Request duration in nanoseconds"),
		},
	}
}

func eventSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Raw Debug Event",
		"description": "One input line for 'dcw ingest'. Every field is optional. Lines with type terminate, clear or stats are control records carrying session_id.",
		"properties": map[string]interface{}{
			"type":          map[string]interface{}{"type": "string", "enum": []string{"event", "terminate", "clear", "stats"}},
			"session_id":    str("Debug session; default \"default\""),
			"event_type":    eventTypeEnum(),
			"thread_id":     integer("Debuggee thread"),
			"timestamp":     map[string]interface{}{"type": "string", "format": "date-time"},
			"location":      map[string]interface{}{"type": "object", "description": "file/line/column; defaults to the top frame or unknown:0:0"},
			"frames":        arrayOf(frameSchema(), "Call stack, innermost first"),
			"variables":     arrayOf(map[string]interface{}{"type": "object"}, "name, value (any JSON), type, scope"),
			"console":       arrayOf(logEntrySchema(), "Console lines since the previous event"),
			"network":       arrayOf(map[string]interface{}{"type": "object"}, "request/response pairs"),
			"exception":     map[string]interface{}{"type": "object", "description": "name, message, stack"},
			"high_priority": map[string]interface{}{"type": "boolean", "description": "Always escalate"},
			"user_query":    str("Question forwarded with the projection"),
			"language":      str("Debuggee language; detected from the file when absent"),
		},
	}
}

func contextSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Debug Context",
		"description": "A committed, redacted debug context",
		"properties": map[string]interface{}{
			"type":             constType("context"),
			"schemaVersion":    schemaVersion(),
			"id":               str("Context identifier (UUID)"),
			"session_id":       str("Debug session"),
			"timestamp":        map[string]interface{}{"type": "string", "format": "date-time", "description": "Capture time"},
			"source_timestamp": map[string]interface{}{"type": "string", "format": "date-time", "description": "Time reported by the event source"},
			"event_type":       eventTypeEnum(),
			"source_location":  map[string]interface{}{"type": "object"},
			"stack_trace":      arrayOf(frameSchema(), "Capped at privacy.max_stack_frames"),
			"variables":        arrayOf(variableSchema(), "Normalized variables"),
			"console_output":   arrayOf(logEntrySchema(), "Recent console lines, capped at privacy.max_console_entries"),
			"network_activity": arrayOf(networkSchema(), "Recent network records"),
			"exception":        map[string]interface{}{"type": "object"},
			"recovered_errors": arrayOf(map[string]interface{}{"type": "string"}, "Field-level failures recovered during capture"),
		},
		"required": []string{"type", "id", "session_id", "timestamp", "event_type", "source_location"},
	}
}

func projectionSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "AI-Ready Projection",
		"description": "Ranked, capped view of a context handed to the analysis client",
		"properties": map[string]interface{}{
			"type":              constType("projection"),
			"schemaVersion":     schemaVersion(),
			"session_id":        str("Debug session"),
			"context_id":        str("Projected context"),
			"summary":           str("One-line description of the event"),
			"error_description": str("Exception name, message and first stack line"),
			"code_context": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"language":      str("Detected or supplied language"),
					"framework":     str("Detected framework"),
					"relevant_code": arrayOf(map[string]interface{}{"type": "string"}, "file:line:col name of user-code frames"),
				},
			},
			"runtime_state": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"variables":        arrayOf(variableSchema(), "Local first then by name, at most 20"),
					"stack_trace":      arrayOf(frameSchema(), "User code first, at most 10"),
					"network_activity": arrayOf(networkSchema(), "Failures first then newest, at most 5"),
				},
			},
			"user_query": str("Question from the event"),
		},
		"required": []string{"type", "summary", "code_context", "runtime_state"},
	}
}

func insightSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Insight",
		"description": "Analysis result for an escalated context",
		"properties": map[string]interface{}{
			"type":          constType("insight"),
			"schemaVersion": schemaVersion(),
			"session_id":    str("Debug session"),
			"context_id":    str("Analyzed context"),
			"text":          str("Insight text, sensitive values scrubbed"),
			"fallback":      map[string]interface{}{"type": "boolean", "description": "Produced locally because the analyzer failed"},
			"error":         str("Analyzer failure when fallback is set"),
		},
		"required": []string{"type", "session_id", "context_id", "text"},
	}
}

func sessionStartSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":  "object",
		"title": "Session Start",
		"properties": map[string]interface{}{
			"type":          constType("session_start"),
			"schemaVersion": schemaVersion(),
			"session_id":    str("Debug session"),
			"first_event":   eventTypeEnum(),
			"timestamp":     map[string]interface{}{"type": "string", "format": "date-time"},
		},
		"required": []string{"type", "session_id", "timestamp"},
	}
}

func sessionEndSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":  "object",
		"title": "Session End",
		"properties": map[string]interface{}{
			"type":          constType("session_end"),
			"schemaVersion": schemaVersion(),
			"session_id":    str("Debug session"),
			"reason":        map[string]interface{}{"type": "string", "enum": []string{"terminated", "stream_end"}},
			"summary": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"total_events":     integer("Events accepted"),
					"breakpoints":      integer("Breakpoint events"),
					"exceptions":       integer("Exception events"),
					"steps":            integer("Step events"),
					"console_events":   integer("Console events"),
					"console_errors":   integer("Console lines at error level"),
					"rejected":         integer("Events rejected after termination"),
					"duration_seconds": integer("Seconds from first event to end"),
				},
			},
		},
		"required": []string{"type", "session_id", "reason", "summary"},
	}
}

func statsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Pipeline Stats",
		"description": "Pipeline counters; emitted by 'ingest --stats' and stats control records",
		"properties": map[string]interface{}{
			"type":              constType("stats"),
			"schemaVersion":     schemaVersion(),
			"total_events":      integer("Events ingested"),
			"events_by_type":    map[string]interface{}{"type": "object", "additionalProperties": map[string]interface{}{"type": "integer"}},
			"rejected":          integer("Events rejected"),
			"sessions":          integer("Sessions in history"),
			"stored_contexts":   integer("Contexts in history"),
			"escalations":       integer("Contexts escalated"),
			"escalation_errors": integer("Analyzer failures"),
			"insights_dropped":  integer("Insights discarded because the session left history"),
			"evicted":           integer("Contexts evicted by the history bound"),
			"recovered_errors":  map[string]interface{}{"type": "object", "additionalProperties": map[string]interface{}{"type": "integer"}},
			"avg_latency_ns":    integer("Mean ingest latency"),
			"max_latency_ns":    integer("Worst ingest latency"),
			"last_event_at":     map[string]interface{}{"type": "string", "format": "date-time"},
		},
		"required": []string{"type", "total_events", "events_by_type"},
	}
}

func clearedSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":  "object",
		"title": "History Cleared",
		"properties": map[string]interface{}{
			"type":          constType("cleared"),
			"schemaVersion": schemaVersion(),
			"session_id":    str("Cleared session; absent when everything was cleared"),
			"removed":       integer("Contexts removed"),
		},
		"required": []string{"type", "removed"},
	}
}

func errorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Error",
		"description": "Error message from dcw",
		"properties": map[string]interface{}{
			"type":          constType("error"),
			"schemaVersion": schemaVersion(),
			"code": map[string]interface{}{
				"type":        "string",
				"description": "Error code",
				"enum": []string{
					"INVALID_EVENT",
					"UNKNOWN_RECORD",
					"INVALID_CONTROL",
					"SESSION_TERMINATED",
					"INVALID_FLAGS",
					"INVALID_FILTER",
					"INVALID_CONFIG",
					"OPEN_FAILED",
					"STREAM_FAILED",
					"ARCHIVE_UNAVAILABLE",
					"QUERY_FAILED",
					"CLEAR_FAILED",
					"CONFIG_GENERATE_FAILED",
					"CONFIG_IMPORT_FAILED",
				},
			},
			"message":    str("Human-readable error description"),
			"hint":       str("Suggested fix"),
			"session_id": str("Session the error concerns"),
		},
		"required": []string{"type", "code", "message"},
	}
}

// Helper to output a quick reference
func (c *SchemaCmd) outputTextHelp(globals *Globals) {
	fmt.Fprintln(globals.Stdout, "dcw record types:")
	fmt.Fprintln(globals.Stdout, "")
	fmt.Fprintln(globals.Stdout, "  event         - Input line for ingest (also terminate/clear/stats controls)")
	fmt.Fprintln(globals.Stdout, "  context       - Committed, redacted debug context")
	fmt.Fprintln(globals.Stdout, "  projection    - Ranked view handed to the analyzer")
	fmt.Fprintln(globals.Stdout, "  insight       - Analyzer result")
	fmt.Fprintln(globals.Stdout, "  session_start - First event of a session")
	fmt.Fprintln(globals.Stdout, "  session_end   - Session terminated or stream ended")
	fmt.Fprintln(globals.Stdout, "  stats         - Pipeline counters")
	fmt.Fprintln(globals.Stdout, "  cleared       - History cleared")
	fmt.Fprintln(globals.Stdout, "  error         - Error from dcw")
	fmt.Fprintln(globals.Stdout, "")
	fmt.Fprintln(globals.Stdout, "Use --type to filter: dcw schema --type context,error")
}
