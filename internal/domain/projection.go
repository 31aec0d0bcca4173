package domain

import "strings"

// Framework is the closed set of runtimes the projection can name
type Framework string

const (
	FrameworkUnknown Framework = ""
	FrameworkReact   Framework = "react"
	FrameworkVue     Framework = "vue"
	FrameworkAngular Framework = "angular"
	FrameworkExpress Framework = "express"
	FrameworkNext    Framework = "next"
	FrameworkDjango  Framework = "django"
	FrameworkFlask   Framework = "flask"
	FrameworkGin     Framework = "gin"
)

var frameworkMarkers = []struct {
	marker    string
	framework Framework
}{
	{"/node_modules/next/", FrameworkNext},
	{"/node_modules/react-dom/", FrameworkReact},
	{"/node_modules/react/", FrameworkReact},
	{"/node_modules/vue/", FrameworkVue},
	{"/node_modules/@vue/", FrameworkVue},
	{"/node_modules/@angular/", FrameworkAngular},
	{"/node_modules/express/", FrameworkExpress},
	{"/site-packages/django/", FrameworkDjango},
	{"/site-packages/flask/", FrameworkFlask},
	{"github.com/gin-gonic/gin", FrameworkGin},
}

// DetectFramework returns the first framework whose path marker appears in
// any file, or FrameworkUnknown.
func DetectFramework(files []string) Framework {
	for _, m := range frameworkMarkers {
		for _, f := range files {
			if strings.Contains(strings.ReplaceAll(f, "\\", "/"), m.marker) {
				return m.framework
			}
		}
	}
	return FrameworkUnknown
}

// DetectLanguage guesses the debuggee language from a source file extension
func DetectLanguage(file string) string {
	i := strings.LastIndex(file, ".")
	if i < 0 {
		return "unknown"
	}
	switch strings.ToLower(file[i+1:]) {
	case "js", "mjs", "cjs", "jsx":
		return "javascript"
	case "ts", "tsx":
		return "typescript"
	case "py":
		return "python"
	case "go":
		return "go"
	case "rb":
		return "ruby"
	case "java":
		return "java"
	case "rs":
		return "rust"
	case "swift":
		return "swift"
	default:
		return "unknown"
	}
}

// CodeContext describes the code surrounding the event
type CodeContext struct {
	Language     string    `json:"language"`
	Framework    Framework `json:"framework,omitempty"`
	RelevantCode []string  `json:"relevant_code"`
}

// RuntimeState is the ranked, capped runtime data of a projection
type RuntimeState struct {
	Variables       []VariableSnapshot `json:"variables"`
	StackTrace      []StackFrame       `json:"stack_trace"`
	NetworkActivity []NetworkRecord    `json:"network_activity"`
}

// AIReadyContext is the bounded projection handed to the analysis client
type AIReadyContext struct {
	SessionID        string       `json:"session_id"`
	ContextID        string       `json:"context_id"`
	EventType        EventType    `json:"event_type"`
	Summary          string       `json:"summary"`
	ErrorDescription string       `json:"error_description,omitempty"`
	CodeContext      CodeContext  `json:"code_context"`
	RuntimeState     RuntimeState `json:"runtime_state"`
	UserQuery        string       `json:"user_query,omitempty"`
}

// Insight is the analysis client's answer for one projection. Fallback is
// set when the client failed and the text was produced locally.
type Insight struct {
	SessionID string `json:"session_id"`
	ContextID string `json:"context_id"`
	Text      string `json:"text"`
	Fallback  bool   `json:"fallback,omitempty"`
	Error     string `json:"error,omitempty"`
}
