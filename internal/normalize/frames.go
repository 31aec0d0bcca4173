// Package normalize turns raw debugger frames and variables into the
// canonical, sorted records stored on a DebugContext. Everything here is a
// pure function of its input.
package normalize

import (
	"strings"

	"github.com/samber/lo"
	"github.com/vburojevic/dcw/internal/domain"
)

const anonymousFrame = "<anonymous>"

var libraryMarkers = []string{
	"/node_modules/",
	"/bower_components/",
	"/vendor/",
	"/site-packages/",
	"/dist-packages/",
	"/pkg/mod/",
	"/.cargo/registry/",
	"/gems/",
	"/Library/Frameworks/",
	"/jspm_packages/",
}

var runtimeMarkers = []string{
	"node:internal/",
	"internal/modules/",
	"internal/process/",
	"/usr/local/go/src/",
	"/usr/lib/go/src/",
	"/goroot/src/",
	"<frozen ",
	"/lib/python3",
	"[native code]",
	"webpack/bootstrap",
	"/rustc/",
	"libsystem_",
	"<anonymous>",
	"native ",
}

// ClassifyFrame tags a frame's file path by the code it belongs to
func ClassifyFrame(file string) domain.FrameScope {
	f := strings.ReplaceAll(strings.TrimSpace(file), "\\", "/")
	if f == "" || f == domain.UnknownFile {
		return domain.FrameUnknown
	}
	lower := strings.ToLower(f)
	for _, m := range libraryMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return domain.FrameExternalLibrary
		}
	}
	if strings.HasPrefix(lower, "node:") {
		return domain.FrameRuntimeInternal
	}
	for _, m := range runtimeMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return domain.FrameRuntimeInternal
		}
	}
	return domain.FrameUserCode
}

// IsUserCode reports whether a frame file is application code
func IsUserCode(file string) bool {
	return ClassifyFrame(file) == domain.FrameUserCode
}

// Frames converts raw frames into tagged frames with user code first.
// Relative order inside each partition is the capture order.
func Frames(raw []domain.RawFrame) []domain.StackFrame {
	frames := lo.Map(raw, func(r domain.RawFrame, _ int) domain.StackFrame {
		return frame(r)
	})
	return UserCodeFirst(frames)
}

// UserCodeFirst stable-partitions frames so user code precedes everything else
func UserCodeFirst(frames []domain.StackFrame) []domain.StackFrame {
	isUser := func(f domain.StackFrame, _ int) bool { return f.Scope == domain.FrameUserCode }
	out := make([]domain.StackFrame, 0, len(frames))
	out = append(out, lo.Filter(frames, isUser)...)
	return append(out, lo.Reject(frames, isUser)...)
}

func frame(r domain.RawFrame) domain.StackFrame {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = anonymousFrame
	}
	file := strings.TrimSpace(r.File)
	if file == "" {
		file = domain.UnknownFile
	}
	return domain.StackFrame{
		Name:   name,
		File:   file,
		Line:   max(r.Line, 0),
		Column: max(r.Column, 0),
		Scope:  ClassifyFrame(file),
	}
}
