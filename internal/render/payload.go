package render

import (
	"github.com/go-playground/validator/v10"

	"statusline/internal/sources"
)

var payloadValidate = validator.New()

// Payload is the JSON this module expects on standard input, grounded on
// the teacher's statusline/lib/types.SessionContext contract, extended
// with the context-window usage snapshot spec.md §3 names as part of a
// Session's attributes. spec.md §6 documents several accepted aliases for
// the path and model fields and nests the usage snapshot under
// context_window_size/current_usage rather than flat fields (decoded here
// into RawContextWindow, since a field can't share its name with the
// ContextWindow method), with the alias groups resolved by priority in
// WorkingDir/ModelName/ContextWindow below. The numeric usage fields are
// validator-tagged non-negative: a hostile or corrupted payload can claim
// a negative token count, which would otherwise silently corrupt the
// derived ContextTokens total.
type Payload struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	StartDirectory string `json:"start_directory"`

	Model struct {
		DisplayName string `json:"display_name"`
		ID          string `json:"id"`
		Name        string `json:"name"`
	} `json:"model"`

	Workspace struct {
		CurrentDir string `json:"current_dir"`
		ProjectDir string `json:"project_dir"`
	} `json:"workspace"`

	RawContextWindow struct {
		Size         int `json:"context_window_size" validate:"gte=0"`
		CurrentUsage struct {
			InputTokens          int `json:"input_tokens" validate:"gte=0"`
			OutputTokens         int `json:"output_tokens" validate:"gte=0"`
			CacheReadInputTokens int `json:"cache_read_input_tokens" validate:"gte=0"`
		} `json:"current_usage"`
	} `json:"context_window"`
}

// Validate enforces Payload's struct tags, returning a descriptive error
// when the stdin payload carries out-of-range numeric fields. Callers
// that only care about a best-effort render (the Renderer itself) may
// ignore the error and use the payload's zero-valued fields instead;
// the Runner propagates it as a hard fetch-input failure.
func (p Payload) Validate() error {
	return payloadValidate.Struct(p)
}

// WorkingDir applies spec.md §6's fallback priority: cwd, then
// start_directory, then the current workspace dir, then the project root.
func (p Payload) WorkingDir() string {
	if p.CWD != "" {
		return p.CWD
	}
	if p.StartDirectory != "" {
		return p.StartDirectory
	}
	if p.Workspace.CurrentDir != "" {
		return p.Workspace.CurrentDir
	}
	return p.Workspace.ProjectDir
}

// ModelName applies spec.md §6's model field priority: display_name, then
// id, then name.
func (p Payload) ModelName() string {
	if p.Model.DisplayName != "" {
		return p.Model.DisplayName
	}
	if p.Model.ID != "" {
		return p.Model.ID
	}
	return p.Model.Name
}

// ContextWindow converts the stdin usage snapshot to the sources package's
// shape, applying spec.md §6's nested context_window_size/current_usage
// field names.
func (p Payload) ContextWindow() sources.ContextWindow {
	return sources.ContextWindow{
		Size:                 p.RawContextWindow.Size,
		InputTokens:          p.RawContextWindow.CurrentUsage.InputTokens,
		OutputTokens:         p.RawContextWindow.CurrentUsage.OutputTokens,
		CacheReadInputTokens: p.RawContextWindow.CurrentUsage.CacheReadInputTokens,
	}
}

// overridesCache reports whether the stdin payload disagrees with the
// cached session's path/model/context fields - spec.md §4.5 step 3's
// trigger for the fallback re-render path.
func (p Payload) overridesCache(workingDir, model string, contextTokens int) bool {
	if p.WorkingDir() != "" && p.WorkingDir() != workingDir {
		return true
	}
	if p.ModelName() != "" && p.ModelName() != model {
		return true
	}
	tokens := p.RawContextWindow.CurrentUsage.InputTokens + p.RawContextWindow.CurrentUsage.OutputTokens + p.RawContextWindow.CurrentUsage.CacheReadInputTokens
	return tokens > 0 && tokens != contextTokens
}
