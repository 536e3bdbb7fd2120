package render

import (
	"encoding/json"
	"testing"
)

func TestPayloadValidateRejectsNegativeTokens(t *testing.T) {
	p := Payload{SessionID: "s1"}
	p.RawContextWindow.CurrentUsage.InputTokens = -1
	if err := p.Validate(); err == nil {
		t.Fatal("a negative input_tokens should fail validation")
	}
}

func TestPayloadValidateAcceptsZeroValues(t *testing.T) {
	p := Payload{SessionID: "s1"}
	if err := p.Validate(); err != nil {
		t.Fatalf("a payload with all-zero usage fields should validate, got %v", err)
	}
}

func TestWorkingDirFallbackPriority(t *testing.T) {
	var p Payload
	p.Workspace.ProjectDir = "/project"
	if got := p.WorkingDir(); got != "/project" {
		t.Errorf("WorkingDir should fall back to ProjectDir, got %q", got)
	}

	p.Workspace.CurrentDir = "/current"
	if got := p.WorkingDir(); got != "/current" {
		t.Errorf("WorkingDir should prefer CurrentDir over ProjectDir, got %q", got)
	}

	p.StartDirectory = "/start"
	if got := p.WorkingDir(); got != "/start" {
		t.Errorf("WorkingDir should prefer StartDirectory over CurrentDir/ProjectDir, got %q", got)
	}

	p.CWD = "/cwd"
	if got := p.WorkingDir(); got != "/cwd" {
		t.Errorf("WorkingDir should prefer CWD above all, got %q", got)
	}
}

func TestModelNameFallbackPriority(t *testing.T) {
	var p Payload
	p.Model.Name = "name-field"
	if got := p.ModelName(); got != "name-field" {
		t.Errorf("ModelName should fall back to Model.Name, got %q", got)
	}

	p.Model.ID = "id-field"
	if got := p.ModelName(); got != "id-field" {
		t.Errorf("ModelName should prefer Model.ID over Model.Name, got %q", got)
	}

	p.Model.DisplayName = "display-field"
	if got := p.ModelName(); got != "display-field" {
		t.Errorf("ModelName should prefer Model.DisplayName above all, got %q", got)
	}
}

// TestPayloadDecodesSpecScenarioOne decodes spec.md §8 scenario 1's literal
// worked stdin payload and checks the nested context_window shape lands in
// the fields the Renderer actually reads.
func TestPayloadDecodesSpecScenarioOne(t *testing.T) {
	raw := `{"session_id":"S1","context_window":{"context_window_size":200000,"current_usage":{"input_tokens":50000}}}`
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	tokens := p.ContextWindow()
	if tokens.Size != 200000 {
		t.Errorf("Size = %d, want 200000", tokens.Size)
	}
	if tokens.InputTokens != 50000 {
		t.Errorf("InputTokens = %d, want 50000", tokens.InputTokens)
	}
}

func TestOverridesCacheDetectsDivergence(t *testing.T) {
	var p Payload
	p.CWD = "/project-b"
	if !p.overridesCache("/project-a", "opus", 100) {
		t.Error("a different working dir should be reported as an override")
	}

	p2 := Payload{}
	p2.CWD = "/project-a"
	p2.Model.DisplayName = "haiku"
	if !p2.overridesCache("/project-a", "opus", 100) {
		t.Error("a different model should be reported as an override")
	}

	p3 := Payload{}
	p3.CWD = "/project-a"
	if p3.overridesCache("/project-a", "opus", 100) {
		t.Error("matching fields (with no context-window claim) should not be an override")
	}
}

func TestOverridesCacheIgnoresZeroContextWindow(t *testing.T) {
	p := Payload{}
	p.CWD = "/project-a"
	// ContextWindow all zero means "no opinion" - must not force a re-render.
	if p.overridesCache("/project-a", "opus", 500) {
		t.Error("an all-zero context window should not be treated as an override")
	}
}
