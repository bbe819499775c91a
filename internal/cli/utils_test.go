package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/kaiwa/internal/models"
)

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != OutputText {
		t.Errorf("empty: %v %v", f, err)
	}
	if f, err := ParseFormat("json"); err != nil || f != OutputJSON {
		t.Errorf("json: %v %v", f, err)
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteProjectsText(t *testing.T) {
	infos := []models.ProjectInfo{
		{ID: "id-1", Name: "Biology", Icon: "🧬", Active: true, DocumentCount: 2, TurnCount: 4},
		{ID: "id-2", Name: "History", DocumentCount: 0, TurnCount: 0},
	}
	var buf bytes.Buffer
	if err := WriteProjects(&buf, infos, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Biology") || !strings.Contains(out, "History") {
		t.Errorf("output %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(lines[0], "*") {
		t.Errorf("active project not marked: %q", lines[0])
	}
}

func TestWriteProjectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteProjects(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No projects") {
		t.Errorf("output %q", buf.String())
	}
}

func TestWriteAnswerJSON(t *testing.T) {
	resp := &models.AskResponse{
		Answer:  models.Turn{Role: models.RoleAssistant, Text: "the answer"},
		Sources: []string{"chunk one"},
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, resp, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.AskResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Answer.Text != "the answer" {
		t.Errorf("decoded %+v", decoded)
	}
}

func TestWriteTranscriptText(t *testing.T) {
	transcript := models.Transcript{
		{Role: models.RoleUser, Text: "hello"},
		{Role: models.RoleAssistant, Text: "hi there"},
	}
	var buf bytes.Buffer
	if err := WriteTranscript(&buf, transcript, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "[user] hello") || !strings.Contains(out, "[assistant] hi there") {
		t.Errorf("output %q", out)
	}
}

func TestWriteStatusText(t *testing.T) {
	status := &models.StatusResponse{
		Projects:      2,
		ActiveProject: "id-1",
		SessionState:  "index_ready",
		IndexSize:     42,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "index_ready") || !strings.Contains(out, "42") {
		t.Errorf("output %q", out)
	}
}
