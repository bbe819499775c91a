// Package cli provides CLI output helpers for Kaiwa.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates an output format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteProjects writes the project list to w in the given format.
func WriteProjects(w io.Writer, infos []models.ProjectInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "No projects. Create one with: kaiwa projects create <name>")
		return nil
	}
	for _, info := range infos {
		marker := " "
		if info.Active {
			marker = "*"
		}
		name := info.Name
		if info.Icon != "" {
			name = info.Icon + " " + name
		}
		fmt.Fprintf(w, "%s %-36s  %-24s  %d docs, %d turns\n",
			marker, info.ID, name, info.DocumentCount, info.TurnCount)
	}
	return nil
}

// WriteAnswer writes an ask response to w in the given format.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, resp.Answer.Text)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, src := range resp.Sources {
			fmt.Fprintf(w, "  - %s\n", utils.Truncate(src, 120))
		}
	}
	return nil
}

// WriteTranscript writes a transcript to w in the given format.
func WriteTranscript(w io.Writer, transcript models.Transcript, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, transcript)
	}
	if len(transcript) == 0 {
		fmt.Fprintln(w, "Transcript is empty.")
		return nil
	}
	for _, turn := range transcript {
		fmt.Fprintf(w, "[%s] %s\n", turn.Role, turn.Text)
	}
	return nil
}

// WriteStatus writes a status response to w in the given format.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "projects:         %d\n", status.Projects)
	if status.ActiveProject != "" {
		fmt.Fprintf(w, "active_project:   %s\n", status.ActiveProject)
	}
	fmt.Fprintf(w, "session_state:    %s\n", status.SessionState)
	fmt.Fprintf(w, "transcript_turns: %d\n", status.TranscriptTurns)
	fmt.Fprintf(w, "index_size:       %d\n", status.IndexSize)
	if status.EmbeddingDims > 0 {
		fmt.Fprintf(w, "embedding_dims:   %d\n", status.EmbeddingDims)
	}
	fmt.Fprintf(w, "storage_bytes:    %d\n", status.StorageBytes)
	return nil
}
