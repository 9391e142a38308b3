package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/ingestion"
	"github.com/poiesic/ragchat/search"
)

var (
	accent = lipgloss.Color("#7C3AED")
	muted  = lipgloss.Color("#6C7086")
	good   = lipgloss.Color("#A6E3A1")
	bad    = lipgloss.Color("#F38BA8")

	promptStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	answerStyle  = lipgloss.NewStyle().PaddingLeft(2)
	headerStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	sourceStyle  = lipgloss.NewStyle().Foreground(muted)
	noteStyle    = lipgloss.NewStyle().Foreground(good)
	errorStyle   = lipgloss.NewStyle().Foreground(bad)
	snippetStyle = lipgloss.NewStyle().PaddingLeft(4).Foreground(muted)
)

func renderPrompt() string {
	return promptStyle.Render("? ")
}

func renderNote(msg string) string {
	return noteStyle.Render(msg)
}

func renderError(err error) string {
	return errorStyle.Render("error: " + err.Error())
}

// sourceLabel names a chunk by its relative path and, for PDFs, its page.
func sourceLabel(chunk core.Chunk) string {
	if page := chunk.Metadata[core.MetaPage]; page != "" {
		return fmt.Sprintf("%s (page %s)", chunk.SourceID, page)
	}
	return chunk.SourceID
}

// renderAnswer prints the answer followed by its distinct sources.
func renderAnswer(w io.Writer, result *core.AnswerResult) {
	fmt.Fprintln(w, answerStyle.Render(result.Answer))

	seen := make(map[string]bool)
	var labels []string
	for _, chunk := range result.SourceDocuments {
		label := sourceLabel(chunk)
		if seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, headerStyle.Render("Sources"))
	for _, label := range labels {
		fmt.Fprintln(w, sourceStyle.Render("  - "+label))
	}
	fmt.Fprintln(w)
}

// renderHits prints retrieved chunks with their distance, marking chunks
// that contain every term of the query.
func renderHits(w io.Writer, query string, hits []core.ScoredChunk) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Found %d hits", len(hits))))
	for i, hit := range hits {
		marker := ""
		if search.ContainsAllTerms(hit.Chunk.Text, query) {
			marker = noteStyle.Render(" [verbatim]")
		}
		fmt.Fprintf(w, "%d: %s [%0.3f]%s\n", i, sourceStyle.Render(sourceLabel(hit.Chunk)), hit.Distance, marker)
		fmt.Fprintln(w, snippetStyle.Render(snippet(hit.Chunk.Text, 160)))
	}
}

// snippet flattens whitespace and truncates text to at most n runes.
func snippet(text string, n int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= n {
		return flat
	}
	return string(runes[:n]) + "..."
}

// renderReport summarizes an ingestion run.
func renderReport(w io.Writer, report *ingestion.Report) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Indexed %s (%s)", report.Root, report.Mode)))
	fmt.Fprintf(w, "  loaded: %d  failed: %d  skipped: %d\n", report.Loaded, report.Failed(), len(report.Skipped))
	fmt.Fprintf(w, "  documents: %d  chunks: %d  indexed: %d\n", report.Documents, report.Chunks, report.Indexed)
	for _, failure := range report.Failures {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("  failed %s: %v", failure.SourceID, failure.Err)))
	}
	for _, timing := range report.Timings {
		fmt.Fprintln(w, sourceStyle.Render(fmt.Sprintf("  %s: %s", timing.Stage, timing.Elapsed.Round(time.Millisecond))))
	}
}

// renderStats lists published namespaces.
func renderStats(w io.Writer, manifests []core.IndexManifest) {
	if len(manifests) == 0 {
		fmt.Fprintln(w, sourceStyle.Render("no indexes"))
		return
	}
	for _, m := range manifests {
		fmt.Fprintln(w, headerStyle.Render(m.Namespace))
		fmt.Fprintf(w, "  chunks: %d  version: %d  embedding: %s\n", m.Count, m.Version, m.Fingerprint)
		fmt.Fprintf(w, "  updated: %s\n", m.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}
