package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/advisor"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	sourceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func printMarkdown(w io.Writer, text string) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err == nil {
		if out, err := r.Render(text); err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprintln(w, text)
}

func printSources(w io.Writer, sources []string) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, headingStyle.Render("Sources"))
	for _, s := range sources {
		fmt.Fprintln(w, sourceStyle.Render("  "+s))
	}
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// userError turns an advisor error into the message a user would see in the
// web app. Input errors lose their internal wrapping.
func userError(err error, noun string) error {
	if errors.Is(err, models.ErrInvalidInput) || errors.Is(err, models.ErrInvalidProfile) {
		return errors.New(advisor.UserMessage(fmt.Errorf("%w: %w", models.ErrInvalidInput, err), noun))
	}
	return fmt.Errorf("%s (%w)", advisor.TryAgainMessage, err)
}
