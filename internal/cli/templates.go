package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/backdrop/pkg/cache"
	"github.com/matzehuels/backdrop/pkg/template"
)

// templatesCommand creates the templates command.
func (c *CLI) templatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "templates",
		Aliases: []string{"ls"},
		Short:   "List the available templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTemplates(cmd.Context())
		},
	}
}

func (c *CLI) runTemplates(ctx context.Context) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	src, err := c.newSource(cfg, cache.NewNullCache())
	if err != nil {
		return err
	}
	entries, err := src.List(ctx)
	if err != nil {
		return err
	}

	selected := map[string]bool{}
	if d, err := c.readForm(ctx, ""); err == nil {
		for _, id := range d.SelectedTemplates {
			selected[id] = true
		}
	}

	fmt.Fprintln(stdout, templatesTable(entries, selected))
	printNewline()
	printNextStep("Pick templates with", "backdrop form")
	return nil
}

func templatesTable(entries []template.Entry, selected map[string]bool) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		mark := ""
		if selected[e.ID] {
			mark = iconSuccess
		}
		rows = append(rows, []string{mark, e.ID, e.DisplayName, e.Description})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "ID", "Name", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			base := lipgloss.NewStyle().Padding(0, 1)
			if row >= 0 && row < len(entries) && selected[entries[row].ID] {
				return base.Foreground(colorGreen)
			}
			if col == 3 {
				return base.Foreground(colorDim)
			}
			return base
		})
	return t.Render()
}
