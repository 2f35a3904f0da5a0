package cmd

import (
	"encoding/json"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"loadq/internal/cli"
	"loadq/internal/storage"
	"loadq/internal/tui/history"
)

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history [ID]",
		Short: "List recorded runs, or show one run as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString("history-file")
			if path == "" {
				p, err := storage.DefaultPath()
				if err != nil {
					return exitWith(1, err)
				}
				path = p
			}

			store, err := storage.NewStore(path)
			if err != nil {
				return exitWith(1, err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				item, err := store.Get(args[0])
				if err != nil {
					return exitWith(1, err)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(item)
			}

			limit, _ := cmd.Flags().GetInt("limit")
			items, err := store.List(limit)
			if err != nil {
				return exitWith(1, err)
			}

			plain, _ := cmd.Flags().GetBool("no-tui")
			if plain || !isTerminal(out) || len(items) == 0 {
				cli.PrintHistory(out, items)
				return nil
			}

			_, err = tea.NewProgram(history.NewModel(items), tea.WithOutput(out)).Run()
			return err
		},
	}

	historyCmd.Flags().Int("limit", 20, "number of runs to list, 0 for all")
	historyCmd.Flags().Bool("no-tui", false, "print a table even on a terminal")

	return historyCmd
}
