package record

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bizsync/cmd/client/cmd/types"
	"bizsync/internal/domain/record"
)

var (
	listStatus  string
	showDeleted bool
	limit       int
)

var ListCmd = &cobra.Command{
	Use:   "list <table>",
	Short: "Список записей",
	Long: `Записи таблицы активного арендатора, новые первыми.
Флаг --status отбирает записи по состоянию синхронизации: pending, synced, conflict, error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		table, err := record.ParseTable(args[0])
		if err != nil {
			return err
		}

		entries, err := app.Records.List(cmd.Context(), table, record.ListFilter{
			Status:         record.SyncStatus(listStatus),
			IncludeDeleted: showDeleted,
			Limit:          limit,
		})
		if err != nil {
			return fmt.Errorf("ошибка получения списка записей: %w", err)
		}

		return types.Render(cmd.OutOrStdout(), entries, func(w io.Writer) {
			if len(entries) == 0 {
				fmt.Fprintln(w, "Записей нет")
				return
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tВЕРСИЯ\tСТАТУС\tУДАЛЕНА\tОБНОВЛЕНО")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%v\t%s\n",
					e.ID, e.Version, e.SyncStatus, e.Deleted, e.LastModified.Format("2006-01-02 15:04"))
			}
			_ = tw.Flush()
		})
	},
}

func init() {
	ListCmd.Flags().StringVar(&listStatus, "status", "", "фильтр по статусу синхронизации")
	ListCmd.Flags().BoolVar(&showDeleted, "deleted", false, "показывать удаленные записи")
	ListCmd.Flags().IntVar(&limit, "limit", 50, "максимальное количество записей")
}
