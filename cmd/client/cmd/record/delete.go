package record

import (
	"fmt"

	"github.com/spf13/cobra"

	"bizsync/cmd/client/cmd/types"
	"bizsync/internal/domain/record"
)

var DeleteCmd = &cobra.Command{
	Use:   "delete <table> <id>",
	Short: "Удалить запись",
	Long:  `Мягкое удаление: запись помечается удаленной и удаление уходит на сервер с высшим приоритетом.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		table, err := record.ParseTable(args[0])
		if err != nil {
			return err
		}
		if err := app.Records.Delete(cmd.Context(), table, args[1]); err != nil {
			return fmt.Errorf("ошибка удаления записи: %w", err)
		}
		fmt.Printf("✓ Запись %s/%s удалена\n", table, args[1])
		return nil
	},
}
