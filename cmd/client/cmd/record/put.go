package record

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bizsync/cmd/client/cmd/types"
	"bizsync/internal/domain/record"
)

var (
	putData string
	putFile string
)

var PutCmd = &cobra.Command{
	Use:   "put <table> [id]",
	Short: "Создать или обновить запись",
	Long: `Сохраняет запись таблицы локально и ставит ее в очередь синхронизации.
Поля записи передаются JSON-объектом через --data или --file ("-" читает stdin).
Без id создается новая запись со сгенерированным идентификатором.

Пример:
  bizsync record put contacts --data '{"name":"Alice","phone":"+15551234567"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		table, err := record.ParseTable(args[0])
		if err != nil {
			return err
		}

		raw, err := readData(cmd.InOrStdin())
		if err != nil {
			return err
		}

		fields := map[string]any{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("данные записи должны быть JSON-объектом: %w", err)
		}

		id := uuid.NewString()
		if len(args) == 2 {
			id = args[1]
		} else if v, ok := fields["id"].(string); ok && v != "" {
			id = v
		}
		fields["id"] = id

		data, err := json.Marshal(fields)
		if err != nil {
			return err
		}

		r, err := record.Decode(record.Entry{Table: table, ID: id, Data: data})
		if err != nil {
			return err
		}

		entry, err := app.Records.Save(cmd.Context(), r)
		if err != nil {
			return fmt.Errorf("ошибка сохранения записи: %w", err)
		}

		return types.Render(cmd.OutOrStdout(), entry, func(w io.Writer) {
			fmt.Fprintf(w, "✓ Запись сохранена: %s/%s (версия %d, %s)\n", entry.Table, entry.ID, entry.Version, entry.SyncStatus)
		})
	},
}

func readData(stdin io.Reader) ([]byte, error) {
	switch {
	case putData != "":
		return []byte(putData), nil
	case putFile == "-":
		return io.ReadAll(stdin)
	case putFile != "":
		return os.ReadFile(putFile)
	default:
		return nil, fmt.Errorf("укажите --data или --file")
	}
}

func init() {
	PutCmd.Flags().StringVarP(&putData, "data", "d", "", "поля записи в JSON")
	PutCmd.Flags().StringVarP(&putFile, "file", "f", "", "файл с полями записи в JSON")
}
