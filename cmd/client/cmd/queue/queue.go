package queue

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"bizsync/cmd/client/cmd/types"
	"bizsync/internal/domain/queue"
)

var (
	listStatus  string
	purgeStatus string
	limit       int
	olderThan   time.Duration
)

var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Очередь отправки",
	Long:  `Просмотр и обслуживание очереди изменений, ожидающих отправки на сервер.`,
}

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "Операции очереди",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		ops, err := app.Queue.List(cmd.Context(), queue.Status(listStatus), limit)
		if err != nil {
			return fmt.Errorf("ошибка чтения очереди: %w", err)
		}
		stats, err := app.Queue.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("ошибка чтения очереди: %w", err)
		}

		out := struct {
			Operations []queue.Operation `json:"operations"`
			Stats      queue.Stats       `json:"stats"`
		}{ops, stats}

		return types.Render(cmd.OutOrStdout(), out, func(w io.Writer) {
			fmt.Fprintf(w, "Ожидают: %d, в работе: %d, завершено: %d, с ошибкой: %d\n\n",
				stats.Pending, stats.Processing, stats.Completed, stats.Failed)
			if len(ops) == 0 {
				return
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tТАБЛИЦА\tОПЕРАЦИЯ\tЗАПИСЬ\tПРИОРИТЕТ\tПОПЫТОК\tОШИБКА")
			for _, op := range ops {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					op.ID, op.Table, op.Kind, op.RecordID, op.Priority, op.RetryCount, op.Error)
			}
			_ = tw.Flush()
		})
	},
}

var PurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Удалить завершенные или упавшие операции",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		n, err := app.Queue.PurgeOlderThan(cmd.Context(), app.Clock().Now().Add(-olderThan), queue.Status(purgeStatus))
		if err != nil {
			return fmt.Errorf("ошибка очистки очереди: %w", err)
		}
		fmt.Printf("✓ Удалено операций: %d\n", n)
		return nil
	},
}

func init() {
	ListCmd.Flags().StringVar(&listStatus, "status", string(queue.StatusPending), "статус: pending, processing, completed, failed")
	ListCmd.Flags().IntVar(&limit, "limit", 100, "максимальное количество операций")

	PurgeCmd.Flags().StringVar(&purgeStatus, "status", string(queue.StatusFailed), "статус: completed или failed")
	PurgeCmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "возраст операций")
}
