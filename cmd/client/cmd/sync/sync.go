package sync

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bizsync/cmd/client/cmd/types"
	"bizsync/internal/app/client"
	"bizsync/internal/domain/conflict"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
)

var (
	syncStatus    bool
	showConflicts bool
	partial       float64
	tables        []string
	winner        string
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Управление синхронизацией",
	Long: `Синхронизация данных между устройством и сервером.

Без флагов выполняет полный проход: отправка очереди, затем загрузка изменений.
С --partial загружает только долю записей указанных таблиц для быстрого первого показа.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		if syncStatus {
			return showSyncStatus(cmd, app)
		}
		if showConflicts {
			return showSyncConflicts(cmd, app)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		if _, ok := app.CurrentUser(); !ok {
			return fmt.Errorf("требуется вход. Выполните: bizsync auth login")
		}

		fmt.Println("Проверка соединения с сервером...")
		if state := app.CheckConnection(ctx); !state.IsOnline {
			return fmt.Errorf("сервер недоступен, изменения остаются в очереди")
		}

		var result *sync.Result
		if partial > 0 {
			ts, err := parseTables(tables)
			if err != nil {
				return err
			}
			fmt.Printf("Частичная загрузка (%.0f%%)...\n", partial*100)
			result, err = app.Sync.PartialSync(ctx, ts, partial)
			if err != nil && result == nil {
				return fmt.Errorf("ошибка синхронизации: %w", err)
			}
		} else {
			fmt.Println("Начало синхронизации...")
			result, err = app.Sync.TriggerSync(ctx)
			if err != nil && result == nil {
				return fmt.Errorf("ошибка синхронизации: %w", err)
			}
		}

		return types.Render(cmd.OutOrStdout(), result, func(w io.Writer) {
			printResult(w, result)
		})
	},
}

func parseTables(names []string) ([]record.Table, error) {
	if len(names) == 0 {
		return record.SyncableTables(), nil
	}
	out := make([]record.Table, 0, len(names))
	for _, name := range names {
		t, err := record.ParseTable(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func printResult(w io.Writer, result *sync.Result) {
	fmt.Fprintln(w)
	if result.Success {
		color.New(color.FgGreen).Fprintln(w, "✅ Синхронизация завершена!")
	} else {
		color.New(color.FgYellow).Fprintln(w, "⚠️  Синхронизация завершена с ошибками")
	}
	fmt.Fprintf(w, "Время выполнения: %v\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Отправлено на сервер: %d (не удалось: %d)\n", result.Pushed, result.Failed)
	fmt.Fprintf(w, "Загружено с сервера: %d\n", result.Pulled)

	if result.Conflicts > 0 {
		fmt.Fprintf(w, "Обнаружено конфликтов: %d\n", result.Conflicts)
		fmt.Fprintf(w, "Разрешено конфликтов: %d\n", result.Resolved)
		if result.Resolved < result.Conflicts {
			fmt.Fprintln(w, "⚠️  Часть конфликтов ждет ручного решения")
			fmt.Fprintln(w, "   Используйте 'bizsync sync --conflicts' для просмотра")
		}
	}
	if result.Rejected > 0 {
		fmt.Fprintf(w, "Отклонено строк чужого арендатора: %d\n", result.Rejected)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "Ошибок при синхронизации: %d\n", len(result.Errors))
		for i, e := range result.Errors {
			if i == 3 {
				fmt.Fprintf(w, "  ... и еще %d ошибок\n", len(result.Errors)-3)
				break
			}
			fmt.Fprintf(w, "  • %s %s %s: %s\n", e.Operation, e.Table, e.RecordID, e.Error)
		}
	}
}

func showSyncStatus(cmd *cobra.Command, app *client.App) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	app.CheckConnection(ctx)

	stats, err := app.Sync.GetSyncStats(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения статистики: %w", err)
	}

	return types.Render(cmd.OutOrStdout(), stats, func(w io.Writer) {
		fmt.Fprintln(w, "=== Статус синхронизации ===")
		fmt.Fprintf(w, "Состояние: %s\n", stats.State)
		fmt.Fprintf(w, "Всего синхронизаций: %d (успешных %d, с ошибками %d)\n", stats.TotalSyncs, stats.Successful, stats.FailedSyncs)
		fmt.Fprintf(w, "Отправлено: %d, загружено: %d\n", stats.TotalPushed, stats.TotalPulled)
		fmt.Fprintf(w, "Конфликтов: %d, разрешено: %d\n", stats.TotalConflicts, stats.TotalResolved)
		if !stats.LastSuccessful.IsZero() {
			fmt.Fprintf(w, "Последняя успешная: %s\n", stats.LastSuccessful.Format("2006-01-02 15:04:05"))
		}
		if stats.LastError != "" {
			fmt.Fprintf(w, "Последняя ошибка: %s\n", stats.LastError)
		}
		fmt.Fprintf(w, "Очередь: ожидают %d, в работе %d, с ошибкой %d\n", stats.Queue.Pending, stats.Queue.Processing, stats.Queue.Failed)
		fmt.Fprintf(w, "Интервал: %v (активность: %s)\n", stats.Interval, stats.Activity)

		fmt.Fprint(w, "Соединение: ")
		if stats.Connection.IsOnline {
			color.New(color.FgGreen).Fprintf(w, "%s, %.0f мс\n", stats.Connection.Quality, stats.Connection.AverageLatencyMs)
		} else {
			color.New(color.FgRed).Fprintln(w, "нет связи")
		}
	})
}

func showSyncConflicts(cmd *cobra.Command, app *client.App) error {
	var conflicts []record.Entry
	for _, table := range record.SyncableTables() {
		entries, err := app.Records.List(cmd.Context(), table, record.ListFilter{Status: record.StatusConflict})
		if err != nil {
			return fmt.Errorf("ошибка получения конфликтов: %w", err)
		}
		conflicts = append(conflicts, entries...)
	}

	return types.Render(cmd.OutOrStdout(), conflicts, func(w io.Writer) {
		if len(conflicts) == 0 {
			fmt.Fprintln(w, "Неразрешенных конфликтов нет")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ТАБЛИЦА\tID\tВЕРСИЯ\tОБНОВЛЕНО")
		for _, e := range conflicts {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.Table, e.ID, e.Version, e.LastModified.Format("2006-01-02 15:04"))
		}
		_ = tw.Flush()
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Решение: bizsync sync resolve <table> <id> --winner local|remote|merged")
	})
}

var ResolveCmd = &cobra.Command{
	Use:   "resolve <table> <id>",
	Short: "Разрешить конфликт вручную",
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

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		app.CheckConnection(ctx)

		entry, err := app.Sync.ResolveConflict(ctx, table, args[1], conflict.Winner(winner))
		if err != nil {
			return fmt.Errorf("ошибка разрешения конфликта: %w", err)
		}
		return types.Render(cmd.OutOrStdout(), entry, func(w io.Writer) {
			fmt.Fprintf(w, "✓ Конфликт %s/%s разрешен, версия %d поставлена в очередь\n", entry.Table, entry.ID, entry.Version)
		})
	},
}

func init() {
	SyncCmd.Flags().BoolVar(&syncStatus, "status", false, "показать статус синхронизации")
	SyncCmd.Flags().BoolVar(&showConflicts, "conflicts", false, "показать неразрешенные конфликты")
	SyncCmd.Flags().Float64Var(&partial, "partial", 0, "доля записей для частичной загрузки, (0, 1]")
	SyncCmd.Flags().StringSliceVar(&tables, "tables", nil, "таблицы частичной загрузки")

	ResolveCmd.Flags().StringVar(&winner, "winner", string(conflict.WinnerLocal), "победитель: local, remote или merged")
}
