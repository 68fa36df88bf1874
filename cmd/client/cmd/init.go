package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bizsync/cmd/client/cmd/audit"
	"bizsync/cmd/client/cmd/auth"
	"bizsync/cmd/client/cmd/queue"
	"bizsync/cmd/client/cmd/quota"
	"bizsync/cmd/client/cmd/record"
	"bizsync/cmd/client/cmd/sync"
	"bizsync/internal/app/client"
)

var migrateRemote bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Подготовить локальное хранилище и проверить связь",
	Long: `Команда init выполняет первоначальную настройку агента:
	1. Создает локальное хранилище и применяет его миграции
	2. Проверяет соединение с сервером
	3. С флагом --migrate-remote применяет миграции серверной схемы

Работать можно и без сервера: изменения копятся в очереди
и уйдут при первой синхронизации.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Println("=== Инициализация bizsync ===")
		fmt.Println()
		fmt.Printf("Локальное хранилище: %s\n", cfg.Store.Path)

		if migrateRemote {
			fmt.Println("Миграция серверной схемы...")
			if err := app.MigrateRemote(); err != nil {
				if errors.Is(err, client.ErrRemoteNotConfigured) {
					return fmt.Errorf("сервер не настроен, задайте --remote или REMOTE_DATABASE_URI")
				}
				return fmt.Errorf("ошибка миграции серверной схемы: %w", err)
			}
			color.Green("✓ Серверная схема актуальна")
		}

		fmt.Println("Проверка соединения с сервером...")
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		state := app.CheckConnection(ctx)
		if state.IsOnline {
			color.Green("✓ Соединение установлено (%s, %.0f мс)", state.Quality, state.AverageLatencyMs)
		} else {
			color.Yellow("⚠️  Сервер недоступен, агент будет работать офлайн")
		}

		fmt.Println()
		fmt.Println("Что дальше:")
		fmt.Println("1. Войдите: bizsync auth login --user <id> --tenant <id> --role owner")
		fmt.Println("2. Запустите агент: bizsync run")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&migrateRemote, "migrate-remote", false, "применить миграции серверной схемы")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(auth.AuthCmd)
	auth.AuthCmd.AddCommand(auth.LoginCmd)
	auth.AuthCmd.AddCommand(auth.ResumeCmd)
	auth.AuthCmd.AddCommand(auth.LogoutCmd)
	auth.AuthCmd.AddCommand(auth.WhoamiCmd)

	rootCmd.AddCommand(record.RecordCmd)
	record.RecordCmd.AddCommand(record.PutCmd)
	record.RecordCmd.AddCommand(record.GetCmd)
	record.RecordCmd.AddCommand(record.ListCmd)
	record.RecordCmd.AddCommand(record.DeleteCmd)

	rootCmd.AddCommand(sync.SyncCmd)
	sync.SyncCmd.AddCommand(sync.ResolveCmd)

	rootCmd.AddCommand(queue.QueueCmd)
	queue.QueueCmd.AddCommand(queue.ListCmd)
	queue.QueueCmd.AddCommand(queue.PurgeCmd)

	rootCmd.AddCommand(quota.QuotaCmd)
	quota.QuotaCmd.AddCommand(quota.ShowCmd)
	quota.QuotaCmd.AddCommand(quota.ReserveCmd)
	quota.QuotaCmd.AddCommand(quota.CommitCmd)
	quota.QuotaCmd.AddCommand(quota.CancelCmd)
	quota.QuotaCmd.AddCommand(quota.ReconcileCmd)

	rootCmd.AddCommand(audit.AuditCmd)
}
