package cmd

import (
	"github.com/spf13/cobra"

	"bizsync/internal/app/client/api"
)

var noAPI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Запустить агент синхронизации",
	Long: `Агент следит за соединением, синхронизирует по расписанию,
слушает ленту изменений сервера и обслуживает локальный API управления.
Останавливается по SIGINT или SIGTERM.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if noAPI {
			return app.Run(cmd.Context(), nil)
		}
		return app.Run(cmd.Context(), api.New(app, log))
	},
}

func init() {
	runCmd.Flags().BoolVar(&noAPI, "no-api", false, "не поднимать API управления")
}
