package auth

import (
	"github.com/spf13/cobra"
)

var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Управление сессией устройства",
	Long:  `Вход, восстановление и завершение сессии пользователя на этом устройстве.`,
}
