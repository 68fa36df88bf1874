package auth

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bizsync/cmd/client/cmd/types"
)

var LogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Завершить сессию устройства",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		if err := app.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("ошибка выхода: %w", err)
		}
		fmt.Println("✓ Сессия завершена")
		return nil
	},
}

var WhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Показать активного пользователя",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		u, ok := app.CurrentUser()
		if !ok {
			return fmt.Errorf("вход не выполнен. Выполните: bizsync auth login")
		}
		return types.Render(cmd.OutOrStdout(), u, func(w io.Writer) {
			fmt.Fprintf(w, "Пользователь: %s\n", u.ID)
			fmt.Fprintf(w, "Арендатор:    %s\n", u.TenantID)
			fmt.Fprintf(w, "Роль:         %s\n", u.Role)
			if u.Email != "" {
				fmt.Fprintf(w, "Email:        %s\n", u.Email)
			}
		})
	},
}
