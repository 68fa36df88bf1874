package auth

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bizsync/cmd/client/cmd/types"
	"bizsync/internal/domain/tenant"
)

var (
	userID   string
	tenantID string
	role     string
	email    string
	noSync   bool
	token    string
)

var LoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Войти и выпустить сессию устройства",
	Long: `Делает пользователя активным на устройстве. Если сервер доступен,
заявленные арендатор и роль сверяются с серверным профилем.

Токен сессии сохраняется локально; его же принимает API управления.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		app.CheckConnection(ctx)

		u := tenant.User{ID: userID, TenantID: tenantID, Role: tenant.Role(role), Email: email}
		tok, err := app.Login(ctx, u)
		if err != nil {
			return fmt.Errorf("ошибка входа: %w", err)
		}

		if types.JSONOutput {
			return types.Render(cmd.OutOrStdout(), map[string]any{"user": u, "token": tok}, nil)
		}

		color.Green("✅ Вход выполнен: %s (%s)", u.ID, u.Role)
		fmt.Printf("Токен сессии: %s\n", tok)

		if noSync {
			return nil
		}

		fmt.Println("Синхронизация данных...")
		result, err := app.Sync.TriggerSync(ctx)
		switch {
		case err != nil:
			color.Yellow("⚠️  Синхронизация недоступна: %v", err)
			fmt.Println("Можно продолжать работу офлайн")
		case !result.Success:
			color.Yellow("⚠️  Синхронизация завершена с ошибками (%d)", len(result.Errors))
		default:
			color.Green("✓ Данные синхронизированы")
		}
		return nil
	},
}

var ResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Восстановить сессию по токену",
	Long: `Восстанавливает контекст пользователя по токену сессии устройства.
Без --token токен читается с терминала.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		tok := token
		if tok == "" {
			if tok, err = readToken(); err != nil {
				return err
			}
		}

		u, err := app.Resume(cmd.Context(), tok)
		if err != nil {
			return fmt.Errorf("ошибка восстановления сессии: %w", err)
		}
		return types.Render(cmd.OutOrStdout(), u, func(w io.Writer) {
			fmt.Fprintf(w, "✓ Сессия восстановлена: %s, арендатор %s (%s)\n", u.ID, u.TenantID, u.Role)
		})
	},
}

func readToken() (string, error) {
	fmt.Print("Токен сессии: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("ошибка чтения токена: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func init() {
	LoginCmd.Flags().StringVar(&userID, "user", "", "идентификатор пользователя (UUID)")
	LoginCmd.Flags().StringVar(&tenantID, "tenant", "", "идентификатор арендатора (UUID)")
	LoginCmd.Flags().StringVar(&role, "role", string(tenant.RoleOwner), "роль: owner или staff")
	LoginCmd.Flags().StringVar(&email, "email", "", "email пользователя")
	LoginCmd.Flags().BoolVar(&noSync, "no-sync", false, "не синхронизировать после входа")
	_ = LoginCmd.MarkFlagRequired("user")
	_ = LoginCmd.MarkFlagRequired("tenant")

	ResumeCmd.Flags().StringVar(&token, "token", "", "токен сессии устройства")
}
