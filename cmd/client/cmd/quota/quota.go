package quota

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bizsync/cmd/client/cmd/types"
	"bizsync/internal/app/client"
)

var (
	userID  string
	quotaID string
)

var QuotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Квоты использования",
	Long: `Резервирование и расход квот. Резерв уменьшает доступный объем сразу,
даже без связи, и истекает, если его не подтвердить.`,
}

func resolveUser(app *client.App) (string, error) {
	if userID != "" {
		return userID, nil
	}
	u, ok := app.CurrentUser()
	if !ok {
		return "", fmt.Errorf("требуется вход. Выполните: bizsync auth login")
	}
	return u.ID, nil
}

var ShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Показать квоту и резервы",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		uid, err := resolveUser(app)
		if err != nil {
			return err
		}

		usage, err := app.Quota.Available(cmd.Context(), uid)
		if err != nil {
			return fmt.Errorf("ошибка чтения квоты: %w", err)
		}
		reservations, err := app.Quota.Reservations(cmd.Context(), uid, 20)
		if err != nil {
			return fmt.Errorf("ошибка чтения резервов: %w", err)
		}

		out := map[string]any{"usage": usage, "reservations": reservations}
		return types.Render(cmd.OutOrStdout(), out, func(w io.Writer) {
			fmt.Fprintf(w, "Квота:       %s\n", usage.QuotaID)
			fmt.Fprintf(w, "Лимит:       %d\n", usage.Limit)
			fmt.Fprintf(w, "Израсходовано: %d\n", usage.Used)
			fmt.Fprintf(w, "В резерве:   %d\n", usage.Reserved)
			fmt.Fprintf(w, "Доступно:    %d\n", usage.Available)
			if len(reservations) == 0 {
				return
			}
			fmt.Fprintln(w)
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "РЕЗЕРВ\tОБЪЕМ\tСТАТУС\tИСТЕКАЕТ")
			for _, r := range reservations {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.ID, r.Amount, r.Status, r.ExpiresAt.Format("2006-01-02 15:04:05"))
			}
			_ = tw.Flush()
		})
	},
}

var ReserveCmd = &cobra.Command{
	Use:   "reserve <amount>",
	Short: "Зарезервировать объем квоты",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		uid, err := resolveUser(app)
		if err != nil {
			return err
		}
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("неверный объем: %w", err)
		}

		res, err := app.Quota.Reserve(cmd.Context(), uid, amount)
		if err != nil {
			return fmt.Errorf("ошибка резервирования: %w", err)
		}
		return types.Render(cmd.OutOrStdout(), res, func(w io.Writer) {
			if !res.Success {
				color.New(color.FgYellow).Fprintf(w, "⚠️  Недостаточно квоты: доступно %d\n", res.Available)
				return
			}
			fmt.Fprintf(w, "✓ Резерв %s, остаток %d\n", res.ReservationID, res.Remaining)
		})
	},
}

var CommitCmd = &cobra.Command{
	Use:   "commit <reservation-id> <amount-used>",
	Short: "Подтвердить расход по резерву",
	Long: `Подтверждает фактический расход по резерву. С --quota вместо резерва
берется старейший активный резерв указанной квоты, и id резерва не нужен.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		amountArg := args[len(args)-1]
		used, err := strconv.ParseInt(amountArg, 10, 64)
		if err != nil {
			return fmt.Errorf("неверный объем: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if quotaID != "" {
			if len(args) != 1 {
				return fmt.Errorf("с --quota укажите только объем")
			}
			r, err := app.Quota.Commit(ctx, quotaID, used)
			if err != nil {
				return fmt.Errorf("ошибка подтверждения: %w", err)
			}
			return types.Render(cmd.OutOrStdout(), r, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Резерв %s подтвержден: %d из %d\n", r.ID, r.AmountUsed, r.Amount)
			})
		}

		if len(args) != 2 {
			return fmt.Errorf("укажите резерв и объем")
		}
		r, err := app.Quota.CommitReservation(ctx, args[0], used)
		if err != nil {
			return fmt.Errorf("ошибка подтверждения: %w", err)
		}
		return types.Render(cmd.OutOrStdout(), r, func(w io.Writer) {
			fmt.Fprintf(w, "✓ Резерв %s подтвержден: %d из %d\n", r.ID, r.AmountUsed, r.Amount)
		})
	},
}

var CancelCmd = &cobra.Command{
	Use:   "cancel <reservation-id>",
	Short: "Отменить резерв",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		if err := app.Quota.Cancel(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("ошибка отмены резерва: %w", err)
		}
		fmt.Println("✓ Резерв отменен")
		return nil
	},
}

var ReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Сверить счетчики квоты с сервером",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		uid, err := resolveUser(app)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		applied, err := app.Quota.Reconcile(ctx, uid)
		if err != nil {
			return fmt.Errorf("ошибка сверки: %w", err)
		}
		if applied {
			fmt.Println("✓ Счетчики приняты с сервера")
		} else {
			fmt.Println("Сверка отложена: локальные изменения квоты еще не отправлены")
		}
		return nil
	},
}

func init() {
	QuotaCmd.PersistentFlags().StringVar(&userID, "user", "", "пользователь (по умолчанию активный)")
	CommitCmd.Flags().StringVar(&quotaID, "quota", "", "квота, по старейшему резерву которой подтверждается расход")
}
