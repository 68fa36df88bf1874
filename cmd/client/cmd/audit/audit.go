package audit

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bizsync/cmd/client/cmd/types"
	"bizsync/internal/domain/tenant"
)

var (
	limit  int
	prefix string
)

var AuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Журнал событий безопасности",
	Long:  `Последние события журнала аудита. Доступно только владельцу.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		if !app.Tenant.CheckPermission(cmd.Context(), tenant.ActionManage, "audit_log") {
			return fmt.Errorf("недостаточно прав для просмотра журнала")
		}

		events, err := app.Tenant.RecentEvents(cmd.Context(), limit, prefix)
		if err != nil {
			return fmt.Errorf("ошибка чтения журнала: %w", err)
		}

		return types.Render(cmd.OutOrStdout(), events, func(w io.Writer) {
			if len(events) == 0 {
				fmt.Fprintln(w, "Событий нет")
				return
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ВРЕМЯ\tСОБЫТИЕ\tВАЖНОСТЬ\tПОЛЬЗОВАТЕЛЬ\tРЕСУРС")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Type, e.Severity, e.UserID, e.Resource)
			}
			_ = tw.Flush()
		})
	},
}

func init() {
	AuditCmd.Flags().IntVar(&limit, "limit", 50, "количество событий")
	AuditCmd.Flags().StringVar(&prefix, "prefix", "", "префикс типа события, например session_")
}
