// Package types общие ключи и помощники подкоманд клиента
package types

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bizsync/internal/app/client"
)

type contextKey string

// ClientAppKey ключ *client.App в контексте команды
const ClientAppKey contextKey = "app"

// JSONOutput выводить результаты в JSON вместо текста
var JSONOutput bool

// App достает приложение из контекста команды
func App(cmd *cobra.Command) (*client.App, error) {
	app, ok := cmd.Context().Value(ClientAppKey).(*client.App)
	if !ok || app == nil {
		return nil, fmt.Errorf("приложение не инициализировано")
	}
	return app, nil
}

// Render печатает v как JSON при --json, иначе вызывает text
func Render(w io.Writer, v any, text func(w io.Writer)) error {
	if !JSONOutput {
		text(w)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
