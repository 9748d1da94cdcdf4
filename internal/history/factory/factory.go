package factory

import (
	"fmt"

	"github.com/loadops/k6ctl/internal/config"
	"github.com/loadops/k6ctl/internal/history"
	"github.com/loadops/k6ctl/internal/history/clickhouse"
	"github.com/loadops/k6ctl/internal/history/postgres"
	"github.com/loadops/k6ctl/internal/history/sqlite"
)

// New builds a history sink from config. A nil config or empty backend means
// history is disabled and (nil, nil) is returned.
func New(hc *config.History) (history.Sink, error) {
	if hc == nil || hc.Backend == "" {
		return nil, nil
	}
	switch hc.Backend {
	case "sqlite":
		return sqlite.New(hc.DSN)
	case "postgres":
		return postgres.New(hc.DSN)
	case "clickhouse":
		return clickhouse.New(hc.DSN, hc.Table)
	default:
		return nil, fmt.Errorf("unsupported history backend: %s", hc.Backend)
	}
}
