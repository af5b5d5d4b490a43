package report

import (
	"github.com/iconichq/automod/internal/config"
	"github.com/iconichq/automod/internal/report"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (report.Sender, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewHTTPSender(cfg.ReportWebhookURL), nil
	})
}
