package session

import (
	"github.com/iconichq/automod/internal/config"
	"github.com/iconichq/automod/internal/gateway"
	"github.com/iconichq/automod/internal/journal"
	"github.com/iconichq/automod/internal/report"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		gw := do.MustInvoke[gateway.Client](i)
		jr := do.MustInvoke[journal.Journal](i)
		rp := do.MustInvoke[report.Sender](i)
		return NewManager(cfg, gw, jr, rp), nil
	})
}
