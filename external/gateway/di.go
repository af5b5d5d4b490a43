package gateway

import (
	"github.com/iconichq/automod/internal/config"
	"github.com/iconichq/automod/internal/gateway"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (gateway.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewHTTPGateway(cfg.APIBaseURL, cfg.UserID, cfg.UserToken, cfg.DeviceID), nil
	})
}
