package email

import (
	"fmt"
	"net/http"

	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/smallbiznis/qpayrelay/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Cfg        config.Config
	HTTPClient *http.Client            `optional:"true"`
	Upstream   *metrics.GatewayMetrics `optional:"true"`
}

// NewFromConfig builds the provider named by EMAIL_PROVIDER. Brevo is the default.
func NewFromConfig(p Params) (Provider, error) {
	cfg := p.Cfg.Email
	switch cfg.Provider {
	case config.EmailProviderBrevo, "":
		return NewBrevo(BrevoConfig{
			APIURL:      cfg.BrevoAPIURL,
			APIKey:      cfg.BrevoAPIKey,
			SenderName:  cfg.SenderName,
			SenderEmail: cfg.SenderEmail,
		}, p.HTTPClient, p.Upstream), nil
	case config.EmailProviderSMTP:
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("email provider %q requires SMTP_HOST", cfg.Provider)
		}
		return NewSMTP(SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			SenderName: cfg.SenderName,
			From:       cfg.SenderEmail,
		}, p.Upstream), nil
	default:
		return nil, fmt.Errorf("unsupported EMAIL_PROVIDER %q", cfg.Provider)
	}
}
