package pdf

import (
	"context"

	"github.com/smallbiznis/qpayrelay/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(NewFromConfig),
)

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type Config struct {
	MerchantName  string
	MerchantEmail string
	LogoPath      string
}

func NewFromConfig(cfg config.Config) Provider {
	return NewMaroto(Config{
		MerchantName:  cfg.Email.SenderName,
		MerchantEmail: cfg.Email.SenderEmail,
		LogoPath:      cfg.ReceiptLogoPath,
	})
}
