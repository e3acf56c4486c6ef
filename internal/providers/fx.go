package providers

import (
	"github.com/smallbiznis/qpayrelay/internal/providers/email"
	"github.com/smallbiznis/qpayrelay/internal/providers/pdf"
	"github.com/smallbiznis/qpayrelay/internal/providers/recaptcha"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	recaptcha.Module,
)
