package gateway

import "go.uber.org/fx"

var Module = fx.Module("gateway.qpay",
	fx.Provide(New),
	fx.Provide(func(c *Client) API { return c }),
)
