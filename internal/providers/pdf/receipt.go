package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData is what a paid invoice receipt shows.
type ReceiptData struct {
	InvoiceID   string
	PaymentID   string
	Email       string
	Description string
	PromoCode   string
	Status      string
	Amount      string
	Currency    string
	DatePaid    string
}

type MarotoProvider struct {
	cfg Config
}

func NewMaroto(cfg Config) *MarotoProvider {
	return &MarotoProvider{cfg: cfg}
}

func (p *MarotoProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	header := []core.Col{
		text.NewCol(9, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	}
	if p.cfg.LogoPath != "" {
		header = append(header, image.NewFromFileCol(3, p.cfg.LogoPath, props.Rect{
			Center:  false,
			Percent: 80,
			Left:    10,
		}))
	} else {
		header = append(header, col.New(3))
	}
	m.AddRow(30, header...)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice: "+data.InvoiceID, props.Text{Top: 0}),
			text.New("Payment: "+data.PaymentID, props.Text{Top: 4}),
			text.New("Date paid: "+data.DatePaid, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New(p.cfg.MerchantName, props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(p.cfg.MerchantEmail, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(20,
		col.New(12).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(data.Email, props.Text{Top: 5}),
		),
	)

	total := data.Amount
	if data.Currency != "" {
		total = data.Amount + " " + data.Currency
	}
	m.AddRow(15,
		text.NewCol(12, total+" paid on "+data.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Status", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	description := data.Description
	if data.PromoCode != "" {
		description = fmt.Sprintf("%s (Promo: %s)", description, data.PromoCode)
	}
	m.AddRow(15,
		text.NewCol(6, description, props.Text{Size: 9}),
		text.NewCol(2, "1", props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, data.Status, props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, data.Amount, props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, total, props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate receipt: %w", err)
	}
	return doc.GetBytes(), nil
}
