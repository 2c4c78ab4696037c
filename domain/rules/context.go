package rules

import (
	"time"

	"settlement/domain/entities"

	"github.com/shopspring/decimal"
)

// Context is everything a rule may inspect while being matched and evaluated
type Context struct {
	Wallet       *entities.InvestorWallet
	Distribution *entities.Distribution
	Gross        decimal.Decimal
	Now          time.Time
}

func (c *Context) input() Input {
	units := decimal.NewFromInt(1)
	if c.Wallet != nil {
		units = c.Wallet.Units()
	}
	return Input{Gross: c.Gross, Units: units}
}
