package entity

import "time"

// InvestorClass は三大法人の投資家区分です。
type InvestorClass string

const (
	InvestorForeign         InvestorClass = "FOREIGN"
	InvestorInvestmentTrust InvestorClass = "INVESTMENT_TRUST"
	InvestorDealerSelf      InvestorClass = "DEALER_SELF"
	InvestorDealerHedge     InvestorClass = "DEALER_HEDGE"
)

// InstitutionalFlow is one day of buy/sell share counts for one investor class.
type InstitutionalFlow struct {
	Symbol string        `json:"symbol"`
	Date   time.Time     `json:"date"`
	Buy    int64         `json:"buy"`
	Sell   int64         `json:"sell"`
	Class  InvestorClass `json:"class"`
}

// Net は買い越し株数（買い − 売り）です。
func (f InstitutionalFlow) Net() int64 {
	return f.Buy - f.Sell
}
