package model

import "github.com/shopspring/decimal"

type Currency struct {
	ID             string          `json:"-"`
	Ref            string          `json:"ref"`
	Abbr           string          `json:"abbr"`
	Name           string          `json:"name"`
	Address        string          `json:"address"`
	Network        string          `json:"network"`
	MinimumDeposit decimal.Decimal `json:"minimum_deposit"`
	TransactionFee decimal.Decimal `json:"transaction_fee"`
	Instructions   string          `json:"instructions"`
	Enabled        bool            `json:"enabled"`
}

type Gateway struct {
	ID             string          `json:"-"`
	Ref            string          `json:"ref"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	TransactionFee decimal.Decimal `json:"transaction_fee"`
	Enabled        bool            `json:"enabled"`
}
