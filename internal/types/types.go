package types

type PositionSide string

type PositionMode string

type PositionStatus string

type CloseReason string

type AssetClass string

type DepositStatus string

type WithdrawalStatus string

type CopyStatus string

type CopyMode string

type VerificationKind string

type VerificationStatus string

type Bucket string

type PaymentMethodKind string

type LedgerEntryType string

type ApplicationStatus string

const (
	PositionSideBuy  PositionSide = "buy"
	PositionSideSell PositionSide = "sell"
)

const (
	PositionModeSpot     PositionMode = "spot"
	PositionModeLeverage PositionMode = "leverage"
)

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

const (
	CloseReasonExpired CloseReason = "expired"
	CloseReasonManual  CloseReason = "manual"
)

const (
	AssetCrypto    AssetClass = "crypto"
	AssetStock     AssetClass = "stock"
	AssetForex     AssetClass = "forex"
	AssetCommodity AssetClass = "commodity"
)

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusSuccess   DepositStatus = "success"
	DepositStatusRejected  DepositStatus = "rejected"
	DepositStatusCancelled DepositStatus = "cancelled"
	DepositStatusExpired   DepositStatus = "expired"
)

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusSuccess  WithdrawalStatus = "success"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
	WithdrawalStatusExpired  WithdrawalStatus = "expired"
)

const (
	CopyStatusPending  CopyStatus = "pending"
	CopyStatusApproved CopyStatus = "approved"
	CopyStatusRejected CopyStatus = "rejected"
)

const (
	CopyModeFlexible CopyMode = "flexible"
	CopyModeFull     CopyMode = "full"
)

const (
	VerificationKYC     VerificationKind = "kyc"
	VerificationAddress VerificationKind = "address"
)

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

const (
	BucketTrading       Bucket = "trading"
	BucketHolding       Bucket = "holding"
	BucketProfit        Bucket = "profit"
	BucketHoldingProfit Bucket = "holding_profit"
	BucketWithdrawable  Bucket = "withdrawable"
	BucketWithdrawHold  Bucket = "withdrawal_hold"
)

const (
	PaymentMethodCurrency PaymentMethodKind = "currency"
	PaymentMethodGateway  PaymentMethodKind = "gateway"
)

const (
	LedgerEntryDeposit           LedgerEntryType = "deposit"
	LedgerEntryWithdrawalHold    LedgerEntryType = "withdrawal_hold"
	LedgerEntryWithdrawalRelease LedgerEntryType = "withdrawal_release"
	LedgerEntryWithdrawal        LedgerEntryType = "withdrawal"
	LedgerEntryPositionOpen      LedgerEntryType = "position_open"
	LedgerEntryPositionSettle    LedgerEntryType = "position_settle"
	LedgerEntryTransfer          LedgerEntryType = "transfer"
)

func (s DepositStatus) Terminal() bool {
	return s != DepositStatusPending
}

func (s WithdrawalStatus) Terminal() bool {
	return s != WithdrawalStatusPending
}

func (s CopyStatus) Live() bool {
	return s == CopyStatusPending || s == CopyStatusApproved
}

func (a AssetClass) Valid() bool {
	switch a {
	case AssetCrypto, AssetStock, AssetForex, AssetCommodity:
		return true
	}
	return false
}
