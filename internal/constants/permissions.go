package constants

const (
	ViewData          = "view_data"
	RegisterAsset     = "register_asset"
	MintTokens        = "mint_tokens"
	TransferTokens    = "transfer_tokens"
	RevokeTokens      = "revoke_tokens"
	RecordRevenue     = "record_revenue"
	DistributePayouts = "distribute_payouts"
	CreditWallet      = "credit_wallet"
	DebitWallet       = "debit_wallet"
	TransferFunds     = "transfer_funds"
)
