package main

// Farmer represents a producer registered on the marketplace
type Farmer struct {
	Wallet       string `json:"wallet"`
	IsRegistered bool   `json:"isRegistered"`
}

// Product represents a perishable listing owned by a farmer.
// Price is an 18-decimal fixed-point amount kept as a decimal string;
// ExpiryTime is unix seconds.
type Product struct {
	Name       string `json:"name"`
	ID         uint64 `json:"id"`
	Quantity   uint64 `json:"quantity"`
	Price      string `json:"price"`
	ExpiryTime int64  `json:"expiryTime"`
	Sold       bool   `json:"sold"`
	Owner      string `json:"owner"`
}

// QualityCheck records the verifier appointed for a product and whether
// that verifier has attested its quality
type QualityCheck struct {
	ProductID   uint64 `json:"productId"`
	Verifier    string `json:"verifier"`
	HasVerified bool   `json:"hasVerified"`
}

// MSPEntry is the minimum support price set by the government for a
// product category
type MSPEntry struct {
	Category     string `json:"category"`
	MinimumPrice string `json:"minimumPrice"`
}

// Account holds a participant's settlement balance
type Account struct {
	Wallet  string `json:"wallet"`
	Balance string `json:"balance"`
}

// Receipt records a completed purchase
type Receipt struct {
	ProductID uint64 `json:"productId"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// World-state key layout
const (
	governmentKey = "GOVERNMENT"
	mspPrefix     = "MSP_"
	farmerPrefix  = "FARMER_"
	productPrefix = "PRODUCT_"
	qualityPrefix = "QUALITY_"
	accountPrefix = "ACCOUNT_"
	receiptPrefix = "RECEIPT_"
)
