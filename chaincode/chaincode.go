/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// SmartContract implements the AgriMarketplace ledger: the government sets
// minimum support prices and appoints quality verifiers, farmers register and
// list perishable products, buyers purchase them at the exact listed price.
type SmartContract struct {
	contractapi.Contract
}

// InitLedger records the instantiating identity as the Government. It can
// run exactly once; the government identity is never transferable afterwards.
func (s *SmartContract) InitLedger(ctx contractapi.TransactionContextInterface) error {
	existing, err := ctx.GetStub().GetState(governmentKey)
	if err != nil {
		return fmt.Errorf("failed to read government identity: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("marketplace already initialised")
	}

	caller, err := s.callerID(ctx)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(governmentKey, []byte(caller))
}

// Government returns the identity holding authority over the marketplace
func (s *SmartContract) Government(ctx contractapi.TransactionContextInterface) (string, error) {
	b, err := ctx.GetStub().GetState(governmentKey)
	if err != nil {
		return "", fmt.Errorf("failed to read government identity: %v", err)
	}
	if b == nil {
		return "", fmt.Errorf("marketplace not initialised")
	}
	return string(b), nil
}

// ------------------ Minimum support prices ------------------

// MSPUpdate upserts the minimum support price for a product category.
// price is an 18-decimal fixed-point amount passed as a decimal string
// (chaincode args arrive as strings; converted inside). Zero is permitted.
func (s *SmartContract) MSPUpdate(ctx contractapi.TransactionContextInterface, category, price string) error {
	if err := s.requireGovernment(ctx, "update the MSP"); err != nil {
		return err
	}

	amount, err := parseAmount(price)
	if err != nil {
		return err
	}

	entry := MSPEntry{Category: category, MinimumPrice: amount.String()}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal MSP entry: %v", err)
	}
	return ctx.GetStub().PutState(mspPrefix+category, b)
}

// MSPforProduct returns the stored MSP for a category, or "0" when the
// government never set one
func (s *SmartContract) MSPforProduct(ctx contractapi.TransactionContextInterface, category string) (string, error) {
	b, err := ctx.GetStub().GetState(mspPrefix + category)
	if err != nil {
		return "", fmt.Errorf("failed to read MSP for %s: %v", category, err)
	}
	if b == nil {
		return "0", nil
	}

	var entry MSPEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		return "", fmt.Errorf("failed to unmarshal MSP entry: %v", err)
	}
	return entry.MinimumPrice, nil
}

// ------------------ Farmer registry ------------------

// Registration registers the calling identity as a farmer. Calling it again
// for an already-registered identity is a no-op.
func (s *SmartContract) Registration(ctx contractapi.TransactionContextInterface) error {
	caller, err := s.callerID(ctx)
	if err != nil {
		return err
	}

	b, err := ctx.GetStub().GetState(farmerPrefix + caller)
	if err != nil {
		return fmt.Errorf("failed to read farmer %s: %v", caller, err)
	}
	if b != nil {
		return nil
	}

	farmer := Farmer{Wallet: caller, IsRegistered: true}
	b, err = json.Marshal(farmer)
	if err != nil {
		return fmt.Errorf("failed to marshal farmer: %v", err)
	}
	return ctx.GetStub().PutState(farmerPrefix+caller, b)
}

// GetFarmer retrieves a farmer record by wallet identity
func (s *SmartContract) GetFarmer(ctx contractapi.TransactionContextInterface, wallet string) (*Farmer, error) {
	b, err := ctx.GetStub().GetState(farmerPrefix + wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read farmer %s: %v", wallet, err)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, wallet)
	}

	var farmer Farmer
	if err := json.Unmarshal(b, &farmer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal farmer: %v", err)
	}
	return &farmer, nil
}

// ------------------ Product catalog ------------------

// AddYourProduct lists a new product for the calling farmer. id, quantity,
// price and expiry arrive as decimal strings; expiry is an absolute unix
// timestamp in seconds. A product id already present in the catalog is
// rejected, ids are never reused.
func (s *SmartContract) AddYourProduct(ctx contractapi.TransactionContextInterface, name, id, quantity, price, expiry string) error {
	caller, err := s.callerID(ctx)
	if err != nil {
		return err
	}

	b, err := ctx.GetStub().GetState(farmerPrefix + caller)
	if err != nil {
		return fmt.Errorf("failed to read farmer %s: %v", caller, err)
	}
	if b == nil {
		return fmt.Errorf("%w: %s", ErrNotRegistered, caller)
	}
	var farmer Farmer
	if err := json.Unmarshal(b, &farmer); err != nil {
		return fmt.Errorf("failed to unmarshal farmer: %v", err)
	}
	if !farmer.IsRegistered {
		return fmt.Errorf("%w: %s", ErrNotRegistered, caller)
	}

	productID, err := parseProductID(id)
	if err != nil {
		return err
	}
	qty, err := strconv.ParseUint(quantity, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %v", quantity, err)
	}
	amount, err := parseAmount(price)
	if err != nil {
		return err
	}
	expiryTime, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry %q: %v", expiry, err)
	}

	key := productKey(productID)
	existing, err := ctx.GetStub().GetState(key)
	if err != nil {
		return fmt.Errorf("failed to read product %d: %v", productID, err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %d", ErrDuplicateID, productID)
	}

	product := Product{
		Name:       name,
		ID:         productID,
		Quantity:   qty,
		Price:      amount.String(),
		ExpiryTime: expiryTime,
		Sold:       false,
		Owner:      caller,
	}
	b, err = json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %v", err)
	}
	return ctx.GetStub().PutState(key, b)
}

// GetProduct retrieves a product by id
func (s *SmartContract) GetProduct(ctx contractapi.TransactionContextInterface, id string) (*Product, error) {
	return s.readProduct(ctx, id)
}

// ListProducts returns every product in the catalog
func (s *SmartContract) ListProducts(ctx contractapi.TransactionContextInterface) ([]*Product, error) {
	iter, err := ctx.GetStub().GetStateByRange(productPrefix, productPrefix+"~")
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %v", err)
	}
	defer iter.Close()

	var products []*Product
	for iter.HasNext() {
		result, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("failed during catalog iteration: %v", err)
		}
		var product Product
		if err := json.Unmarshal(result.Value, &product); err != nil {
			return nil, fmt.Errorf("failed to unmarshal product: %v", err)
		}
		products = append(products, &product)
	}
	return products, nil
}

// ------------------ Quality oracle ------------------

// SetVerifier appoints a verifier for a product. Reassignment overwrites the
// record and clears any previous attestation.
func (s *SmartContract) SetVerifier(ctx contractapi.TransactionContextInterface, id, verifier string) error {
	if err := s.requireGovernment(ctx, "appoint verifiers"); err != nil {
		return err
	}

	product, err := s.readProduct(ctx, id)
	if err != nil {
		return err
	}

	check := QualityCheck{ProductID: product.ID, Verifier: verifier, HasVerified: false}
	b, err := json.Marshal(check)
	if err != nil {
		return fmt.Errorf("failed to marshal quality check: %v", err)
	}
	return ctx.GetStub().PutState(qualityPrefix+strconv.FormatUint(product.ID, 10), b)
}

// QualityChecking records the assigned verifier's attestation for a product.
// Only the appointed verifier may call it; verifying an already-verified
// product is a no-op, the attestation is never cleared.
func (s *SmartContract) QualityChecking(ctx contractapi.TransactionContextInterface, id string) error {
	productID, err := parseProductID(id)
	if err != nil {
		return err
	}

	key := qualityPrefix + strconv.FormatUint(productID, 10)
	b, err := ctx.GetStub().GetState(key)
	if err != nil {
		return fmt.Errorf("failed to read quality check %d: %v", productID, err)
	}
	if b == nil {
		return fmt.Errorf("%w: product %d", ErrNoVerifierAssigned, productID)
	}

	var check QualityCheck
	if err := json.Unmarshal(b, &check); err != nil {
		return fmt.Errorf("failed to unmarshal quality check: %v", err)
	}

	caller, err := s.callerID(ctx)
	if err != nil {
		return err
	}
	if caller != check.Verifier {
		return fmt.Errorf("%w: product %d", ErrNotAssignedVerifier, productID)
	}
	if check.HasVerified {
		return nil
	}

	check.HasVerified = true
	b, err = json.Marshal(check)
	if err != nil {
		return fmt.Errorf("failed to marshal quality check: %v", err)
	}
	return ctx.GetStub().PutState(key, b)
}

// GetQualityCheck retrieves the verifier assignment and attestation state
// for a product
func (s *SmartContract) GetQualityCheck(ctx contractapi.TransactionContextInterface, id string) (*QualityCheck, error) {
	productID, err := parseProductID(id)
	if err != nil {
		return nil, err
	}

	b, err := ctx.GetStub().GetState(qualityPrefix + strconv.FormatUint(productID, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to read quality check %d: %v", productID, err)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: product %d", ErrNoVerifierAssigned, productID)
	}

	var check QualityCheck
	if err := json.Unmarshal(b, &check); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quality check: %v", err)
	}
	return &check, nil
}

// ------------------ Settlement accounts ------------------

// Deposit credits the caller's settlement account. The ledger has no native
// currency; balances held here back purchases.
func (s *SmartContract) Deposit(ctx contractapi.TransactionContextInterface, amount string) error {
	value, err := parseAmount(amount)
	if err != nil {
		return err
	}
	if value.Sign() == 0 {
		return fmt.Errorf("deposit amount must be positive")
	}

	caller, err := s.callerID(ctx)
	if err != nil {
		return err
	}
	balance, err := s.readBalance(ctx, caller)
	if err != nil {
		return err
	}
	return s.writeBalance(ctx, caller, balance.Add(balance, value))
}

// BalanceOf returns a wallet's settlement balance, "0" for unknown wallets
func (s *SmartContract) BalanceOf(ctx contractapi.TransactionContextInterface, wallet string) (string, error) {
	balance, err := s.readBalance(ctx, wallet)
	if err != nil {
		return "", err
	}
	return balance.String(), nil
}

// ------------------ Purchases ------------------

// PurchaseProduct buys a product outright. The payment must equal the listed
// price exactly, no change is made; the amount moves from the buyer's
// settlement account to the owning farmer's and the product becomes sold.
// Expired products cannot be purchased; verification status does not gate a
// purchase.
func (s *SmartContract) PurchaseProduct(ctx contractapi.TransactionContextInterface, id, payment string) error {
	product, err := s.readProduct(ctx, id)
	if err != nil {
		return err
	}
	if product.Sold {
		return fmt.Errorf("%w: %d", ErrAlreadySold, product.ID)
	}

	now, err := txTime(ctx)
	if err != nil {
		return err
	}
	if now >= product.ExpiryTime {
		return fmt.Errorf("%w: %d", ErrProductExpired, product.ID)
	}

	paid, err := parseAmount(payment)
	if err != nil {
		return err
	}
	price, ok := new(big.Int).SetString(product.Price, 10)
	if !ok {
		return fmt.Errorf("corrupt price on product %d", product.ID)
	}
	switch paid.Cmp(price) {
	case -1:
		return fmt.Errorf("%w: product %d costs %s, got %s", ErrInsufficientPayment, product.ID, price, paid)
	case 1:
		return fmt.Errorf("%w: product %d costs %s, got %s", ErrOverPayment, product.ID, price, paid)
	}

	buyer, err := s.callerID(ctx)
	if err != nil {
		return err
	}
	buyerBalance, err := s.readBalance(ctx, buyer)
	if err != nil {
		return err
	}
	if buyerBalance.Cmp(paid) < 0 {
		return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientFunds, buyerBalance, paid)
	}
	sellerBalance, err := s.readBalance(ctx, product.Owner)
	if err != nil {
		return err
	}

	// Reads all done; writes from here on. Within a transaction the stub
	// reads committed state, not this transaction's own writes, so the
	// self-purchase case must not write the same account key twice.
	if buyer != product.Owner {
		if err := s.writeBalance(ctx, buyer, buyerBalance.Sub(buyerBalance, paid)); err != nil {
			return err
		}
		if err := s.writeBalance(ctx, product.Owner, sellerBalance.Add(sellerBalance, paid)); err != nil {
			return err
		}
	}

	product.Sold = true
	b, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %v", err)
	}
	if err := ctx.GetStub().PutState(productKey(product.ID), b); err != nil {
		return err
	}

	receipt := Receipt{
		ProductID: product.ID,
		Buyer:     buyer,
		Seller:    product.Owner,
		Amount:    paid.String(),
		Timestamp: now,
	}
	b, err = json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %v", err)
	}
	return ctx.GetStub().PutState(receiptPrefix+strconv.FormatUint(product.ID, 10), b)
}

// GetReceipt retrieves the purchase receipt for a sold product
func (s *SmartContract) GetReceipt(ctx contractapi.TransactionContextInterface, id string) (*Receipt, error) {
	productID, err := parseProductID(id)
	if err != nil {
		return nil, err
	}

	b, err := ctx.GetStub().GetState(receiptPrefix + strconv.FormatUint(productID, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt %d: %v", productID, err)
	}
	if b == nil {
		return nil, fmt.Errorf("no receipt for product %d", productID)
	}

	var receipt Receipt
	if err := json.Unmarshal(b, &receipt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %v", err)
	}
	return &receipt, nil
}

// ------------------ Expiry ------------------

// CheckProductExpiry reports whether a product has expired. Expiry is
// recomputed from the stored timestamp against the transaction time, the
// boundary counts as expired. Nothing is stored.
func (s *SmartContract) CheckProductExpiry(ctx contractapi.TransactionContextInterface, id string) (bool, error) {
	product, err := s.readProduct(ctx, id)
	if err != nil {
		return false, err
	}
	now, err := txTime(ctx)
	if err != nil {
		return false, err
	}
	return now >= product.ExpiryTime, nil
}

// ------------------ Helpers ------------------

// callerID returns the invoking client's identity string
func (s *SmartContract) callerID(ctx contractapi.TransactionContextInterface) (string, error) {
	id, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return "", fmt.Errorf("failed to read client identity: %v", err)
	}
	return id, nil
}

// requireGovernment fails unless the caller is the government identity
func (s *SmartContract) requireGovernment(ctx contractapi.TransactionContextInterface, action string) error {
	government, err := s.Government(ctx)
	if err != nil {
		return err
	}
	caller, err := s.callerID(ctx)
	if err != nil {
		return err
	}
	if caller != government {
		return fmt.Errorf("%w: only the government can %s", ErrUnauthorized, action)
	}
	return nil
}

// readProduct loads a product by its string id argument
func (s *SmartContract) readProduct(ctx contractapi.TransactionContextInterface, id string) (*Product, error) {
	productID, err := parseProductID(id)
	if err != nil {
		return nil, err
	}

	b, err := ctx.GetStub().GetState(productKey(productID))
	if err != nil {
		return nil, fmt.Errorf("failed to read product %d: %v", productID, err)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProduct, productID)
	}

	var product Product
	if err := json.Unmarshal(b, &product); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %v", err)
	}
	return &product, nil
}

// readBalance returns a wallet's balance, zero for accounts never touched
func (s *SmartContract) readBalance(ctx contractapi.TransactionContextInterface, wallet string) (*big.Int, error) {
	b, err := ctx.GetStub().GetState(accountPrefix + wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read account %s: %v", wallet, err)
	}
	if b == nil {
		return big.NewInt(0), nil
	}

	var account Account
	if err := json.Unmarshal(b, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %v", err)
	}
	balance, ok := new(big.Int).SetString(account.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt balance on account %s", wallet)
	}
	return balance, nil
}

func (s *SmartContract) writeBalance(ctx contractapi.TransactionContextInterface, wallet string, balance *big.Int) error {
	b, err := json.Marshal(Account{Wallet: wallet, Balance: balance.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal account: %v", err)
	}
	return ctx.GetStub().PutState(accountPrefix+wallet, b)
}

func productKey(id uint64) string {
	return productPrefix + strconv.FormatUint(id, 10)
}

// parseProductID parses a caller-supplied product id argument
func parseProductID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid product id %q: %v", raw, err)
	}
	return id, nil
}

// parseAmount parses an 18-decimal fixed-point amount. Amounts exceed int64
// range, so they go through math/big.
func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return value, nil
}

// txTime returns the transaction timestamp in unix seconds
func txTime(ctx contractapi.TransactionContextInterface) (int64, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return 0, fmt.Errorf("failed to read transaction timestamp: %v", err)
	}
	return ts.GetSeconds(), nil
}

func main() {
	chaincode, err := contractapi.NewChaincode(&SmartContract{})
	if err != nil {
		fmt.Printf("Error creating chaincode: %v\n", err)
		return
	}

	if err := chaincode.Start(); err != nil {
		fmt.Printf("Error starting chaincode: %v\n", err)
	}
}
