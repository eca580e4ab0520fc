package ledger

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokersim/market"
)

func fundedAccount(t *testing.T, cash int64) *Account {
	t.Helper()
	acct := NewAccount("test")
	if cash > 0 {
		_, err := acct.Deposit(decimal.NewFromInt(cash))
		require.NoError(t, err)
	}
	return acct
}

func TestDepositThenWithdrawRestoresBalance(t *testing.T) {
	acct := fundedAccount(t, 1000)

	_, err := acct.Deposit(decimal.NewFromInt(250))
	require.NoError(t, err)
	_, err = acct.Withdraw(decimal.NewFromInt(250))
	require.NoError(t, err)

	assert.Equal(t, "1000", acct.Cash().String())
	txns := acct.Transactions()
	require.Len(t, txns, 3)
	assert.Equal(t, TxDeposit, txns[1].Type)
	assert.Equal(t, TxWithdrawal, txns[2].Type)
	assert.Equal(t, "250", txns[1].Amount.String())
	assert.Equal(t, "-250", txns[2].Amount.String())
}

func TestCashMovementValidation(t *testing.T) {
	acct := fundedAccount(t, 100)

	_, err := acct.Deposit(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = acct.Withdraw(decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = acct.Withdraw(decimal.NewFromInt(101))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "100", acct.Cash().String(), "failed withdraw must not move cash")
	assert.Len(t, acct.Transactions(), 1)
}

func TestBuyDebitsCashAndBuildsCostBasis(t *testing.T) {
	acct := fundedAccount(t, 1000)

	_, err := acct.ApplyTrade(TradeBuy, "ACME", 50, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, "500", acct.Cash().String())

	h, ok := acct.Holding("ACME")
	require.True(t, ok)
	assert.EqualValues(t, 50, h.Quantity)
	assert.Equal(t, "10", h.AvgPrice.String())

	// Second buy at a different price reweights the basis.
	_, err = acct.ApplyTrade(TradeBuy, "ACME", 25, decimal.NewFromInt(16))
	require.NoError(t, err)
	h, _ = acct.Holding("ACME")
	assert.EqualValues(t, 75, h.Quantity)
	assert.Equal(t, "12", h.AvgPrice.String()) // (50*10 + 25*16) / 75
}

func TestBuyRequiresCash(t *testing.T) {
	acct := fundedAccount(t, 100)

	_, err := acct.ApplyTrade(TradeBuy, "ACME", 11, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "100", acct.Cash().String())
	_, ok := acct.Holding("ACME")
	assert.False(t, ok)
}

func TestSellCreditsCashAndRemovesEmptyHolding(t *testing.T) {
	acct := fundedAccount(t, 1000)
	_, err := acct.ApplyTrade(TradeBuy, "ACME", 50, decimal.NewFromInt(10))
	require.NoError(t, err)

	_, err = acct.ApplyTrade(TradeSell, "ACME", 20, decimal.NewFromInt(12))
	require.NoError(t, err)
	assert.Equal(t, "740", acct.Cash().String())
	h, ok := acct.Holding("ACME")
	require.True(t, ok)
	assert.EqualValues(t, 30, h.Quantity)
	assert.Equal(t, "10", h.AvgPrice.String(), "selling must not move the cost basis")

	_, err = acct.ApplyTrade(TradeSell, "ACME", 30, decimal.NewFromInt(12))
	require.NoError(t, err)
	_, ok = acct.Holding("ACME")
	assert.False(t, ok, "holding should be removed at zero quantity")
}

func TestSellRequiresHoldings(t *testing.T) {
	acct := fundedAccount(t, 1000)

	_, err := acct.ApplyTrade(TradeSell, "ACME", 1, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInsufficientHoldings)

	_, err = acct.ApplyTrade(TradeBuy, "ACME", 5, decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = acct.ApplyTrade(TradeSell, "ACME", 6, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInsufficientHoldings)

	h, _ := acct.Holding("ACME")
	assert.EqualValues(t, 5, h.Quantity, "failed sell must not change the holding")
}

func TestTradeValidation(t *testing.T) {
	acct := fundedAccount(t, 1000)

	_, err := acct.ApplyTrade(TradeBuy, "ACME", 0, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = acct.ApplyTrade(TradeBuy, "ACME", 10, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestEverySuccessfulMutationAppendsOneTransaction(t *testing.T) {
	acct := fundedAccount(t, 1000)

	_, err := acct.ApplyTrade(TradeBuy, "ACME", 10, decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = acct.ApplyTrade(TradeSell, "ACME", 10, decimal.NewFromInt(11))
	require.NoError(t, err)

	txns := acct.Transactions()
	require.Len(t, txns, 3)
	assert.Equal(t, TxBuy, txns[1].Type)
	assert.Equal(t, "-100", txns[1].Amount.String())
	assert.Equal(t, TxSell, txns[2].Type)
	assert.Equal(t, "110", txns[2].Amount.String())
	for _, tx := range txns {
		assert.NotEmpty(t, tx.ID)
		assert.Equal(t, "test", tx.AccountID)
	}
}

func TestConcurrentMutationsNeverGoNegative(t *testing.T) {
	acct := fundedAccount(t, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = acct.Withdraw(decimal.NewFromInt(30))
		}()
		go func() {
			defer wg.Done()
			_, _ = acct.Deposit(decimal.NewFromInt(10))
		}()
	}
	wg.Wait()

	assert.True(t, acct.Cash().Sign() >= 0, "cash went negative: %s", acct.Cash())

	// The log must reconcile exactly to the final balance.
	total := decimal.Zero
	for _, tx := range acct.Transactions() {
		total = total.Add(tx.Amount)
	}
	assert.True(t, total.Equal(acct.Cash()), "log sums to %s, cash is %s", total, acct.Cash())
}

type stubQuotes map[string]int64

func (s stubQuotes) GetQuote(symbol string) (market.Quote, error) {
	last, ok := s[symbol]
	if !ok {
		return market.Quote{}, market.ErrInstrumentNotFound
	}
	return market.Quote{Symbol: symbol, Last: decimal.NewFromInt(last)}, nil
}

func TestPortfolioValuation(t *testing.T) {
	acct := fundedAccount(t, 1000)
	_, err := acct.ApplyTrade(TradeBuy, "ACME", 50, decimal.NewFromInt(10))
	require.NoError(t, err)

	p := acct.Portfolio(stubQuotes{"ACME": 12})
	assert.Equal(t, "500", p.Cash.String())
	require.Len(t, p.Holdings, 1)
	assert.Equal(t, "12", p.Holdings[0].LastPrice.String())
	assert.Equal(t, "600", p.Holdings[0].MarketValue.String())
	assert.Equal(t, "100", p.Holdings[0].UnrealizedPnL.String())
	assert.Equal(t, "1100", p.TotalValue.String())
	assert.Equal(t, "100", p.PnL.String())

	assert.Equal(t, "1100", acct.PortfolioValue(stubQuotes{"ACME": 12}).String())
}

func TestPortfolioCarriesUnquotedHoldingsAtCost(t *testing.T) {
	acct := fundedAccount(t, 1000)
	_, err := acct.ApplyTrade(TradeBuy, "ACME", 10, decimal.NewFromInt(10))
	require.NoError(t, err)

	p := acct.Portfolio(stubQuotes{})
	require.Len(t, p.Holdings, 1)
	assert.Equal(t, "100", p.Holdings[0].MarketValue.String())
	assert.Equal(t, "0", p.Holdings[0].UnrealizedPnL.String())
	assert.Equal(t, "1000", p.TotalValue.String())
}

func TestLedgerAccounts(t *testing.T) {
	ldg := New()

	_, err := ldg.CreateAccount("")
	assert.ErrorIs(t, err, ErrInvalidAccount)

	acct, err := ldg.CreateAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.ID())

	_, err = ldg.CreateAccount("alice")
	assert.ErrorIs(t, err, ErrAccountExists)

	got, err := ldg.Account("alice")
	require.NoError(t, err)
	assert.Same(t, acct, got)

	_, err = ldg.Account("bob")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = ldg.CreateAccount("bob")
	require.NoError(t, err)
	accounts := ldg.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].ID())
	assert.Equal(t, "bob", accounts[1].ID())
}
