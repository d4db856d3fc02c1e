// Package payment moves SOL between agent wallets. Transfers are never
// retried automatically: a timed-out send may still have landed on chain, so
// retrying risks double spending. Callers decide what a failed settlement
// means for their run.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/a2aflow/internal/metrics"
	"github.com/BaSui01/a2aflow/internal/remoteerr"
	"github.com/BaSui01/a2aflow/transport"
)

// memoFeeLamports is the flat fee budget attached to every send for the memo
// instruction, matching what the platform expects in the "lampposts" field.
const memoFeeLamports = 5000

// Settlement sentinels.
var (
	// ErrTransferFailed is the general settlement failure.
	ErrTransferFailed = errors.New("payment: transfer failed")
	// ErrInsufficientFunds is a best-effort classification of the remote
	// message; it always wraps ErrTransferFailed.
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrTransferFailed)
)

// Receipt is the outcome of a confirmed transfer.
type Receipt struct {
	TransactionHash string  `json:"transactionHash"`
	FromWallet      string  `json:"-"`
	ToWallet        string  `json:"-"`
	Lamports        int64   `json:"-"`
	AmountSOL       float64 `json:"-"`
}

// Settler executes SOL transfers through the platform's Solana bridge.
type Settler struct {
	client    *transport.Client
	logger    *zap.Logger
	collector *metrics.Collector
	timeout   time.Duration
}

// NewSettler creates a Settler. timeout bounds each send call; collector may
// be nil.
func NewSettler(client *transport.Client, timeout time.Duration, logger *zap.Logger, collector *metrics.Collector) *Settler {
	return &Settler{
		client:    client,
		logger:    logger.With(zap.String("component", "payment")),
		collector: collector,
		timeout:   timeout,
	}
}

type sendRequest struct {
	FromAccount account `json:"fromAccount"`
	ToAccount   account `json:"toAccount"`
	Amount      int64   `json:"amount"`
	MemoText    string  `json:"memoText"`
	Lampposts   int64   `json:"lampposts"`
}

type account struct {
	PublicKey string `json:"publicKey"`
}

// Transfer sends amountSOL from one wallet to another with a memo. The
// call is issued exactly once; on any failure the caller must treat the
// on-chain outcome as unknown.
func (s *Settler) Transfer(ctx context.Context, fromWallet, toWallet string, amountSOL float64, memo string) (*Receipt, error) {
	if fromWallet == "" || toWallet == "" {
		return nil, fmt.Errorf("%w: missing wallet address", ErrTransferFailed)
	}
	if amountSOL <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount %v", ErrTransferFailed, amountSOL)
	}

	lamports := ToLamports(amountSOL)
	req := sendRequest{
		FromAccount: account{PublicKey: fromWallet},
		ToAccount:   account{PublicKey: toWallet},
		Amount:      lamports,
		MemoText:    memo,
		Lampposts:   memoFeeLamports,
	}

	s.logger.Info("sending transfer",
		zap.String("from", fromWallet),
		zap.String("to", toWallet),
		zap.Int64("lamports", lamports),
		zap.String("memo", memo),
	)

	env, err := s.client.Call(ctx, http.MethodPost, "/api/solana/send", req,
		transport.WithOperation("solana.send"),
		transport.WithTimeout(s.timeout),
	)
	if err != nil {
		s.recordPayment("failed", 0)
		return nil, s.classify(err.Error(), err)
	}
	if env.IsError {
		s.recordPayment("rejected", 0)
		return nil, s.classify(env.Message, nil)
	}

	var res Receipt
	if err := env.Decode(&res); err != nil {
		s.recordPayment("failed", 0)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if res.TransactionHash == "" {
		s.recordPayment("unconfirmed", 0)
		return nil, fmt.Errorf("%w: no transaction hash returned", ErrTransferFailed)
	}

	res.FromWallet = fromWallet
	res.ToWallet = toWallet
	res.Lamports = lamports
	res.AmountSOL = amountSOL

	s.recordPayment("confirmed", lamports)
	s.logger.Info("transfer confirmed",
		zap.String("tx", res.TransactionHash),
		zap.Int64("lamports", lamports),
	)
	return &res, nil
}

func (s *Settler) classify(message string, cause error) error {
	if remoteerr.Classify(message) == remoteerr.KindInsufficientFunds {
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, message)
	}
	if cause != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, cause)
	}
	return fmt.Errorf("%w: %s", ErrTransferFailed, message)
}

func (s *Settler) recordPayment(outcome string, lamports int64) {
	if s.collector != nil {
		s.collector.RecordPayment(outcome, lamports)
	}
}
