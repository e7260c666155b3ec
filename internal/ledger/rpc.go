package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/theirongolddev/budgetscope/internal/address"
)

const (
	defaultTimeout = 10 * time.Second

	// JSON-RPC error code for an address that is not a token account.
	codeInvalidParams = -32602
)

// Client reads accounts over a JSON-RPC endpoint. It is safe for concurrent use.
type Client struct {
	endpoint   string
	commitment rpc.CommitmentType
	timeout    time.Duration
	rpc        *rpc.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCommitment sets the commitment level sent with every request.
func WithCommitment(c string) ClientOption {
	return func(cl *Client) {
		if c != "" {
			cl.commitment = rpc.CommitmentType(c)
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// NewClient creates a client for the RPC endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		commitment: rpc.CommitmentConfirmed,
		timeout:    defaultTimeout,
		rpc:        rpc.New(endpoint),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Endpoint returns the RPC URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// GetRawAccount implements BalanceReader.
func (c *Client) GetRawAccount(ctx context.Context, a address.Address) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpc.GetAccountInfoWithOpts(ctx, solana.PublicKey(a), &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, a)
		}
		return nil, c.wrap(ctx, "getAccountInfo", err)
	}
	if out.Value.Data == nil {
		return nil, fmt.Errorf("ledger: account %s: missing data", a)
	}
	return out.Value.Data.GetBinary(), nil
}

// GetTokenBalance implements BalanceReader.
func (c *Client) GetTokenBalance(ctx context.Context, a address.Address) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpc.GetTokenAccountBalance(ctx, solana.PublicKey(a), c.commitment)
	if err != nil {
		var re *jsonrpc.RPCError
		if errors.As(err, &re) && re.Code == codeInvalidParams {
			return 0, fmt.Errorf("%w: token account %s", ErrNotFound, a)
		}
		return 0, c.wrap(ctx, "getTokenAccountBalance", err)
	}
	if out.Value == nil {
		return 0, fmt.Errorf("ledger: token account %s: missing amount", a)
	}
	amt, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger: token account %s: parsing amount %q: %w", a, out.Value.Amount, err)
	}
	return amt, nil
}

// wrap maps transport failures onto the package's sentinels. A deadline or
// cancellation is reported from ctx so callers can match it with errors.Is.
func (c *Client) wrap(ctx context.Context, method string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("ledger: %s: %w", method, ctxErr)
	}
	var he *jsonrpc.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusTooManyRequests {
			return ErrRateLimited
		}
		return fmt.Errorf("ledger: %s: unexpected status %d", method, he.Code)
	}
	return fmt.Errorf("ledger: %s failed: %w", method, err)
}
