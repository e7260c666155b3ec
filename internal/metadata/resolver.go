package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/codec"
	"github.com/theirongolddev/budgetscope/internal/ledger"
	"github.com/theirongolddev/budgetscope/internal/model"
	"github.com/theirongolddev/budgetscope/internal/store"
)

const (
	defaultGateway = "https://ipfs.io/ipfs/"
	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
)

var (
	// ErrUnavailable indicates the approved amount could not be resolved.
	ErrUnavailable = errors.New("metadata: approved amount unavailable")
	// ErrRateLimited indicates the document host throttled the request.
	ErrRateLimited = errors.New("metadata: rate limited")
)

// Resolver looks up the externally published approved amount of an expense.
type Resolver interface {
	ApprovedAmount(ctx context.Context, rec model.ExpenseRecord) (uint64, error)
}

// DocumentCache stores resolved amounts by document URI.
type DocumentCache interface {
	GetDocument(uri string, maxAge time.Duration) (store.Document, bool, error)
	PutDocument(doc store.Document) error
}

// HTTPResolver reads the mint's token-metadata account, fetches the
// attribute document it points at and extracts the approved amount.
type HTTPResolver struct {
	reader  ledger.BalanceReader
	http    *http.Client
	gateway string
	timeout time.Duration
	cache   DocumentCache
	ttl     time.Duration
	log     *zap.Logger
}

// Option configures an HTTPResolver.
type Option func(*HTTPResolver)

// WithGateway sets the HTTP gateway used for ipfs:// URIs.
func WithGateway(g string) Option {
	return func(r *HTTPResolver) {
		if g != "" {
			if !strings.HasSuffix(g, "/") {
				g += "/"
			}
			r.gateway = g
		}
	}
}

// WithTimeout bounds each document fetch.
func WithTimeout(d time.Duration) Option {
	return func(r *HTTPResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCache caches resolved amounts for ttl. A zero ttl never expires.
func WithCache(c DocumentCache, ttl time.Duration) Option {
	return func(r *HTTPResolver) {
		r.cache = c
		r.ttl = ttl
	}
}

// WithLogger sets the logger for cache failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *HTTPResolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewHTTPResolver creates a resolver reading metadata accounts through reader.
func NewHTTPResolver(reader ledger.BalanceReader, opts ...Option) *HTTPResolver {
	r := &HTTPResolver{
		reader:  reader,
		http:    &http.Client{},
		gateway: defaultGateway,
		timeout: defaultTimeout,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ApprovedAmount implements Resolver. Every failure wraps ErrUnavailable.
func (r *HTTPResolver) ApprovedAmount(ctx context.Context, rec model.ExpenseRecord) (uint64, error) {
	uri, err := r.DocumentURI(ctx, rec.Mint)
	if err != nil {
		return 0, err
	}

	if r.cache != nil {
		doc, ok, err := r.cache.GetDocument(uri, r.ttl)
		if err != nil {
			r.log.Warn("document cache read failed", zap.String("uri", uri), zap.Error(err))
		} else if ok {
			return doc.ApprovedAmount, nil
		}
	}

	body, err := r.fetch(ctx, uri)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	amount, err := ParseDocument(body)
	if err != nil {
		return 0, err
	}

	if r.cache != nil {
		if err := r.cache.PutDocument(store.Document{URI: uri, ApprovedAmount: amount, FetchedAt: time.Now()}); err != nil {
			r.log.Warn("document cache write failed", zap.String("uri", uri), zap.Error(err))
		}
	}
	return amount, nil
}

// DocumentURI returns the HTTP location of mint's attribute document.
func (r *HTTPResolver) DocumentURI(ctx context.Context, mint address.Address) (string, error) {
	mdAddr, err := address.MetadataAddress(mint)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	raw, err := r.reader.GetRawAccount(ctx, mdAddr)
	if err != nil {
		return "", fmt.Errorf("%w: metadata account %s: %w", ErrUnavailable, mdAddr.Short(), err)
	}
	md, err := codec.DecodeTokenMetadata(raw)
	if err != nil {
		return "", fmt.Errorf("%w: metadata account %s: %w", ErrUnavailable, mdAddr.Short(), err)
	}
	if md.URI == "" {
		return "", fmt.Errorf("%w: metadata account %s has no uri", ErrUnavailable, mdAddr.Short())
	}
	return ResolveURI(md.URI, r.gateway), nil
}

// ResolveURI rewrites ipfs:// and ar:// URIs to fetchable HTTP URLs.
func ResolveURI(uri, gateway string) string {
	uri = strings.TrimSpace(uri)
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		rest := strings.TrimPrefix(uri, "ipfs://")
		rest = strings.TrimPrefix(rest, "ipfs/")
		return gateway + rest
	case strings.HasPrefix(uri, "ar://"):
		return "https://arweave.net/" + strings.TrimPrefix(uri, "ar://")
	}
	return uri
}

// fetch performs a GET request and returns the response body.
func (r *HTTPResolver) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("metadata: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "github.com/theirongolddev/budgetscope/1.0")

	//nolint:gosec // URL comes from the on-ledger metadata account
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("metadata: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("metadata: reading response: %w", err)
	}
	return body, nil
}

// Static resolves amounts from a fixed table keyed by mint.
type Static map[address.Address]uint64

// ApprovedAmount implements Resolver.
func (s Static) ApprovedAmount(_ context.Context, rec model.ExpenseRecord) (uint64, error) {
	v, ok := s[rec.Mint]
	if !ok {
		return 0, fmt.Errorf("%w: mint %s", ErrUnavailable, rec.Mint.Short())
	}
	return v, nil
}
