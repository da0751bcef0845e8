package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/canopy-network/liquidityx/pkg/utils"
	"go.uber.org/zap"
)

// HTTPClient talks to a Horizon-compatible signing gateway. It rate limits with a
// token bucket and trips a per-endpoint circuit breaker on transport failures.
type HTTPClient struct {
	endpoints []string
	streamURL string
	client    *http.Client
	logger    *zap.Logger

	// token-bucket
	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  atomic.Value // time.Time

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
	reconnectDelay   time.Duration
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints []string
	// StreamURL is the websocket base for StreamEvents; derived from the first endpoint when empty.
	StreamURL       string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	ReconnectDelay  time.Duration
	HTTPClient      *http.Client
	Logger          *zap.Logger
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	endpoints := utils.Dedup(o.Endpoints)
	streamURL := o.StreamURL
	if streamURL == "" && len(endpoints) > 0 {
		streamURL = websocketURL(endpoints[0])
	}

	c := &HTTPClient{
		endpoints:        endpoints,
		streamURL:        streamURL,
		client:           client,
		logger:           o.Logger,
		maxTokens:        int64(o.Burst),
		refillEvery:      time.Second / time.Duration(o.RPS),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
		reconnectDelay:   o.ReconnectDelay,
	}
	c.tokens = c.maxTokens
	c.lastRefill.Store(time.Now())
	return c
}

// refill refills the token-bucket with new tokens if necessary.
func (c *HTTPClient) refill() {
	last := c.lastRefill.Load().(time.Time)
	now := time.Now()
	if now.Sub(last) >= c.refillEvery {
		if atomic.LoadInt64(&c.tokens) < c.maxTokens {
			atomic.AddInt64(&c.tokens, 1)
		}
		c.lastRefill.Store(now)
	}
}

// acquire takes a token, blocking until one is available or ctx is done.
func (c *HTTPClient) acquire(ctx context.Context) error {
	for {
		c.refill()
		if atomic.LoadInt64(&c.tokens) > 0 {
			atomic.AddInt64(&c.tokens, -1)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.refillEvery / 2):
		}
	}
}

// isOpen returns true while the endpoint's breaker is OPEN.
func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure counts a failure and opens the breaker once the threshold is reached.
func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

// statusError is a non-2xx answer from the gateway that is not a server failure.
type statusError struct {
	status int
	body   []byte
}

func (e *statusError) Error() string { return fmt.Sprintf("http %d", e.status) }

// doJSON sends method+path with a JSON payload to the first healthy endpoint and decodes the answer into out.
// Transport failures and 5xx answers fail over to the next endpoint and are reported as ErrTransport.
// Any other non-2xx answer is returned as *statusError without failing over.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	var raw []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}

	var lastErr error
	for _, ep := range c.endpoints {
		// Skip endpoints whose breaker is OPEN.
		if c.isOpen(ep) {
			continue
		}
		if err := c.acquire(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, ep+path, bytes.NewReader(raw))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		drain(resp.Body)

		switch {
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server %d", resp.StatusCode)
			c.noteFailure(ep)
			continue
		case readErr != nil:
			lastErr = readErr
			c.noteFailure(ep)
			continue
		case resp.StatusCode >= 300:
			c.noteSuccess(ep)
			return &statusError{status: resp.StatusCode, body: body}
		}

		c.noteSuccess(ep)
		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("all endpoints unavailable")
	}
	return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, lastErr)
}

// get is doJSON for reads; 404 maps to ErrNotFound.
func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	err := c.doJSON(ctx, http.MethodGet, path, nil, out)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return err
}

// LoadAccount returns the sequence and balance lines of address.
func (c *HTTPClient) LoadAccount(ctx context.Context, address string) (AccountInfo, error) {
	var w wireAccount
	if err := c.get(ctx, fmt.Sprintf(accountPath, url.PathEscape(address)), &w); err != nil {
		return AccountInfo{}, err
	}
	return w.toAccountInfo()
}

// GetTransfer returns the payment operation with the given id, joined with its transaction.
func (c *HTTPClient) GetTransfer(ctx context.Context, id string) (Transfer, error) {
	var w wirePayment
	if err := c.get(ctx, fmt.Sprintf(operationPath, url.PathEscape(id)), &w); err != nil {
		return Transfer{}, err
	}
	return w.toTransfer()
}

// ListOffers returns resting offers of seller.
func (c *HTTPClient) ListOffers(ctx context.Context, seller string) ([]Offer, error) {
	var page wirePage[wireOffer]
	if err := c.get(ctx, fmt.Sprintf(offersPath, url.PathEscape(seller)), &page); err != nil {
		return nil, err
	}
	out := make([]Offer, 0, len(page.Embedded.Records))
	for _, w := range page.Embedded.Records {
		o, err := w.toOffer()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// RecentTransactions returns up to limit transactions of address, newest first.
func (c *HTTPClient) RecentTransactions(ctx context.Context, address string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var page wirePage[wireTransaction]
	if err := c.get(ctx, fmt.Sprintf(transactionsPath, url.PathEscape(address), limit), &page); err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(page.Embedded.Records))
	for _, w := range page.Embedded.Records {
		tx, err := w.toTransaction()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// BuildAndSubmit asks the gateway to assemble, sign and submit a transaction, waiting for
// the ledger's verdict. Rejections are classified into ErrBadSequence, ErrExpired or *RejectedError.
func (c *HTTPClient) BuildAndSubmit(ctx context.Context, opts SubmitOptions, ops []Operation) (SubmitResult, error) {
	if opts.Source == "" {
		return SubmitResult{}, errors.New("submit: missing source account")
	}
	if len(ops) == 0 {
		return SubmitResult{}, errors.New("submit: no operations")
	}

	req := submitRequest{
		Source:         opts.Source,
		Sequence:       fmt.Sprintf("%d", opts.Sequence+1),
		Signers:        opts.Signers,
		Memo:           opts.Memo,
		TimeoutSeconds: int64(opts.Timeout / time.Second),
		Operations:     ops,
	}

	var res SubmitResult
	err := c.doJSON(ctx, http.MethodPost, submitPath, req, &res)
	var se *statusError
	if errors.As(err, &se) {
		return SubmitResult{}, decodeProblem(se)
	}
	if err != nil {
		return SubmitResult{}, err
	}
	res.Sequence = opts.Sequence + 1
	return res, nil
}

// decodeProblem turns a gateway problem document into a classified error.
func decodeProblem(se *statusError) error {
	var p wireProblem
	if err := json.Unmarshal(se.body, &p); err != nil || p.Extras.ResultCodes.Transaction == "" {
		if se.status == http.StatusTooManyRequests {
			return fmt.Errorf("%w: http %d", ErrTransport, se.status)
		}
		return &RejectedError{TransactionCode: fmt.Sprintf("http_%d", se.status)}
	}
	return classifyResult(p.Extras.ResultCodes.Transaction, p.Extras.ResultCodes.Operations)
}

// drain empties and closes body so the transport can reuse the connection.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
