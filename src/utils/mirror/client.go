package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/donation-platform/ledger-worker/src/utils/build_info"
	"github.com/donation-platform/ledger-worker/src/utils/config"
	"github.com/donation-platform/ledger-worker/src/utils/ledger"
	"github.com/donation-platform/ledger-worker/src/utils/logger"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const minRateLimit = 0.5

// Read-only client of the mirror node REST API
type Client struct {
	client *resty.Client
	config *config.Config
	log    *logrus.Entry

	// Requests per second to the mirror node, lowered upon 429
	mtx     sync.Mutex
	limiter *rate.Limiter
}

func NewClient(config *config.Config, baseUrl string) (self *Client) {
	self = new(Client)
	self.config = config
	self.log = logger.NewSublogger("mirror-client")

	limit := rate.Inf
	if config.Mirror.RateLimit > 0 {
		limit = rate.Limit(config.Mirror.RateLimit)
	}
	self.limiter = rate.NewLimiter(limit, 1)

	self.client =
		resty.New().
			SetBaseURL(strings.TrimSuffix(baseUrl, "/")).
			SetTimeout(config.Mirror.RequestTimeout).
			SetHeader("User-Agent", "ledger-worker/"+build_info.Version).
			SetHeader("Accept", "application/json").
			SetRetryCount(1).
			SetLogger(NewLogger()).
			AddRetryCondition(self.onRetryCondition).
			OnBeforeRequest(self.onRateLimit).
			OnAfterResponse(self.onStatusToError)

	return
}

func (self *Client) onStatusToError(c *resty.Client, resp *resty.Response) error {
	// Non-success status code turns into an error
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", errNotFound, resp.Request.URL)
	}
	if resp.StatusCode() > 399 && resp.StatusCode() < 500 {
		self.log.WithField("status", resp.StatusCode()).
			WithField("resp", string(resp.Body())).
			WithField("url", resp.Request.URL).
			Debug("Bad request")
	}
	return fmt.Errorf("unexpected status: %s", resp.Status())
}

// Returns true if request should be retried
func (self *Client) onRetryCondition(resp *resty.Response, err error) bool {
	if resp == nil {
		return false
	}

	if resp.RawResponse == nil {
		// Transport error, retry unless the caller gave up
		return err != nil && resp.Request.Context().Err() == nil
	}

	// OK response or redirect, skip retrying
	if resp.IsSuccess() || !resp.IsError() {
		return false
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		// Remote host receives too much requests, adjust rate limit
		self.decrementLimit()
		return false
	}

	// Server side errors may be retried
	return resp.StatusCode() >= 500
}

func (self *Client) decrementLimit() {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	limit := self.limiter.Limit()
	if limit == rate.Inf {
		limit = rate.Limit(self.config.Mirror.RateLimit)
		if limit <= 0 {
			limit = 10
		}
	}
	limit = limit * 0.9
	if limit < minRateLimit {
		limit = minRateLimit
	}

	self.log.WithField("limit", float64(limit)).Debug("Decreasing limit")
	self.limiter.SetLimit(limit)
}

func (self *Client) onRateLimit(c *resty.Client, req *resty.Request) (err error) {
	// Blocks till the request is possible
	// Or ctx gets canceled
	err = self.limiter.Wait(req.Context())
	if err != nil {
		self.log.WithError(err).Debug("Rate limiting failed")
	}
	return
}

// Logs emitted by the contract with timestamps in (from, to], ascending.
// Nil from means the window is unbounded below.
// On any failure no entries are returned.
func (self *Client) FetchLogs(ctx context.Context, contractId string, from *ledger.Timestamp, to ledger.Timestamp) (out []LogEntry, err error) {
	defer func() {
		if err != nil {
			out = nil
		}
	}()

	timestamps := []string{"lte:" + to.String()}
	if from != nil {
		timestamps = append(timestamps, "gt:"+from.String())
	}
	params := url.Values{
		"timestamp": timestamps,
		"order":     []string{"asc"},
	}
	if self.config.Mirror.PageLimit > 0 {
		params.Set("limit", strconv.Itoa(self.config.Mirror.PageLimit))
	}

	path := fmt.Sprintf("/api/v1/contracts/%s/results/logs", url.PathEscape(contractId))

	var last *ledger.Timestamp
	for page := 0; ; page++ {
		if self.config.Mirror.MaxPages > 0 && page >= self.config.Mirror.MaxPages {
			err = fmt.Errorf("%w: window (%s, %s] exceeds %d pages", ErrTooManyPages, formatOptional(from), to, self.config.Mirror.MaxPages)
			return
		}

		var body logsResponse
		req := self.client.R().
			SetContext(ctx).
			SetResult(&body).
			ForceContentType("application/json")
		if page == 0 {
			// Next links already carry the query
			req.SetQueryParamsFromValues(params)
		}

		_, err = req.Get(path)
		if err != nil {
			err = fmt.Errorf("%w: %s", ErrRetryable, err.Error())
			return
		}

		for _, raw := range body.Logs {
			var entry LogEntry
			entry, err = raw.toEntry()
			if err != nil {
				err = fmt.Errorf("%w: %s", ErrRetryable, err.Error())
				return
			}

			if last != nil && entry.Timestamp.Before(*last) {
				self.log.WithField("prev", last.String()).
					WithField("ts", entry.Timestamp.String()).
					WithField("contract_id", contractId).
					Error("Logs are not ordered by timestamp")
				err = ErrUnordered
				return
			}
			last = &entry.Timestamp

			out = append(out, entry)
		}

		if body.Links.Next == nil || *body.Links.Next == "" || len(body.Logs) == 0 {
			break
		}
		path = *body.Links.Next
	}

	self.log.WithField("contract_id", contractId).
		WithField("from", formatOptional(from)).
		WithField("to", to.String()).
		WithField("count", len(out)).
		Trace("Fetched logs")

	return
}

func formatOptional(ts *ledger.Timestamp) string {
	if ts == nil {
		return "-inf"
	}
	return ts.String()
}

func (self *logResponse) toEntry() (out LogEntry, err error) {
	ts, err := ledger.ParseTimestamp(self.Timestamp)
	if err != nil {
		return
	}
	out = LogEntry{
		Address:         self.Address,
		ContractId:      self.ContractId,
		Topics:          self.Topics,
		Data:            self.Data,
		TransactionHash: self.TransactionHash,
		Timestamp:       ts,
		Index:           self.Index,
		BlockNumber:     self.BlockNumber,
	}
	return
}

func (self *Client) getAccount(ctx context.Context, idOrAddress string) (out *accountResponse, err error) {
	out = new(accountResponse)
	_, err = self.client.R().
		SetContext(ctx).
		SetResult(out).
		ForceContentType("application/json").
		SetPathParam("id", idOrAddress).
		Get("/api/v1/accounts/{id}")
	if err != nil {
		if errors.Is(err, errNotFound) {
			err = fmt.Errorf("%w: %s", ErrAccountNotFound, idOrAddress)
			return
		}
		err = fmt.Errorf("%w: %s", ErrRetryable, err.Error())
		return
	}
	return
}

// Ledger account id (shard.realm.num) to its EVM address
func (self *Client) AccountToEvmAddress(ctx context.Context, accountId string) (evmAddress string, err error) {
	account, err := self.getAccount(ctx, accountId)
	if err != nil {
		return
	}
	if account.EvmAddress == nil || *account.EvmAddress == "" {
		err = fmt.Errorf("%w: %s has no evm address", ErrAccountNotFound, accountId)
		return
	}
	evmAddress = strings.ToLower(*account.EvmAddress)
	return
}

// EVM address to the ledger account id (shard.realm.num)
func (self *Client) EvmAddressToAccount(ctx context.Context, evmAddress string) (accountId string, err error) {
	account, err := self.getAccount(ctx, strings.ToLower(evmAddress))
	if err != nil {
		return
	}
	if account.Account == "" {
		err = fmt.Errorf("%w: %s has no account", ErrAccountNotFound, evmAddress)
		return
	}
	accountId = account.Account
	return
}
