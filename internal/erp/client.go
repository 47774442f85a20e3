// Package erp wraps the SAP Business One Service Layer HTTP API.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrItemNotFound indicates an unknown item code in the ERP item master.
var ErrItemNotFound = errors.New("erp: item not found")

// ErrPostRejected indicates the ERP refused a document posting.
var ErrPostRejected = errors.New("erp: document rejected")

// MetricsPort records posting outcomes. Optional collaborator.
type MetricsPort interface {
	ObserveERPPost(status string)
}

// Credentials identify the Service Layer company database login.
type Credentials struct {
	CompanyDB string `json:"CompanyDB"`
	UserName  string `json:"UserName"`
	Password  string `json:"Password"`
}

// Client wraps interactions with the Service Layer. Sessions are cached
// in Redis so concurrent requests share one login; an expired session is
// refreshed once and the request retried.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	sessions   *SessionCache
	metrics    MetricsPort
}

// NewClient constructs a new client. metrics may be nil.
func NewClient(baseURL string, creds Credentials, sessions *SessionCache, metrics MetricsPort) *Client {
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		sessions: sessions,
		metrics:  metrics,
	}
}

// Ping checks whether the Service Layer answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("erp: service layer returned status %d", resp.StatusCode)
	}
	return nil
}

// ValidateItem resolves an item code to its tracking discipline.
func (c *Client) ValidateItem(ctx context.Context, itemCode string) (ItemInfo, error) {
	var row struct {
		ItemCode            string  `json:"ItemCode"`
		ItemName            string  `json:"ItemName"`
		ManageBatchNumbers  string  `json:"ManageBatchNumbers"`
		ManageSerialNumbers string  `json:"ManageSerialNumbers"`
		QuantityOnStock     float64 `json:"QuantityOnStock"`
	}
	path := fmt.Sprintf("/Items('%s')", itemCode)
	if err := c.do(ctx, http.MethodGet, path, nil, &row); err != nil {
		return ItemInfo{}, err
	}
	info := ItemInfo{ItemCode: row.ItemCode, ItemName: row.ItemName, InStock: row.QuantityOnStock, Management: Unmanaged}
	if row.ManageSerialNumbers == "tYES" {
		info.Management = SerialManaged
	} else if row.ManageBatchNumbers == "tYES" {
		info.Management = BatchManaged
	}
	return info, nil
}

// PostGoodsReceipt posts a consolidated GRPO and returns the created
// document's identifiers.
func (c *Client) PostGoodsReceipt(ctx context.Context, doc GoodsReceipt) (PostResult, error) {
	var result PostResult
	if err := c.do(ctx, http.MethodPost, "/PurchaseDeliveryNotes", doc, &result); err != nil {
		c.observePost(err)
		return PostResult{}, err
	}
	c.observePost(nil)
	return result, nil
}

// PostDelivery posts a sales delivery.
func (c *Client) PostDelivery(ctx context.Context, doc Delivery) (PostResult, error) {
	var result PostResult
	if err := c.do(ctx, http.MethodPost, "/DeliveryNotes", doc, &result); err != nil {
		c.observePost(err)
		return PostResult{}, err
	}
	c.observePost(nil)
	return result, nil
}

func (c *Client) observePost(err error) {
	if c.metrics == nil {
		return
	}
	switch {
	case err == nil:
		c.metrics.ObserveERPPost("posted")
	case errors.Is(err, ErrPostRejected):
		c.metrics.ObserveERPPost("rejected")
	default:
		c.metrics.ObserveERPPost("error")
	}
}

// do performs one Service Layer call with session handling. A 401 answer
// invalidates the cached session, logs in again, and retries once.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	session, err := c.session(ctx, false)
	if err != nil {
		return err
	}
	status, err := c.roundTrip(ctx, method, path, body, out, session)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		session, err = c.session(ctx, true)
		if err != nil {
			return err
		}
		status, err = c.roundTrip(ctx, method, path, body, out, session)
		if err != nil {
			return err
		}
	}
	switch {
	case status == http.StatusNotFound:
		return ErrItemNotFound
	case status == http.StatusBadRequest:
		return ErrPostRejected
	case status >= 400:
		return fmt.Errorf("erp: service layer returned status %d", status)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any, session string) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "B1SESSION", Value: session})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("erp: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// session returns the cached Service Layer session id, logging in when
// the cache misses or refresh is forced.
func (c *Client) session(ctx context.Context, force bool) (string, error) {
	if !force && c.sessions != nil {
		if session, ok := c.sessions.Get(ctx); ok {
			return session, nil
		}
	}
	payload, err := json.Marshal(c.creds)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("erp: login failed with status %d", resp.StatusCode)
	}
	var login struct {
		SessionID      string `json:"SessionId"`
		SessionTimeout int    `json:"SessionTimeout"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return "", fmt.Errorf("erp: decode login: %w", err)
	}
	if c.sessions != nil {
		ttl := time.Duration(login.SessionTimeout) * time.Minute
		_ = c.sessions.Set(ctx, login.SessionID, ttl)
	}
	return login.SessionID, nil
}
