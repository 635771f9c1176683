// Package njalla is the registrar adapter: a thin client over the
// registrar's JSON API covering both the prepaid top-up gateway and the
// domain registration API. It owns all parsing and free-text normalization;
// decision logic stays in the engine.
package njalla

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"veil/internal/fulfillment/models"
	id "veil/pkg/domain"
	dErrors "veil/pkg/domain-errors"
)

const defaultTimeout = 30 * time.Second

// Client talks to the registrar API. Methods are side-effect-free wrappers:
// one HTTP call in, one typed result out.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// New creates a registrar client for the given API endpoint and token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("registrar base URL is required")
	}
	if token == "" {
		return nil, fmt.Errorf("registrar API token is required")
	}
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type apiRequest struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *apiError       `json:"error"`
}

// call performs one API request. Transport problems come back as
// CodeUnavailable so the engine can treat them as transient; API-level
// rejections come back as CodeBadRequest.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(apiRequest{Method: method, Params: params})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode registrar request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build registrar request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Njalla "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "registrar call cancelled")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "registrar unreachable")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "read registrar response")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("registrar returned %d for %s", resp.StatusCode, method))
	}
	if resp.StatusCode != http.StatusOK {
		return dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("registrar returned %d for %s", resp.StatusCode, method))
	}

	var decoded apiResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode registrar response")
	}
	if decoded.Error != nil {
		return dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("registrar rejected %s: %s (code %d)", method, decoded.Error.Message, decoded.Error.Code))
	}
	if result != nil {
		if err := json.Unmarshal(decoded.Result, result); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "decode registrar result")
		}
	}
	return nil
}

// CreateTopUp creates a prepaid-balance top-up to be funded via the given
// asset. The returned address is where the outbound wallet must send funds.
func (c *Client) CreateTopUp(ctx context.Context, amountEUR decimal.Decimal, asset string) (*models.TopUp, error) {
	params := struct {
		Amount decimal.Decimal `json:"amount"`
		Via    string          `json:"via"`
	}{Amount: amountEUR, Via: strings.ToLower(asset)}

	var result struct {
		ID      string `json:"id"`
		Address string `json:"address"`
	}
	if err := c.call(ctx, "add-payment", params, &result); err != nil {
		return nil, err
	}
	if result.ID == "" || result.Address == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "registrar returned an incomplete top-up")
	}
	c.logger.Info("registrar top-up created", "payment_id", result.ID, "amount_eur", amountEUR.String())
	return &models.TopUp{
		ID:      id.PaymentID(result.ID),
		Address: result.Address,
	}, nil
}

// GetTopUp fetches and normalizes the current status of a top-up.
func (c *Client) GetTopUp(ctx context.Context, paymentID id.PaymentID) (*models.TopUpStatus, error) {
	params := struct {
		ID string `json:"id"`
	}{ID: paymentID.String()}

	var result struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, "get-payment", params, &result); err != nil {
		return nil, err
	}
	return &models.TopUpStatus{
		Raw:   result.Status,
		State: NormalizeStatus(result.Status),
	}, nil
}

// Register starts a domain registration task billed against the prepaid
// balance.
func (c *Client) Register(ctx context.Context, domainName string, years int) (id.TaskID, error) {
	if years <= 0 {
		years = 1
	}
	params := struct {
		Domain string `json:"domain"`
		Years  int    `json:"years"`
	}{Domain: domainName, Years: years}

	var result struct {
		Task string `json:"task"`
	}
	if err := c.call(ctx, "register-domain", params, &result); err != nil {
		return "", err
	}
	if result.Task == "" {
		return "", dErrors.New(dErrors.CodeInternal, "registrar returned no task id")
	}
	return id.TaskID(result.Task), nil
}

// CheckTask polls a registration task and maps the registrar's free-text
// task status onto the completed/success pair the engine branches on.
func (c *Client) CheckTask(ctx context.Context, taskID id.TaskID) (*models.TaskResult, error) {
	params := struct {
		ID string `json:"id"`
	}{ID: taskID.String()}

	var result struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, "check-task", params, &result); err != nil {
		return nil, err
	}

	res := &models.TaskResult{Raw: result.Status}
	switch strings.ToLower(strings.TrimSpace(result.Status)) {
	case "done", "complete", "completed", "active", "success":
		res.Completed = true
		res.Success = true
	case "failed", "error", "rejected":
		res.Completed = true
		res.Success = false
	}
	return res, nil
}
