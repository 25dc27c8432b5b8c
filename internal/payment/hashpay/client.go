// Package hashpay talks to the HashPay M-Pesa STK push API.
package hashpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ms-tickets/internal/config"
	"ms-tickets/internal/models"
)

var ErrGateway = errors.New("payment gateway error")

type Client struct {
	baseURL     string
	apiKey      string
	accountID   string
	callbackURL string
	http        *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		accountID:   cfg.AccountID,
		callbackURL: cfg.CallbackURL,
		http:        &http.Client{Timeout: timeout},
	}
}

type initiateRequest struct {
	APIKey      string `json:"api_key"`
	AccountID   string `json:"account_id"`
	Amount      string `json:"amount"`
	MSISDN      string `json:"msisdn"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url"`
}

type initiateResponse struct {
	Success             *bool             `json:"success,omitempty"`
	ResponseCode        models.ResultCode `json:"ResponseCode"`
	ResponseDescription string            `json:"ResponseDescription"`
	Message             string            `json:"message"`
	CheckoutRequestID   string            `json:"CheckoutRequestID"`
	CheckoutID          string            `json:"checkout_id"`
}

type statusRequest struct {
	APIKey     string `json:"api_key"`
	AccountID  string `json:"account_id"`
	CheckoutID string `json:"checkoutid"`
}

type statusResponse struct {
	ResultCode    models.ResultCode `json:"ResultCode"`
	ResultDesc    string            `json:"ResultDesc"`
	TransactionID string            `json:"TransactionID"`
}

// Initiate sends an STK push prompt to the customer's phone. A rejection by
// the gateway is reported through Accepted=false, not as an error.
func (c *Client) Initiate(ctx context.Context, req models.STKPushRequest) (*models.STKPushResult, error) {
	body := initiateRequest{
		APIKey:      c.apiKey,
		AccountID:   c.accountID,
		Amount:      strconv.FormatInt(req.Amount, 10),
		MSISDN:      req.MSISDN,
		Reference:   url.QueryEscape(req.Reference),
		CallbackURL: c.callbackURL,
	}

	var resp initiateResponse
	if err := c.post(ctx, "/initiatestk", body, &resp); err != nil {
		return nil, err
	}

	checkoutID := resp.CheckoutRequestID
	if checkoutID == "" {
		checkoutID = resp.CheckoutID
	}
	message := resp.ResponseDescription
	if message == "" {
		message = resp.Message
	}

	accepted := resp.ResponseCode == "0"
	if resp.ResponseCode == "" && resp.Success != nil {
		accepted = *resp.Success
	}

	return &models.STKPushResult{
		Accepted:     accepted && checkoutID != "",
		CheckoutID:   checkoutID,
		ResponseCode: resp.ResponseCode,
		Message:      message,
	}, nil
}

// CheckStatus asks the gateway for the result of a checkout.
func (c *Client) CheckStatus(ctx context.Context, checkoutID string) (*models.TransactionStatus, error) {
	body := statusRequest{
		APIKey:     c.apiKey,
		AccountID:  c.accountID,
		CheckoutID: checkoutID,
	}

	var resp statusResponse
	if err := c.post(ctx, "/transactionstatus", body, &resp); err != nil {
		return nil, err
	}

	return &models.TransactionStatus{
		ResultCode:    resp.ResultCode,
		ResultDesc:    resp.ResultDesc,
		TransactionID: resp.TransactionID,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrGateway, path, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s returned %d", ErrGateway, path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s (status %d): %v", ErrGateway, path, resp.StatusCode, err)
	}
	return nil
}
