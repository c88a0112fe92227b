package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

const ProviderPayPal = "paypal"

// PayPal order and capture states.
const (
	paypalOrderCreated   = "CREATED"
	paypalOrderSaved     = "SAVED"
	paypalOrderApproved  = "APPROVED"
	paypalOrderCompleted = "COMPLETED"
	paypalPayerAction    = "PAYER_ACTION_REQUIRED"

	paypalCaptureCompleted = "COMPLETED"
	paypalCapturePending   = "PENDING"
)

var _ PaymentProvider = (*PayPalClient)(nil)

// PayPalClient drives the PayPal Orders v2 API. A PayPal order is two-phase: the
// buyer approves it, then the merchant captures it. Verify performs the capture when
// it finds an approved order, and reports success only for a completed capture.
type PayPalClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	returnURL    string
	cancelURL    string
	http         httpCaller
	logger       *logging.LoggerV2

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalClient(cfg config.PayPalConfig, logger *logging.LoggerV2) *PayPalClient {
	return &PayPalClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		returnURL:    cfg.ReturnURL,
		cancelURL:    cfg.CancelURL,
		http:         newHTTPCaller(ProviderPayPal, cfg.Timeout, logger),
		logger:       logger,
	}
}

func (c *PayPalClient) Name() string { return ProviderPayPal }

func (c *PayPalClient) MaxReferenceLength() int { return 127 }

type paypalAmount struct {
	CurrencyCode string          `json:"currency_code"`
	Value        decimal.Decimal `json:"value"`
}

type paypalCapture struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Amount paypalAmount `json:"amount"`
}

type paypalPurchaseUnit struct {
	ReferenceID string        `json:"reference_id,omitempty"`
	CustomID    string        `json:"custom_id,omitempty"`
	Description string        `json:"description,omitempty"`
	Amount      *paypalAmount `json:"amount,omitempty"`
	Payments    *struct {
		Captures []paypalCapture `json:"captures"`
	} `json:"payments,omitempty"`
}

type paypalOrder struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
	Payer         *struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer,omitempty"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

type paypalCreateOrderRequest struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext map[string]string    `json:"application_context,omitempty"`
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached OAuth token, refreshing it a minute before expiry.
func (c *PayPalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	var resp paypalTokenResponse
	err := c.http.do(ctx, 3, func() (*http.Request, error) {
		form := url.Values{"grant_type": {"client_credentials"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.clientID, c.clientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("paypal auth: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("paypal auth: empty access token")
	}

	c.accessToken = resp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

func (c *PayPalClient) call(ctx context.Context, method, path string, payload, out interface{}, requestID string) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	attempts := 1
	if method == http.MethodGet || requestID != "" {
		attempts = 3
	}
	return c.http.do(ctx, attempts, func() (*http.Request, error) {
		req, err := jsonRequest(ctx, method, c.baseURL+path, payload)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, token, requestID)
		return req, nil
	}, out)
}

// Initialize creates a PayPal order carrying our reference and returns the approval link.
func (c *PayPalClient) Initialize(ctx context.Context, req *models.InitializeRequest) (*models.InitializeResult, error) {
	c.logger.Debug("Creating PayPal order", logging.Fields{
		"reference": req.Reference,
		"amount":    req.Amount.String(),
	})

	ctxArgs := map[string]string{"user_action": "PAY_NOW"}
	if c.returnURL != "" {
		ctxArgs["return_url"] = withQuery(c.returnURL, "reference", req.Reference)
	}
	if c.cancelURL != "" {
		ctxArgs["cancel_url"] = withQuery(c.cancelURL, "reference", req.Reference)
	}

	payload := paypalCreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: req.Reference,
			CustomID:    req.Reference,
			Description: req.Description,
			Amount: &paypalAmount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.Round(2),
			},
		}},
		ApplicationContext: ctxArgs,
	}

	var order paypalOrder
	if err := c.call(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order, "create-"+req.Reference); err != nil {
		c.logger.Error("PayPal create order failed", logging.Fields{
			"reference": req.Reference,
			"error":     err.Error(),
		})
		return nil, err
	}

	approve := ""
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			approve = link.Href
			break
		}
	}
	if order.ID == "" || approve == "" {
		return nil, errors.New("paypal create order: missing id or approval link")
	}

	c.logger.Info("PayPal order created", logging.Fields{
		"reference":       req.Reference,
		"paypal_order_id": order.ID,
	})
	return &models.InitializeResult{CheckoutURL: approve, ProviderReference: order.ID}, nil
}

// Verify fetches the PayPal order and captures it if it is approved but not yet captured.
func (c *PayPalClient) Verify(ctx context.Context, providerReference string) (*models.VerificationResult, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(providerReference)

	var order paypalOrder
	if err := c.call(ctx, http.MethodGet, path, nil, &order, ""); err != nil {
		return nil, err
	}

	if order.Status == paypalOrderApproved {
		c.logger.Info("Capturing approved PayPal order", logging.Fields{"paypal_order_id": providerReference})

		var captured paypalOrder
		err := c.call(ctx, http.MethodPost, path+"/capture", struct{}{}, &captured, "capture-"+providerReference)
		var statusErr *StatusError
		switch {
		case err == nil:
			order = captured
		case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(statusErr.Body, "ORDER_ALREADY_CAPTURED"):
			if err := c.call(ctx, http.MethodGet, path, nil, &order, ""); err != nil {
				return nil, err
			}
		default:
			c.logger.Error("PayPal capture failed", logging.Fields{
				"paypal_order_id": providerReference,
				"error":           err.Error(),
			})
			return nil, err
		}
	}

	return paypalResult(providerReference, &order), nil
}

func paypalResult(providerReference string, order *paypalOrder) *models.VerificationResult {
	result := &models.VerificationResult{
		ProviderReference: providerReference,
		ProviderStatus:    order.Status,
	}
	if order.Payer != nil {
		result.BuyerContact = order.Payer.EmailAddress
	}

	var capture *paypalCapture
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		result.NormalizedReference = unit.ReferenceID
		if unit.Amount != nil {
			result.Amount = unit.Amount.Value
			result.Currency = unit.Amount.CurrencyCode
		}
		if unit.Payments != nil && len(unit.Payments.Captures) > 0 {
			capture = &unit.Payments.Captures[0]
			result.Amount = capture.Amount.Value
			result.Currency = capture.Amount.CurrencyCode
			result.ProviderStatus = order.Status + "/" + capture.Status
		}
	}

	switch order.Status {
	case paypalOrderCompleted:
		switch {
		case capture != nil && capture.Status == paypalCaptureCompleted:
			result.Status = models.VerificationSuccess
		case capture != nil && capture.Status == paypalCapturePending:
			result.Status = models.VerificationPending
		default:
			result.Status = models.VerificationFailed
		}
	case paypalOrderCreated, paypalOrderSaved, paypalOrderApproved, paypalPayerAction:
		result.Status = models.VerificationPending
	default:
		result.Status = models.VerificationFailed
	}
	return result
}

func (c *PayPalClient) setHeaders(req *http.Request, token, requestID string) {
	req.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	} else if req.Method != http.MethodGet {
		req.Header.Set("PayPal-Request-Id", uuid.NewString())
	}
}
