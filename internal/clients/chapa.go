package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

const (
	ProviderChapa = "chapa"

	// chapaMaxReference is Chapa's tx_ref length ceiling.
	chapaMaxReference = 50
)

var _ PaymentProvider = (*ChapaClient)(nil)

// ChapaClient talks to the Chapa hosted checkout API. The tx_ref we send is the
// order reference, so it doubles as the provider reference on verification.
type ChapaClient struct {
	baseURL     string
	secretKey   string
	callbackURL string
	returnURL   string
	http        httpCaller
	logger      *logging.LoggerV2
}

func NewChapaClient(cfg config.ChapaConfig, logger *logging.LoggerV2) *ChapaClient {
	return &ChapaClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		returnURL:   cfg.ReturnURL,
		http:        newHTTPCaller(ProviderChapa, cfg.Timeout, logger),
		logger:      logger,
	}
}

func (c *ChapaClient) Name() string { return ProviderChapa }

func (c *ChapaClient) MaxReferenceLength() int { return chapaMaxReference }

type chapaInitializeRequest struct {
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Email         string            `json:"email"`
	FirstName     string            `json:"first_name,omitempty"`
	TxRef         string            `json:"tx_ref"`
	CallbackURL   string            `json:"callback_url,omitempty"`
	ReturnURL     string            `json:"return_url,omitempty"`
	Customization map[string]string `json:"customization,omitempty"`
}

type chapaInitializeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
}

type chapaVerifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		Status    string          `json:"status"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
		Email     string          `json:"email"`
		TxRef     string          `json:"tx_ref"`
		Reference string          `json:"reference"`
	} `json:"data"`
}

// Initialize opens a hosted checkout session for the reference.
func (c *ChapaClient) Initialize(ctx context.Context, req *models.InitializeRequest) (*models.InitializeResult, error) {
	if len(req.Reference) > chapaMaxReference {
		return nil, fmt.Errorf("chapa reference %q exceeds %d characters", req.Reference, chapaMaxReference)
	}

	c.logger.Debug("Initializing Chapa checkout", logging.Fields{
		"reference": req.Reference,
		"amount":    req.Amount.String(),
		"currency":  req.Currency,
	})

	returnURL := c.returnURL
	if returnURL != "" {
		returnURL = withQuery(returnURL, "reference", req.Reference)
	}

	payload := chapaInitializeRequest{
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Email:       req.BuyerEmail,
		FirstName:   req.BuyerName,
		TxRef:       req.Reference,
		CallbackURL: c.callbackURL,
		ReturnURL:   returnURL,
	}
	if req.Description != "" {
		payload.Customization = map[string]string{"description": req.Description}
	}

	var resp chapaInitializeResponse
	err := c.http.do(ctx, 1, func() (*http.Request, error) {
		r, err := jsonRequest(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", payload)
		if err != nil {
			return nil, err
		}
		c.setHeaders(r)
		return r, nil
	}, &resp)
	if err != nil {
		c.logger.Error("Chapa initialize failed", logging.Fields{
			"reference": req.Reference,
			"error":     err.Error(),
		})
		return nil, err
	}
	if resp.Status != "success" || resp.Data.CheckoutURL == "" {
		return nil, fmt.Errorf("chapa initialize rejected: %s", resp.Message)
	}

	c.logger.Info("Chapa checkout initialized", logging.Fields{"reference": req.Reference})
	return &models.InitializeResult{
		CheckoutURL:       resp.Data.CheckoutURL,
		ProviderReference: req.Reference,
	}, nil
}

// Verify reports success only when Chapa marks the transaction itself as success.
func (c *ChapaClient) Verify(ctx context.Context, providerReference string) (*models.VerificationResult, error) {
	var resp chapaVerifyResponse
	err := c.http.do(ctx, 3, func() (*http.Request, error) {
		r, err := jsonRequest(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+url.PathEscape(providerReference), nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(r)
		return r, nil
	}, &resp)
	if err != nil {
		c.logger.Error("Chapa verify failed", logging.Fields{
			"reference": providerReference,
			"error":     err.Error(),
		})
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("chapa verify returned no data: %s", resp.Message)
	}

	result := &models.VerificationResult{
		Status:              chapaStatus(resp.Status, resp.Data.Status),
		Amount:              resp.Data.Amount,
		Currency:            strings.ToUpper(resp.Data.Currency),
		BuyerContact:        resp.Data.Email,
		NormalizedReference: resp.Data.TxRef,
		ProviderReference:   resp.Data.Reference,
		ProviderStatus:      resp.Data.Status,
	}
	if result.NormalizedReference == "" {
		result.NormalizedReference = providerReference
	}

	c.logger.Info("Chapa payment verified", logging.Fields{
		"reference": providerReference,
		"status":    result.Status,
	})
	return result, nil
}

func chapaStatus(envelope, payment string) models.VerificationStatus {
	if !strings.EqualFold(envelope, "success") {
		return models.VerificationFailed
	}
	switch strings.ToLower(payment) {
	case "success":
		return models.VerificationSuccess
	case "pending":
		return models.VerificationPending
	default:
		return models.VerificationFailed
	}
}

func (c *ChapaClient) setHeaders(req *http.Request) {
	if c.secretKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
	}
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
