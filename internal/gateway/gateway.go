package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/shopspring/decimal"
)

var ErrGateway = errors.New("payment gateway error")

// длина банковской ссылки, которую шлюз показывает в выписке
const bankReferenceLen = 20

// Config параметры платёжного шлюза
type Config struct {
	BaseURL      string
	SiteCode     string
	CountryCode  string
	CurrencyCode string
	APIKey       string
	PrivateKey   string
	IsTest       bool
	Timeout      time.Duration

	// AppBaseURL + пути обратных вызовов дают абсолютные Cancel/Error/Success/Notify URL
	AppBaseURL  string
	CancelPath  string
	ErrorPath   string
	SuccessPath string
	NotifyPath  string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(log *slog.Logger, cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// BuildPaymentRequest собирает и подписывает тело запроса на оплату заказа
func (c *Client) BuildPaymentRequest(orderID string, total int64) *models.PaymentRequest {
	req := &models.PaymentRequest{
		SiteCode:             c.cfg.SiteCode,
		CountryCode:          c.cfg.CountryCode,
		CurrencyCode:         c.cfg.CurrencyCode,
		Amount:               FormatAmount(total),
		TransactionReference: orderID,
		BankReference:        BankReference(orderID),
		CancelURL:            c.callbackURL(c.cfg.CancelPath),
		ErrorURL:             c.callbackURL(c.cfg.ErrorPath),
		SuccessURL:           c.callbackURL(c.cfg.SuccessPath),
		NotifyURL:            c.callbackURL(c.cfg.NotifyPath),
		IsTest:               c.cfg.IsTest,
	}
	req.HashCheck = HashCheck(c.cfg.PrivateKey,
		req.SiteCode,
		req.CountryCode,
		req.CurrencyCode,
		req.Amount,
		req.TransactionReference,
		req.BankReference,
		req.CancelURL,
		req.ErrorURL,
		req.SuccessURL,
		req.NotifyURL,
		strconv.FormatBool(req.IsTest),
	)
	return req
}

func (c *Client) callbackURL(path string) string {
	return strings.TrimRight(c.cfg.AppBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

type paymentResponse struct {
	URL              string `json:"url"`
	PaymentRequestID string `json:"paymentRequestId"`
	ErrorMessage     string `json:"errorMessage"`
}

// PostPaymentRequest отправляет запрос в шлюз и возвращает URL для редиректа покупателя.
// Повторов нет: решение о повторе принимает вызывающий.
func (c *Client) PostPaymentRequest(ctx context.Context, req *models.PaymentRequest) (string, error) {
	const op = "gateway.Client.PostPaymentRequest"
	logger := c.log.With(slog.String("op", op), slog.String("orderID", req.TransactionReference))

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%s: failed to marshal request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/postpaymentrequest", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("ApiKey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Error("gateway request failed", slog.Any("error", err))
		return "", fmt.Errorf("%s: %w: %v", op, ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Error("gateway returned error status",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(snippet)),
		)
		return "", fmt.Errorf("%s: %w: status %d", op, ErrGateway, resp.StatusCode)
	}

	var out paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: %w: failed to decode response: %v", op, ErrGateway, err)
	}
	if out.ErrorMessage != "" || out.URL == "" {
		logger.Error("gateway rejected payment request", slog.String("errorMessage", out.ErrorMessage))
		return "", fmt.Errorf("%s: %w: %s", op, ErrGateway, out.ErrorMessage)
	}

	logger.Info("payment request created", slog.String("paymentRequestID", out.PaymentRequestID))
	return out.URL, nil
}

// VerifyNotification сверяет Hash уведомления с подписью по общему ключу
func (c *Client) VerifyNotification(n *models.PaymentNotification) bool {
	expected := HashCheck(c.cfg.PrivateKey,
		n.SiteCode,
		n.TransactionID,
		n.TransactionReference,
		n.Amount,
		string(n.Status),
		n.Optional1,
		n.Optional2,
		n.Optional3,
		n.Optional4,
		n.Optional5,
		n.CurrencyCode,
		n.IsTest,
		n.StatusMessage,
	)
	got := strings.ToLower(n.Hash)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// HashCheck: значения по порядку без разделителей, ключ последним,
// всё в нижнем регистре, SHA-512 в hex
func HashCheck(privateKey string, values ...string) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(v)
	}
	b.WriteString(privateKey)

	sum := sha512.Sum512([]byte(strings.ToLower(b.String())))
	return hex.EncodeToString(sum[:])
}

// FormatAmount переводит центы в строку с двумя знаками: 2000 -> "20.00"
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// BankReference — первые bankReferenceLen символов id заказа без дефисов
func BankReference(orderID string) string {
	ref := strings.ToUpper(strings.ReplaceAll(orderID, "-", ""))
	if len(ref) > bankReferenceLen {
		ref = ref[:bankReferenceLen]
	}
	return ref
}
