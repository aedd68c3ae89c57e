package exchange

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copycat/internal/domain"
	"github.com/betbot/copycat/internal/exchange/signing"
	"github.com/betbot/copycat/pkg/logger"
	"github.com/betbot/copycat/pkg/ratelimit"
)

const (
	DefaultDataAPIHost = "https://data-api.polymarket.com"
	DefaultClobHost    = "https://clob.polymarket.com"
)

// PolymarketClient Polymarket 数据与下单客户端
//
// 行情历史走 Data API，下单和订单查询走 CLOB。所有请求过
// 端点级限流器，避免多环路并发时触发官方限流。
type PolymarketClient struct {
	data       *resty.Client
	clob       *resty.Client
	limiter    *ratelimit.RateLimitManager
	privateKey *ecdsa.PrivateKey
	creds      *signing.ApiKeyCreds
	builder    *OrderBuilder
	chainID    signing.Chain
}

// NewPolymarketClient 创建客户端并派生 API 凭证
func NewPolymarketClient(privateKeyHex, funderAddress string) (*PolymarketClient, error) {
	privateKey, err := signing.PrivateKeyFromHex(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}

	c := &PolymarketClient{
		data:       newRestyClient(DefaultDataAPIHost),
		clob:       newRestyClient(DefaultClobHost),
		limiter:    ratelimit.NewRateLimitManager(),
		privateKey: privateKey,
		chainID:    signing.ChainPolygon,
	}
	c.builder = NewOrderBuilder(privateKey, c.chainID, signing.SignatureTypeGnosisSafe, funderAddress)

	if err := c.deriveAPICreds(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func newRestyClient(host string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimSuffix(host, "/")).
		SetTimeout(60 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流时优先使用 Retry-After 头
			if resp.StatusCode() == 429 {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})
}

type apiKeyRaw struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// deriveAPICreds 用 L1 签名派生 L2 API 凭证
func (c *PolymarketClient) deriveAPICreds(ctx context.Context) error {
	headers, err := signing.CreateL1Headers(c.privateKey, c.chainID, nil, nil)
	if err != nil {
		return err
	}

	var raw apiKeyRaw
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeader("POLY_ADDRESS", headers.PolyAddress).
		SetHeader("POLY_SIGNATURE", headers.PolySignature).
		SetHeader("POLY_TIMESTAMP", headers.PolyTimestamp).
		SetHeader("POLY_NONCE", headers.PolyNonce).
		SetResult(&raw).
		Get("/auth/derive-api-key")
	if err != nil {
		return &NetworkError{Op: "derive api key", Err: err}
	}
	if !resp.IsSuccess() || raw.ApiKey == "" {
		// 还没有凭证时先创建
		resp, err = c.clob.R().
			SetContext(ctx).
			SetHeader("POLY_ADDRESS", headers.PolyAddress).
			SetHeader("POLY_SIGNATURE", headers.PolySignature).
			SetHeader("POLY_TIMESTAMP", headers.PolyTimestamp).
			SetHeader("POLY_NONCE", headers.PolyNonce).
			SetResult(&raw).
			Post("/auth/api-key")
		if err != nil {
			return &NetworkError{Op: "create api key", Err: err}
		}
		if !resp.IsSuccess() {
			return errors.Errorf("创建 API 凭证失败: %s", resp.Status())
		}
	}

	c.creds = &signing.ApiKeyCreds{Key: raw.ApiKey, Secret: raw.Secret, Passphrase: raw.Passphrase}
	return nil
}

// dataTradeDTO Data API /trades 返回的单条记录
type dataTradeDTO struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	TransactionHash string  `json:"transactionHash"`
	Title           string  `json:"title"`
}

// FetchTradeHistory 拉取钱包最近成交（时间倒序）
func (c *PolymarketClient) FetchTradeHistory(ctx context.Context, wallet string, limit int) ([]domain.SourceTrade, error) {
	if err := c.limiter.Wait(ctx, "data:trades:get"); err != nil {
		return nil, err
	}

	var dtos []dataTradeDTO
	resp, err := c.data.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"user":          wallet,
			"limit":         fmt.Sprintf("%d", limit),
			"offset":        "0",
			"sortDirection": "DESC",
		}).
		SetResult(&dtos).
		Get("/trades")
	if err != nil {
		return nil, &NetworkError{Op: "fetch trades", Err: err}
	}
	if !resp.IsSuccess() {
		return nil, c.classifyHTTPError("fetch trades", resp)
	}

	out := make([]domain.SourceTrade, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, domain.SourceTrade{
			Wallet:    strings.ToLower(d.ProxyWallet),
			Market:    d.ConditionID,
			Asset:     d.Asset,
			Side:      domain.Side(strings.ToUpper(d.Side)),
			Size:      decimal.NewFromFloat(d.Size),
			Price:     decimal.NewFromFloat(d.Price),
			Timestamp: d.Timestamp,
			TxHash:    d.TransactionHash,
			Title:     d.Title,
		})
	}
	return out, nil
}

type midpointDTO struct {
	Mid string `json:"mid"`
}

// CurrentPrice 返回条件代币的当前中间价
func (c *PolymarketClient) CurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx, "clob:price:get"); err != nil {
		return decimal.Zero, err
	}

	var dto midpointDTO
	resp, err := c.clob.R().
		SetContext(ctx).
		SetQueryParam("token_id", asset).
		SetResult(&dto).
		Get("/midpoint")
	if err != nil {
		return decimal.Zero, &NetworkError{Op: "midpoint", Err: err}
	}
	if !resp.IsSuccess() {
		return decimal.Zero, c.classifyHTTPError("midpoint", resp)
	}

	price, err := decimal.NewFromString(dto.Mid)
	if err != nil {
		return decimal.Zero, &NetworkError{Op: "midpoint", Err: fmt.Errorf("解析价格失败 %q: %w", dto.Mid, err)}
	}
	return price, nil
}

type postOrderRequest struct {
	Order     *SignedOrder `json:"order"`
	Owner     string       `json:"owner"`
	OrderType string       `json:"orderType"`
}

type postOrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// PlaceLimitOrder 提交 GTC 限价单（价格为源交易的成交价）
func (c *PolymarketClient) PlaceLimitOrder(ctx context.Context, req domain.CopyOrderRequest) (*OrderHandle, error) {
	price, _ := req.SourcePrice.Float64()
	return c.placeOrder(ctx, req, price, "GTC")
}

// PlaceMarketOrder 提交 FOK 市价单，价格取当前中间价
func (c *PolymarketClient) PlaceMarketOrder(ctx context.Context, req domain.CopyOrderRequest) (*OrderHandle, error) {
	mid, err := c.CurrentPrice(ctx, req.Asset)
	if err != nil {
		return nil, err
	}
	price, _ := mid.Float64()
	return c.placeOrder(ctx, req, price, "FOK")
}

func (c *PolymarketClient) placeOrder(ctx context.Context, req domain.CopyOrderRequest, price float64, orderType string) (*OrderHandle, error) {
	if err := c.limiter.Wait(ctx, "clob:order:post"); err != nil {
		return nil, err
	}

	signed, err := c.builder.BuildOrder(req, price, TickSize001)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	payload := postOrderRequest{Order: signed, Owner: c.creds.Key, OrderType: orderType}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	bodyStr := string(body)

	headers, err := signing.CreateL2Headers(c.privateKey, c.creds, &signing.L2HeaderArgs{
		Method:      http.MethodPost,
		RequestPath: "/order",
		Body:        &bodyStr,
	}, nil)
	if err != nil {
		return nil, err
	}

	reqID := uuid.NewString()
	logger.WithFields(logrus.Fields{
		"reqId":     reqID,
		"tradeKey":  req.TradeKey,
		"asset":     req.Asset,
		"side":      req.Side,
		"size":      req.TargetSize.String(),
		"price":     price,
		"orderType": orderType,
	}).Debugf("提交订单")

	var result postOrderResponse
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(l2HeaderMap(headers)).
		SetBody(bodyStr).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return nil, &NetworkError{Op: "post order", Err: err}
	}
	if !resp.IsSuccess() {
		return nil, c.classifyHTTPError("post order", resp)
	}
	if !result.Success {
		return nil, classifyOrderError(result.ErrorMsg)
	}

	state := OrderStatePending
	if strings.EqualFold(result.Status, "matched") {
		state = OrderStateFilled
	}
	return &OrderHandle{OrderID: result.OrderID, State: state}, nil
}

type orderStatusDTO struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	SizeMatched string `json:"size_matched"`
	OrigSize    string `json:"original_size"`
}

// GetOrderStatus 查询订单状态
func (c *PolymarketClient) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	if err := c.limiter.Wait(ctx, "clob:order:get"); err != nil {
		return nil, err
	}

	path := "/data/order/" + orderID
	headers, err := signing.CreateL2Headers(c.privateKey, c.creds, &signing.L2HeaderArgs{
		Method:      http.MethodGet,
		RequestPath: path,
	}, nil)
	if err != nil {
		return nil, err
	}

	var dto orderStatusDTO
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeaders(l2HeaderMap(headers)).
		SetResult(&dto).
		Get(path)
	if err != nil {
		return nil, &NetworkError{Op: "order status", Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if !resp.IsSuccess() {
		return nil, c.classifyHTTPError("order status", resp)
	}

	matched, _ := decimal.NewFromString(dto.SizeMatched)
	orig, _ := decimal.NewFromString(dto.OrigSize)

	status := &OrderStatus{OrderID: dto.ID, SizeMatched: matched}
	switch strings.ToUpper(dto.Status) {
	case "MATCHED":
		status.State = OrderStateFilled
	case "CANCELED", "CANCELLED", "EXPIRED":
		status.State = OrderStateCancelled
	default:
		status.State = OrderStatePending
		// LIVE 但已全部成交的订单按已成交处理
		if !orig.IsZero() && matched.GreaterThanOrEqual(orig) {
			status.State = OrderStateFilled
		}
	}
	return status, nil
}

type cancelOrderRequest struct {
	OrderID string `json:"orderID"`
}

// CancelOrder 取消订单
func (c *PolymarketClient) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.limiter.Wait(ctx, "clob:order:delete"); err != nil {
		return err
	}

	body, err := json.Marshal(cancelOrderRequest{OrderID: orderID})
	if err != nil {
		return err
	}
	bodyStr := string(body)

	headers, err := signing.CreateL2Headers(c.privateKey, c.creds, &signing.L2HeaderArgs{
		Method:      http.MethodDelete,
		RequestPath: "/order",
		Body:        &bodyStr,
	}, nil)
	if err != nil {
		return err
	}

	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(l2HeaderMap(headers)).
		SetBody(bodyStr).
		Delete("/order")
	if err != nil {
		return &NetworkError{Op: "cancel order", Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	if !resp.IsSuccess() {
		return c.classifyHTTPError("cancel order", resp)
	}
	return nil
}

func l2HeaderMap(h *signing.L2PolyHeader) map[string]string {
	return map[string]string{
		"POLY_ADDRESS":    h.PolyAddress,
		"POLY_SIGNATURE":  h.PolySignature,
		"POLY_TIMESTAMP":  h.PolyTimestamp,
		"POLY_API_KEY":    h.PolyAPIKey,
		"POLY_PASSPHRASE": h.PolyPassphrase,
	}
}

// classifyHTTPError 把非 2xx 响应映射到错误分类
func (c *PolymarketClient) classifyHTTPError(op string, resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, op)
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s: %s", ErrInvalidOrder, op, resp.String())
	}
	return &NetworkError{Op: op, Err: errors.Errorf("http non-2xx: %s %s", resp.Status(), resp.String())}
}

// classifyOrderError 把下单业务错误映射到错误分类
func classifyOrderError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not enough balance") || strings.Contains(lower, "insufficient"):
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, msg)
	case strings.Contains(lower, "rate limit"):
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalidOrder, msg)
}
