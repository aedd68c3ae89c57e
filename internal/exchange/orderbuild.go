package exchange

import (
	"crypto/ecdsa"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/betbot/copycat/internal/domain"
	"github.com/betbot/copycat/internal/exchange/signing"
)

// RoundConfig 舍入配置
type RoundConfig struct {
	Price  int // 价格小数位数
	Size   int // 数量小数位数
	Amount int // 金额小数位数
}

// TickSize 价格精度
type TickSize string

const (
	TickSize01    TickSize = "0.1"
	TickSize001   TickSize = "0.01"
	TickSize0001  TickSize = "0.001"
	TickSize00001 TickSize = "0.0001"
)

// RoundingConfig 根据 tick size 返回舍入配置
var RoundingConfig = map[TickSize]RoundConfig{
	TickSize01:    {Price: 1, Size: 2, Amount: 3},
	TickSize001:   {Price: 2, Size: 2, Amount: 4},
	TickSize0001:  {Price: 3, Size: 2, Amount: 5},
	TickSize00001: {Price: 4, Size: 2, Amount: 6},
}

// SignedOrder 已签名订单（POST /order 的 payload）
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// OrderBuilder 订单构建器
type OrderBuilder struct {
	privateKey    *ecdsa.PrivateKey
	chainID       signing.Chain
	signatureType signing.SignatureType
	funderAddress string
}

// NewOrderBuilder 创建新的订单构建器
func NewOrderBuilder(privateKey *ecdsa.PrivateKey, chainID signing.Chain, signatureType signing.SignatureType, funderAddress string) *OrderBuilder {
	return &OrderBuilder{
		privateKey:    privateKey,
		chainID:       chainID,
		signatureType: signatureType,
		funderAddress: funderAddress,
	}
}

// BuildOrder 按照价格和数量构建并签名订单
func (ob *OrderBuilder) BuildOrder(req domain.CopyOrderRequest, price float64, tickSize TickSize) (*SignedOrder, error) {
	contractConfig, err := signing.GetContractConfig(ob.chainID)
	if err != nil {
		return nil, fmt.Errorf("获取合约配置失败: %w", err)
	}

	roundConfig, ok := RoundingConfig[tickSize]
	if !ok {
		return nil, fmt.Errorf("不支持的 tick size: %s", tickSize)
	}

	signerAddress := crypto.PubkeyToAddress(ob.privateKey.PublicKey)

	// maker 优先使用 funder 地址（代理钱包持有资金）
	maker := signerAddress.Hex()
	if ob.funderAddress != "" {
		maker = ob.funderAddress
	}

	size, _ := req.TargetSize.Float64()
	rawMakerAmt, rawTakerAmt := getOrderRawAmounts(req.Side, size, price, roundConfig)

	// 转换为 wei 单位（USDC 精度为 6）
	makerAmount := parseUnits(rawMakerAmt, signing.CollateralTokenDecimals)
	takerAmount := parseUnits(rawTakerAmt, signing.CollateralTokenDecimals)

	tokenID := new(big.Int)
	if _, ok := tokenID.SetString(req.Asset, 10); !ok {
		return nil, fmt.Errorf("无效的 tokenID: %s", req.Asset)
	}

	// 生成 salt（当前时间戳纳秒）
	salt := time.Now().UnixNano()

	orderData := &signing.OrderData{
		Salt:          salt,
		Maker:         maker,
		Signer:        signerAddress.Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    big.NewInt(0),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(0),
		Side:          string(req.Side),
		SignatureType: ob.signatureType,
	}

	signature, err := signing.BuildOrderSignature(ob.privateKey, ob.chainID, contractConfig.Exchange, orderData)
	if err != nil {
		return nil, fmt.Errorf("签名订单失败: %w", err)
	}

	return &SignedOrder{
		Salt:          salt,
		Maker:         maker,
		Signer:        signerAddress.Hex(),
		Taker:         orderData.Taker,
		TokenID:       req.Asset,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          string(req.Side),
		SignatureType: int(ob.signatureType),
		Signature:     signature,
	}, nil
}

// decimalPlaces 返回数字的小数位数
func decimalPlaces(num float64) int {
	if num == math.Trunc(num) {
		return 0
	}
	str := strconv.FormatFloat(num, 'f', -1, 64)
	parts := strings.Split(str, ".")
	if len(parts) < 2 {
		return 0
	}
	return len(parts[1])
}

// roundNormal 四舍五入到指定小数位数
func roundNormal(num float64, decimals int) float64 {
	if decimalPlaces(num) <= decimals {
		return num
	}
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(num*multiplier) / multiplier
}

// roundDown 向下舍入到指定小数位数
func roundDown(num float64, decimals int) float64 {
	if decimalPlaces(num) <= decimals {
		return num
	}
	multiplier := math.Pow(10, float64(decimals))
	return math.Floor(num*multiplier) / multiplier
}

// roundUp 向上舍入到指定小数位数
func roundUp(num float64, decimals int) float64 {
	if decimalPlaces(num) <= decimals {
		return num
	}
	multiplier := math.Pow(10, float64(decimals))
	return math.Ceil(num*multiplier) / multiplier
}

// getOrderRawAmounts 计算订单的 maker/taker 金额
func getOrderRawAmounts(side domain.Side, size, price float64, roundConfig RoundConfig) (rawMakerAmt, rawTakerAmt float64) {
	rawPrice := roundNormal(price, roundConfig.Price)

	if side == domain.SideBuy {
		// 买入：taker 获得 tokens，maker 支付 USDC
		rawTakerAmt = roundDown(size, roundConfig.Size)

		rawMakerAmt = rawTakerAmt * rawPrice
		if decimalPlaces(rawMakerAmt) > roundConfig.Amount {
			rawMakerAmt = roundUp(rawMakerAmt, roundConfig.Amount+4)
			if decimalPlaces(rawMakerAmt) > roundConfig.Amount {
				rawMakerAmt = roundDown(rawMakerAmt, roundConfig.Amount)
			}
		}
	} else {
		// 卖出：maker 给出 tokens（最多 2 位小数），taker 支付 USDC（最多 4 位小数）
		rawMakerAmt = roundDown(size, roundConfig.Size)

		rawTakerAmt = rawMakerAmt * rawPrice
		if decimalPlaces(rawTakerAmt) > 4 {
			rawTakerAmt = roundDown(rawTakerAmt, 4)
		}
		if decimalPlaces(rawMakerAmt) > 2 {
			rawMakerAmt = roundDown(rawMakerAmt, 2)
			rawTakerAmt = rawMakerAmt * rawPrice
			if decimalPlaces(rawTakerAmt) > 4 {
				rawTakerAmt = roundDown(rawTakerAmt, 4)
			}
		}
	}

	return rawMakerAmt, rawTakerAmt
}

// parseUnits 将金额转换为最小单位（类似 ethers.js 的 parseUnits）
func parseUnits(value float64, decimals int) *big.Int {
	multiplier := new(big.Float).SetFloat64(math.Pow(10, float64(decimals)))
	valueBig := new(big.Float).SetFloat64(value)
	result := new(big.Float).Mul(valueBig, multiplier)

	resultInt, _ := result.Int(nil)
	return resultInt
}
