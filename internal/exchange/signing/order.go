package signing

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// OrderData 订单数据（用于签名）
type OrderData struct {
	Salt          int64
	Maker         string
	Signer        string
	Taker         string
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          string // BUY 或 SELL
	SignatureType SignatureType
}

// BuildOrderSignature 构建订单的 EIP712 签名
func BuildOrderSignature(
	privateKey *ecdsa.PrivateKey,
	chainID Chain,
	exchangeAddress string,
	orderData *OrderData,
) (string, error) {
	// 构建 EIP712 域
	domain := apitypes.TypedDataDomain{
		Name:              ExchangeDomainName,
		Version:           "1",
		ChainId:           math.NewHexOrDecimal256(int64(chainID)),
		VerifyingContract: exchangeAddress,
	}

	typeDefs := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"Order": {
			{Name: "salt", Type: "uint256"},
			{Name: "maker", Type: "address"},
			{Name: "signer", Type: "address"},
			{Name: "taker", Type: "address"},
			{Name: "tokenId", Type: "uint256"},
			{Name: "makerAmount", Type: "uint256"},
			{Name: "takerAmount", Type: "uint256"},
			{Name: "expiration", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
			{Name: "feeRateBps", Type: "uint256"},
			{Name: "side", Type: "uint8"},
			{Name: "signatureType", Type: "uint8"},
		},
	}

	// BUY = 0, SELL = 1（@polymarket/order-utils 约定）
	var sideUint8 uint8 = 1
	if orderData.Side == "BUY" {
		sideUint8 = 0
	}

	message := map[string]interface{}{
		"salt":          big.NewInt(orderData.Salt),
		"maker":         common.HexToAddress(orderData.Maker).Hex(),
		"signer":        common.HexToAddress(orderData.Signer).Hex(),
		"taker":         common.HexToAddress(orderData.Taker).Hex(),
		"tokenId":       orderData.TokenID,
		"makerAmount":   orderData.MakerAmount,
		"takerAmount":   orderData.TakerAmount,
		"expiration":    orderData.Expiration,
		"nonce":         orderData.Nonce,
		"feeRateBps":    orderData.FeeRateBps,
		"side":          big.NewInt(int64(sideUint8)),
		"signatureType": big.NewInt(int64(orderData.SignatureType)),
	}

	typedData := apitypes.TypedData{
		Types:       typeDefs,
		PrimaryType: "Order",
		Domain:      domain,
		Message:     message,
	}

	// TypedDataAndHash 自动处理 domain 和 message 的哈希计算
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("计算 EIP712 哈希失败: %w", err)
	}

	signature, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return "", fmt.Errorf("签名失败: %w", err)
	}

	return "0x" + common.Bytes2Hex(signature), nil
}
