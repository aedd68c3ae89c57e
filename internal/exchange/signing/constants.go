package signing

import "math/big"

const (
	// ClobDomainName EIP712 域名名称
	ClobDomainName = "ClobAuthDomain"

	// ClobVersion EIP712 版本
	ClobVersion = "1"

	// MsgToSign 签名消息
	MsgToSign = "This message attests that I control the given wallet"

	// ExchangeDomainName 交易所订单域名名称
	ExchangeDomainName = "Polymarket CTF Exchange"

	// CollateralTokenDecimals USDC 精度
	CollateralTokenDecimals = 6
)

// Chain 区块链网络
type Chain int64

const (
	ChainPolygon Chain = 137
	ChainAmoy    Chain = 80002
)

// SignatureType 签名类型
type SignatureType int

const (
	SignatureTypeBrowser    SignatureType = 0 // EOA 钱包直签
	SignatureTypeMagic      SignatureType = 1 // Magic Link 托管钱包
	SignatureTypeGnosisSafe SignatureType = 2 // Gnosis Safe 代理钱包（最常见）
)

// ApiKeyCreds API 密钥凭证
type ApiKeyCreds struct {
	Key        string
	Secret     string
	Passphrase string
}

// ContractConfig 链上合约配置
type ContractConfig struct {
	Exchange         string
	NegRiskExchange  string
	Collateral       string
	ConditionalToken string
}

// GetContractConfig 返回链对应的合约地址
func GetContractConfig(chainID Chain) (*ContractConfig, error) {
	switch chainID {
	case ChainPolygon:
		return &ContractConfig{
			Exchange:         "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
			NegRiskExchange:  "0xC5d563A36AE78145C45a50134d48A1215220f80a",
			Collateral:       "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
			ConditionalToken: "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045",
		}, nil
	case ChainAmoy:
		return &ContractConfig{
			Exchange:         "0xdFE02Eb6733538f8Ea35D585af8DE5958AD99E40",
			NegRiskExchange:  "0xC5d563A36AE78145C45a50134d48A1215220f80a",
			Collateral:       "0x9c4e1703476e875070ee25b56a58b008cfb8fa78",
			ConditionalToken: "0x69308FB512518e39F9b16112fA8d994F4e2Bf8bB",
		}, nil
	}
	return nil, errUnsupportedChain(chainID)
}

type unsupportedChainError struct{ chain Chain }

func (e *unsupportedChainError) Error() string {
	return "signing: unsupported chain " + big.NewInt(int64(e.chain)).String()
}

func errUnsupportedChain(c Chain) error {
	return &unsupportedChainError{chain: c}
}
