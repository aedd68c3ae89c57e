package walletset

import (
	"bufio"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/copycat/pkg/logger"
)

// LoadWalletList 读取钱包列表文件
//
// 每行一个地址，支持 # 注释和空行。非法地址跳过并告警，
// 合法地址统一小写归一化（链上地址大小写不敏感）。
func LoadWalletList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	seen := make(map[string]bool)
	lineNo := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !common.IsHexAddress(line) {
			logger.Warnf("钱包列表第 %d 行不是合法地址，已跳过: %q", lineNo, line)
			continue
		}
		addr := strings.ToLower(common.HexToAddress(line).Hex())
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
