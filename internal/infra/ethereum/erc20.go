package ethereum

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC-20 Transfer 事件哈希: Keccak256("Transfer(address,address,uint256)")
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// 标准 ERC-20 + EIP-3009 扩展 (transferWithAuthorization / authorizationState)
const erc20ABI = `[
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"version","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"constant":true,"inputs":[{"name":"authorizer","type":"address"},{"name":"nonce","type":"bytes32"}],"name":"authorizationState","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"validAfter","type":"uint256"},{"name":"validBefore","type":"uint256"},{"name":"nonce","type":"bytes32"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"name":"transferWithAuthorization","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var erc20 abi.ABI

func init() {
	var err error
	erc20, err = abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic("erc20 abi: " + err.Error())
	}
}

func packTransfer(to common.Address, value *big.Int) []byte {
	data, err := erc20.Pack("transfer", to, value)
	if err != nil {
		panic(err) // 静态 ABI，参数类型固定，不会失败
	}
	return data
}

func packBalanceOf(owner common.Address) []byte {
	data, _ := erc20.Pack("balanceOf", owner)
	return data
}

func packDecimals() []byte {
	data, _ := erc20.Pack("decimals")
	return data
}

func packAuthorizationState(authorizer common.Address, nonce [32]byte) []byte {
	data, _ := erc20.Pack("authorizationState", authorizer, nonce)
	return data
}

func packTransferWithAuthorization(from, to common.Address, value, validAfter, validBefore *big.Int,
	nonce [32]byte, v uint8, r, s [32]byte) []byte {
	data, err := erc20.Pack("transferWithAuthorization", from, to, value, validAfter, validBefore, nonce, v, r, s)
	if err != nil {
		panic(err)
	}
	return data
}

func packName() []byte {
	data, _ := erc20.Pack("name")
	return data
}

func packVersion() []byte {
	data, _ := erc20.Pack("version")
	return data
}

func unpackString(method string, out []byte) (string, error) {
	vals, err := erc20.Unpack(method, out)
	if err != nil {
		return "", err
	}
	return vals[0].(string), nil
}

func unpackUint8(method string, out []byte) (uint8, error) {
	vals, err := erc20.Unpack(method, out)
	if err != nil {
		return 0, err
	}
	return vals[0].(uint8), nil
}

func unpackBig(method string, out []byte) (*big.Int, error) {
	vals, err := erc20.Unpack(method, out)
	if err != nil {
		return nil, err
	}
	return vals[0].(*big.Int), nil
}

func unpackBool(method string, out []byte) (bool, error) {
	vals, err := erc20.Unpack(method, out)
	if err != nil {
		return false, err
	}
	return vals[0].(bool), nil
}
