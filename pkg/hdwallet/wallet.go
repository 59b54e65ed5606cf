// 钱包功能
package hdwallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// 以太坊的 BIP44 币种编号
const CoinTypeETH = 60

type HDWallet struct {
	// 主私钥
	masterKey *hdkeychain.ExtendedKey
}

// 实例化结构
// 传递一个助记词，内部生成根私钥
func New(mnemonic string) (*HDWallet, error) {
	if mnemonic == "" {
		return nil, errors.New("mnemonic cannot empty")
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}
	// 根据助记词生成随机种子
	seed := bip39.NewSeed(mnemonic, "")
	// 生成根私钥 (网络参数只影响序列化前缀，不影响推导)
	extendKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	return &HDWallet{masterKey: extendKey}, nil
}

// DeriveAddress 按照 BIP44 派生客户地址
// 路径: m / 44' / 60' / 0' / 0 / customer_id
// 客户 id 由数据库分配，全局唯一，所以地址也全局唯一
func (w *HDWallet) DeriveAddress(customerID uint32) (string, *ecdsa.PrivateKey, error) {
	path := []uint32{
		44 + hdkeychain.HardenedKeyStart,          // Purpose
		CoinTypeETH + hdkeychain.HardenedKeyStart, // CoinType
		0 + hdkeychain.HardenedKeyStart,           // Account (网关总账户)
		0,          // Change
		customerID, // Index
	}
	// 循环逐级推导
	key := w.masterKey
	var err error
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return "", nil, err
		}
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return "", nil, err
	}
	// 转换成 ECDSA 私钥，公钥 Keccak-256 取后 20 字节即地址
	ethPrivateKey := privKey.ToECDSA()
	address := crypto.PubkeyToAddress(ethPrivateKey.PublicKey)

	// Hex() 自带 EIP-55 校验和
	return address.Hex(), ethPrivateKey, nil
}

// PrivateKeyHex 导出私钥 Hex (仅用于归集签名，不要返回给前端！)
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return fmt.Sprintf("%x", crypto.FromECDSA(key))
}
