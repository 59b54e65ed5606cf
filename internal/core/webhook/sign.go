package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign 计算回调签名：hex(HMAC-SHA256(apikey, body))，小写
// 商户用自己的 apikey 对收到的原始 body 字节做同样计算来校验
func Sign(apikey string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(apikey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
