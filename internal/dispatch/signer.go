package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign 计算请求体的 HMAC-SHA256 签名，64 位小写 hex。
// 签名覆盖发出的精确字节，接收方必须对收到的原始 body 验签，不能重新序列化。
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
