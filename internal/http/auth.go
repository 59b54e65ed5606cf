package http

import (
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/xerr"
)

const ctxMerchantKey = "merchant"

// 登录态 90 天
const jwtTTL = 90 * 24 * time.Hour

// ApikeyAuth 所有商户 API 都带 ?apikey=，对不上一律 401
func (s *Server) ApikeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		apikey := c.Query("apikey")
		if apikey == "" {
			fail(c, http.StatusUnauthorized, xerr.MapErrMsg(xerr.UserAuthError))
			return
		}

		merchant, err := s.merchants.GetByApikey(c.Request.Context(), apikey)
		if err != nil {
			fail(c, http.StatusUnauthorized, xerr.MapErrMsg(xerr.UserAuthError))
			return
		}

		c.Set(ctxMerchantKey, merchant)
		c.Next()
	}
}

func merchantFrom(c *gin.Context) *domain.Merchant {
	return c.MustGet(ctxMerchantKey).(*domain.Merchant)
}

// ---------------------------------------------------------
// 商户控制台：钱包签名登录 + JWT
// ---------------------------------------------------------

type authClaims struct {
	ID int64 `json:"id"`
	jwt.RegisteredClaims
}

// GetNonce GET /api/nonce
func (s *Server) GetNonce(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nonce": s.nonces.Generate()})
}

type loginRequest struct {
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// Login POST /api/login
// 钱包对 nonce 文本做 personal_sign，恢复出地址就是商户账号
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, xerr.MapErrMsg(xerr.RequestParamsError))
		return
	}

	if !s.nonces.Check(req.Nonce) {
		fail(c, http.StatusBadRequest, "invalid or expired nonce")
		return
	}

	address, err := recoverPersonalSign(req.Nonce, req.Signature)
	if err != nil {
		fail(c, http.StatusBadRequest, "signature verification failed")
		return
	}

	merchant, err := s.merchants.GetOrInsertMerchant(c.Request.Context(), address)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := s.signJWT(merchant.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"account": merchant.Account,
		"apikey":  merchant.Apikey,
		"name":    merchant.Name,
		"webhook": merchant.Webhook,
		"eth":     merchant.Eth,
	})
}

// JwtAuth 控制台接口的 Bearer 鉴权
func (s *Server) JwtAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		bearer, token, ok := strings.Cut(header, " ")
		if !ok || bearer != "Bearer" {
			fail(c, http.StatusUnauthorized, xerr.MapErrMsg(xerr.UserAuthError))
			return
		}

		claims := &authClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS512 {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.secret, nil
		})
		if err != nil || !parsed.Valid {
			fail(c, http.StatusUnauthorized, xerr.MapErrMsg(xerr.UserAuthError))
			return
		}

		merchant, err := s.merchants.GetMerchant(c.Request.Context(), claims.ID)
		if err != nil {
			fail(c, http.StatusUnauthorized, xerr.MapErrMsg(xerr.UserAuthError))
			return
		}
		c.Set(ctxMerchantKey, merchant)
		c.Next()
	}
}

func (s *Server) signJWT(merchantID int64) (string, error) {
	now := time.Now()
	claims := authClaims{
		ID: merchantID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.secret)
}

type merchantInfoRequest struct {
	Name    string `json:"name"`
	Webhook string `json:"webhook"`
	Eth     string `json:"eth"`
}

// UpdateInfo POST /api/merchants/info
func (s *Server) UpdateInfo(c *gin.Context) {
	merchant := merchantFrom(c)

	var req merchantInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, xerr.MapErrMsg(xerr.RequestParamsError))
		return
	}
	if !common.IsHexAddress(req.Eth) {
		fail(c, http.StatusBadRequest, "invalid eth address")
		return
	}
	eth := common.HexToAddress(req.Eth).Hex()

	if err := s.merchants.UpdateInfo(c.Request.Context(), merchant.ID, req.Name, req.Webhook, eth); err != nil {
		if ce, ok := err.(*xerr.CodeError); ok && ce.Code == xerr.RequestParamsError {
			fail(c, http.StatusBadRequest, ce.Msg)
			return
		}
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"name": req.Name, "webhook": req.Webhook, "eth": eth})
}

// UpdateApikey POST /api/merchants/apikey 换新钥匙
func (s *Server) UpdateApikey(c *gin.Context) {
	merchant := merchantFrom(c)

	apikey := s.newApikey()
	if err := s.merchants.UpdateApikey(c.Request.Context(), merchant.ID, apikey); err != nil {
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"apikey": apikey})
}

// recoverPersonalSign EIP-191 personal_sign 签名恢复地址 (EIP-55)
func recoverPersonalSign(message, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", err
	}
	if len(sig) != 65 {
		return "", jwt.ErrSignatureInvalid
	}
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
