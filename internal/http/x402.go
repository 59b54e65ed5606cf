package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"zeropay.com/internal/core/x402"
	"zeropay.com/pkg/xerr"
)

// x402 的资源标识里带客户账号，结算时靠它把充值挂到正确的客户上
const resourcePrefix = "zeropay://customers/"

type x402RequirementsRequest struct {
	Customer string `json:"customer"`
	Amount   int64  `json:"amount"` // 分
}

// X402Requirements POST /x402/requirements
// 资金直接付进商户结算钱包，payTo 是商户地址而不是充值地址
func (s *Server) X402Requirements(c *gin.Context) {
	merchant := merchantFrom(c)

	var req x402RequirementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, xerr.MapErrMsg(xerr.RequestParamsError))
		return
	}
	if req.Customer == "" || req.Amount <= 0 {
		fail(c, http.StatusBadRequest, "invalid amount")
		return
	}

	// 客户可以先建出来，x402 路径不需要充值地址，但账还是记在客户头上
	if _, err := s.customers.GetOrCreate(c.Request.Context(), merchant.ID, req.Customer); err != nil {
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	resp := s.facilitator.Requirements(req.Amount, merchant.Eth,
		resourcePrefix+req.Customer, "ZeroPay payment session")
	c.JSON(http.StatusOK, resp)
}

// X402Payment POST /x402/payments
// 校验 -> 上链 -> 合成充值记录走正常的会话匹配和回调流水线
func (s *Server) X402Payment(c *gin.Context) {
	merchant := merchantFrom(c)

	var req x402.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, x402.KindInvalidPayload)
		return
	}

	account, ok := strings.CutPrefix(req.PaymentRequirements.Resource, resourcePrefix)
	if !ok || account == "" {
		fail(c, http.StatusBadRequest, x402.KindInvalidRequirements)
		return
	}
	// 只能付给自己的结算钱包，防止拿别家的 requirements 来撞
	if !strings.EqualFold(req.PaymentRequirements.PayTo, merchant.Eth) {
		fail(c, http.StatusBadRequest, x402.KindRecipientMismatch)
		return
	}

	customer, err := s.customers.GetOrCreate(c.Request.Context(), merchant.ID, account)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	tx, cents, symbol, network, kindErr := s.facilitator.Settle(c.Request.Context(), &req)
	if kindErr != nil {
		fail(c, x402Status(kindErr.Kind), kindErr.Kind)
		return
	}

	if err := s.matcher.HandleX402(c.Request.Context(), network, symbol, customer.ID, cents, tx); err != nil {
		// 钱已经上链了，落库失败只能报 500 让商户对账
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tx_hash":        tx,
		"settled_amount": cents,
	})
}

// X402Support GET /x402/support
func (s *Server) X402Support(c *gin.Context) {
	c.JSON(http.StatusOK, s.facilitator.Support())
}

// X402Discovery GET /x402/discovery
func (s *Server) X402Discovery(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	c.JSON(http.StatusOK, s.facilitator.Discovery(limit, offset))
}

// x402Status 请求格式问题 400，支付本身的问题 402
func x402Status(kind string) int {
	switch kind {
	case x402.KindInvalidPayload, x402.KindInvalidRequirements,
		x402.KindInvalidScheme, x402.KindInvalidNetwork, x402.KindInvalidVersion,
		x402.KindUnsupportedScheme:
		return http.StatusBadRequest
	default:
		return http.StatusPaymentRequired
	}
}
