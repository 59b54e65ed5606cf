package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/xerr"
)

type createSessionRequest struct {
	Customer string `json:"customer"`
	Amount   int64  `json:"amount"` // 分
}

// SessionView 对外的会话视图
type SessionView struct {
	SessionID int64     `json:"session_id"`
	Customer  string    `json:"customer"`
	PayEth    string    `json:"pay_eth"`
	Amount    int64     `json:"amount"`
	Expired   time.Time `json:"expired"` // ISO-8601 UTC
	Completed bool      `json:"completed"`
}

func newSessionView(customer *domain.Customer, session *domain.Session) SessionView {
	return SessionView{
		SessionID: session.ID,
		Customer:  customer.Account,
		PayEth:    customer.Eth,
		Amount:    session.Amount,
		Expired:   session.ExpiredAt.UTC(),
		Completed: session.Sent,
	}
}

// CreateSession POST /sessions
func (s *Server) CreateSession(c *gin.Context) {
	merchant := merchantFrom(c)

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, xerr.MapErrMsg(xerr.RequestParamsError))
		return
	}
	if req.Customer == "" || req.Amount <= 0 {
		fail(c, http.StatusBadRequest, "invalid amount")
		return
	}

	customer, err := s.customers.GetOrCreate(c.Request.Context(), merchant.ID, req.Customer)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	session, err := s.sessions.InsertSession(c.Request.Context(), customer.ID, req.Amount)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	c.JSON(http.StatusOK, newSessionView(customer, session))
}

// GetSession GET /sessions/:id
func (s *Server) GetSession(c *gin.Context) {
	merchant := merchantFrom(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusNotFound, xerr.MapErrMsg(xerr.RecordNotFound))
		return
	}

	session, err := s.sessions.GetSession(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, xerr.MapErrMsg(xerr.RecordNotFound))
		return
	}

	customer, err := s.custRepo.GetCustomer(c.Request.Context(), session.CustomerID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}
	// 不给看别的商户的会话
	if customer.MerchantID != merchant.ID {
		fail(c, http.StatusNotFound, xerr.MapErrMsg(xerr.RecordNotFound))
		return
	}

	c.JSON(http.StatusOK, newSessionView(customer, session))
}
