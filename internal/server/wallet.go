package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	walletdomain "github.com/smallbiznis/mystictxt/internal/wallet/domain"
)

type walletResponse struct {
	*walletdomain.Wallet
	BalanceDisplay string `json:"balance_display"`
}

type addCreditsRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type grantCreditsRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note"`
}

type listTransactionsQuery struct {
	Limit int `form:"limit"`
}

func newWalletResponse(wallet *walletdomain.Wallet) walletResponse {
	return walletResponse{
		Wallet:         wallet,
		BalanceDisplay: walletdomain.FormatCents(wallet.BalanceCents),
	}
}

func (s *Server) GetAccount(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	account, err := s.chatSvc.GetAccount(c.Request.Context(), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) GetWallet(c *gin.Context) {
	actor, ok := s.walletActor(c, authorization.ActionWalletView)
	if !ok {
		return
	}

	wallet, err := s.walletSvc.GetOrCreateWallet(c.Request.Context(), actor.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newWalletResponse(wallet)})
}

func (s *Server) ListWalletTransactions(c *gin.Context) {
	actor, ok := s.walletActor(c, authorization.ActionWalletView)
	if !ok {
		return
	}

	var query listTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	wallet, err := s.walletSvc.GetOrCreateWallet(ctx, actor.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	transactions, err := s.walletSvc.ListTransactions(ctx, wallet.ID, query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": transactions})
}

func (s *Server) AddCredits(c *gin.Context) {
	actor, ok := s.walletActor(c, authorization.ActionWalletTopUp)
	if !ok {
		return
	}

	var req addCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	wallet, err := s.walletSvc.AddCredits(c.Request.Context(), actor.ID, req.AmountCents)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newWalletResponse(wallet)})
}

func (s *Server) GrantCredits(c *gin.Context) {
	actor, ok := s.walletActor(c, authorization.ActionWalletGrant)
	if !ok {
		return
	}

	customerID := strings.TrimSpace(c.Param("customer_id"))
	if customerID == "" {
		AbortWithError(c, walletdomain.ErrInvalidCustomer)
		return
	}

	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	wallet, err := s.walletSvc.GrantCredits(c.Request.Context(), actor, customerID, req.AmountCents, req.Note)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newWalletResponse(wallet)})
}

func (s *Server) walletActor(c *gin.Context, action string) (auth.Actor, bool) {
	actor, ok := mustActor(c)
	if !ok {
		return auth.Actor{}, false
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectWallet, action); err != nil {
		AbortWithError(c, err)
		return auth.Actor{}, false
	}
	return actor, true
}
