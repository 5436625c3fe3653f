package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/photokeeper/internal/server/models"
	"github.com/dmitrijs2005/photokeeper/internal/server/quota"
	"github.com/dmitrijs2005/photokeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	Company          string `json:"company"`
	RegistrationCode string `json:"registrationCode"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userSummary struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Company string `json:"company"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  userSummary `json:"user"`
}

type meResponse struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	Company             string `json:"company"`
	PhotoCredits        int64  `json:"photoCredits"`
	PhotosEnhanced      int64  `json:"photosEnhanced"`
	RemainingCredits    int64  `json:"remainingCredits"`
	IsUnlimited         bool   `json:"isUnlimited"`
	HasRegistrationCode bool   `json:"hasRegistrationCode"`
}

func newSessionResponse(s *services.Session) sessionResponse {
	return sessionResponse{
		Token: s.Token,
		User:  userSummary{ID: s.Account.ID, Email: s.Account.Email, Company: s.Account.Company},
	}
}

func newMeResponse(acc *models.Account) meResponse {
	return meResponse{
		ID:                  acc.ID,
		Email:               acc.Email,
		Company:             acc.Company,
		PhotoCredits:        acc.CreditsGranted,
		PhotosEnhanced:      acc.CreditsConsumed,
		RemainingCredits:    quota.Remaining(acc),
		IsUnlimited:         acc.UnlimitedAccess,
		HasRegistrationCode: acc.RegistrationCode != "",
	}
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": msgMissingFields})
		return
	}

	session, err := s.accounts.Register(c.Request.Context(), services.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		Company:    req.Company,
		AccessCode: req.RegistrationCode,
	})
	if err != nil {
		s.fail(c, "register", err)
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(session))
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": msgMissingFields})
		return
	}

	session, err := s.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, "login", err)
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(session))
}

func (s *Server) me(c *gin.Context) {
	acc, err := s.accounts.Account(c.Request.Context(), c.GetString(accountIDKey))
	if err != nil {
		s.fail(c, "me", err)
		return
	}

	c.JSON(http.StatusOK, newMeResponse(acc))
}
