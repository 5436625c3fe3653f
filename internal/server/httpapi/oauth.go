package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/photokeeper/internal/common"
	"github.com/dmitrijs2005/photokeeper/internal/server/models"
	"github.com/dmitrijs2005/photokeeper/internal/server/oauth"
	"github.com/dmitrijs2005/photokeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

const (
	oauthCookieMaxAge = 600
	oauthStartPath    = "/api/auth/oauth/start"

	redirectAuthFailed   = "/?error=auth_failed"
	redirectLinkRequired = "/?error=link_required"
)

type oauthStatusResponse struct {
	AuthProvider   string `json:"authProvider"`
	HasGoogleAuth  bool   `json:"hasGoogleAuth"`
	ProfilePicture string `json:"profilePicture"`
	DisplayName    string `json:"displayName"`
	CanLinkGoogle  bool   `json:"canLinkGoogle"`
}

func (s *Server) providerOrAbort(c *gin.Context) oauth.Provider {
	if s.opts.Provider == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"msg": "Google sign-in is not configured"})
		return nil
	}
	return s.opts.Provider
}

func (s *Server) setOAuthCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/api/auth/oauth", "", s.opts.SecureCookies, true)
}

// oauthStart redirects the browser to the provider. An optional link_token
// query parameter turns the flow into a link-accounts handshake.
func (s *Server) oauthStart(c *gin.Context) {
	provider := s.providerOrAbort(c)
	if provider == nil {
		return
	}

	if linkToken := c.Query("link_token"); linkToken != "" {
		if _, errLink := s.issuer.VerifyLink(linkToken); errLink != nil {
			code, msg := statusFor(errLink)
			c.AbortWithStatusJSON(code, gin.H{"msg": msg})
			return
		}
		s.setOAuthCookie(c, common.OAuthLinkCookieName, linkToken, oauthCookieMaxAge)
	} else {
		s.setOAuthCookie(c, common.OAuthLinkCookieName, "", -1)
	}

	state, err := oauth.NewState()
	if err != nil {
		s.fail(c, "oauth start", err)
		return
	}
	s.setOAuthCookie(c, common.OAuthStateCookieName, state, oauthCookieMaxAge)

	c.Redirect(http.StatusFound, provider.AuthCodeURL(state))
}

// oauthCallback completes the flow and hands the session token to the
// frontend through the redirect URL.
func (s *Server) oauthCallback(c *gin.Context) {
	provider := s.providerOrAbort(c)
	if provider == nil {
		return
	}
	ctx := c.Request.Context()

	storedState, _ := c.Cookie(common.OAuthStateCookieName)
	linkToken, _ := c.Cookie(common.OAuthLinkCookieName)
	s.setOAuthCookie(c, common.OAuthStateCookieName, "", -1)
	s.setOAuthCookie(c, common.OAuthLinkCookieName, "", -1)

	if e := c.Query("error"); e != "" {
		s.logger.Info(ctx, "provider denied authorization", "error", e)
		c.Redirect(http.StatusFound, redirectAuthFailed)
		return
	}
	if !oauth.StateMatches(storedState, c.Query("state")) {
		s.logger.Warn(ctx, "oauth state mismatch")
		c.Redirect(http.StatusFound, redirectAuthFailed)
		return
	}

	identity, err := provider.Exchange(ctx, c.Query("code"))
	if err != nil {
		s.logger.Warn(ctx, "oauth code exchange failed", "error", err)
		c.Redirect(http.StatusFound, redirectAuthFailed)
		return
	}

	acc, err := s.resolveCallback(c, linkToken, *identity)
	if err != nil {
		s.logger.Warn(ctx, "federated login failed", "error", err)
		if errors.Is(err, services.ErrLinkRequired) {
			c.Redirect(http.StatusFound, redirectLinkRequired)
			return
		}
		c.Redirect(http.StatusFound, redirectAuthFailed)
		return
	}

	session, err := s.accounts.IssueSession(acc)
	if err != nil {
		s.logger.Error(ctx, "session issue failed", "account_id", acc.ID, "error", err)
		c.Redirect(http.StatusFound, redirectAuthFailed)
		return
	}

	s.logger.Info(ctx, "federated login succeeded", "account_id", acc.ID)
	c.Redirect(http.StatusFound, "/?"+url.Values{"token": {session.Token}, "auth": {"google"}}.Encode())
}

func (s *Server) resolveCallback(c *gin.Context, linkToken string, identity models.FederatedIdentity) (*models.Account, error) {
	if linkToken == "" {
		return s.accounts.ResolveFederated(c.Request.Context(), identity)
	}
	accountID, err := s.issuer.VerifyLink(linkToken)
	if err != nil {
		return nil, err
	}
	return s.accounts.LinkFederated(c.Request.Context(), accountID, identity)
}

// oauthLink checks the password of an existing account and returns the URL
// that starts a link-accounts flow for it.
func (s *Server) oauthLink(c *gin.Context) {
	if s.providerOrAbort(c) == nil {
		return
	}

	var req credentialsRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Email and password required"})
		return
	}

	linkToken, err := s.accounts.PrepareLink(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, "oauth link", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"msg":           "Ready to link Google account",
		"linkToken":     linkToken,
		"googleAuthUrl": oauthStartPath + "?" + url.Values{"link_token": {linkToken}}.Encode(),
	})
}

func (s *Server) oauthStatus(c *gin.Context) {
	acc, err := s.accounts.Account(c.Request.Context(), c.GetString(accountIDKey))
	if err != nil {
		s.fail(c, "oauth status", err)
		return
	}

	c.JSON(http.StatusOK, oauthStatusResponse{
		AuthProvider:   string(acc.AuthMode),
		HasGoogleAuth:  acc.HasFederated(),
		ProfilePicture: acc.ProfilePictureURL,
		DisplayName:    acc.DisplayName,
		CanLinkGoogle:  s.opts.Provider != nil && acc.HasPassword() && !acc.HasFederated(),
	})
}
