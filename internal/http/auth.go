package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/service"
)

type registerReq struct {
	Name      string `json:"name" binding:"required,min=2"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	Role      string `json:"role" binding:"omitempty,oneof=SUPPLIER USER"`
	AvatarURL string `json:"avatarUrl"`
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResp struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

// @Summary Register
// @Tags auth
// @Accept json
// @Produce json
// @Param input body registerReq true "Account"
// @Success 201 {object} successBody{data=domain.User}
// @Failure 400 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /auth/register [post]
func (s *Server) register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	u, err := s.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Role:      domain.Role(req.Role),
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "user registered", u)
}

// @Summary Login
// @Description Returns a bearer token and also sets it as an HttpOnly cookie.
// @Tags auth
// @Accept json
// @Produce json
// @Param input body loginReq true "Credentials"
// @Success 200 {object} successBody{data=sessionResp}
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Router /auth/login [post]
func (s *Server) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	sess, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.opts.CookieName, sess.Token, int(s.auth.TokenTTL().Seconds()), "/", "", s.opts.CookieSecure, true)
	respond(c, http.StatusOK, "login success", sessionResp{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.UTC(),
		User:      sess.User,
	})
}

// @Summary Logout
// @Tags auth
// @Produce json
// @Success 200 {object} successBody
// @Router /auth/logout [post]
func (s *Server) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.opts.CookieName, "", -1, "/", "", s.opts.CookieSecure, true)
	respond(c, http.StatusOK, "logout success", nil)
}

// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} successBody{data=domain.User}
// @Failure 401 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /auth/me [get]
func (s *Server) me(c *gin.Context) {
	u, err := s.auth.Me(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "current user", u)
}

// @Summary Delete account
// @Description Orders and transfers of the account stay in history.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} successBody
// @Failure 401 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /auth/me [delete]
func (s *Server) deleteMe(c *gin.Context) {
	if err := s.auth.DeleteAccount(c.Request.Context(), actorFrom(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.SetCookie(s.opts.CookieName, "", -1, "/", "", s.opts.CookieSecure, true)
	respond(c, http.StatusOK, "account deleted", nil)
}
