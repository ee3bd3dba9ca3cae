package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"parchment/internal/middleware"
	"parchment/internal/models"
	"parchment/internal/response"
	"parchment/internal/service"
)

type signupRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	User         models.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h HandlerSet) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "all fields are required", bindingErrors(err)...)
		return
	}

	user, err := h.sessions.Signup(c.Request.Context(), service.SignupInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "User registered successfully", user)
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "email and password are required", bindingErrors(err)...)
		return
	}

	result, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, result)
	response.Success(c, http.StatusOK, "User logged in successfully", loginResponse{
		User:         result.User,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

// RefreshToken takes the refresh token from its cookie, or from the JSON body
// for clients that cannot hold cookies.
func (h HandlerSet) RefreshToken(c *gin.Context) {
	presented, _ := c.Cookie(middleware.RefreshCookie)
	if presented == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	result, err := h.sessions.Refresh(c.Request.Context(), presented)
	if err != nil {
		if isAuthFailure(err) {
			h.cookies.ClearAll(c)
		}
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, result)
	response.Success(c, http.StatusOK, "Access token refreshed", tokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.sessions.Logout(c.Request.Context(), user.ID); err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.ClearAll(c)
	response.Success(c, http.StatusOK, "User logged out", nil)
}

func (h HandlerSet) Me(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	response.Success(c, http.StatusOK, "Current user fetched successfully", user)
}

func (h HandlerSet) setSessionCookies(c *gin.Context, result service.SessionResult) {
	h.cookies.SetAccess(c, result.AccessToken, h.sessions.AccessTTL())
	h.cookies.SetRefresh(c, result.RefreshToken, h.sessions.RefreshTTL())
}

func isAuthFailure(err error) bool {
	return errors.Is(err, service.ErrUnauthenticated) ||
		errors.Is(err, service.ErrInvalidToken) ||
		errors.Is(err, service.ErrExpiredToken)
}
