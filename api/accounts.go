package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"dataflow-api/accounts"
)

func registerAccountRoutes(e *echo.Echo, svc AccountService, auth Authenticator) {
	e.POST("/api/auth/signup", postSignUp(svc))
	e.POST("/api/auth/signin", postSignIn(svc))
	e.POST("/api/auth/signout", postSignOut(auth))
	e.DELETE("/api/auth/account", deleteAccount(svc, auth))
	e.POST("/api/auth/verify", postVerify(svc))
	e.POST("/api/auth/verify/resend", postVerifyResend(svc))
	e.POST("/api/auth/reset/request", postResetRequest(svc))
	e.POST("/api/auth/reset/confirm", postResetConfirm(svc))
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Email string `json:"email"`
}

func postSignUp(svc AccountService) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req credentialsRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email == "" || req.Password == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email and password are required"})
		}

		acct, err := svc.SignUp(ctx, email, req.Password)
		switch {
		case errors.Is(err, accounts.ErrEmailTaken):
			return c.JSON(http.StatusConflict, errorResponse{Error: "email already registered", Code: "email_taken"})
		case errors.Is(err, accounts.ErrWeakPassword):
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "weak_password"})
		case err != nil:
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create account"})
		}
		return c.JSON(http.StatusCreated, signInResponse{ID: acct.ID, Email: acct.Email})
	}
}

func postSignIn(svc AccountService) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req credentialsRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))

		token, acct, err := svc.SignIn(ctx, email, req.Password)
		switch {
		case errors.Is(err, accounts.ErrInvalidCredentials):
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid email or password", Code: "invalid_credentials"})
		case errors.Is(err, accounts.ErrNotVerified):
			return c.JSON(http.StatusForbidden, errorResponse{Error: "email not verified", Code: "not_verified"})
		case err != nil:
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to sign in"})
		}
		return c.JSON(http.StatusOK, signInResponse{Token: token, ID: acct.ID, Email: acct.Email})
	}
}

// postSignOut exists so clients have a single endpoint to hit when a session
// ends. Tokens are stateless, so the only server-side work is validating
// that the caller held one.
func postSignOut(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.AccountIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type deleteAccountRequest struct {
	Email string `json:"email"`
}

func deleteAccount(svc AccountService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		accountID, err := auth.AccountIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req deleteAccountRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email is required"})
		}

		if err := svc.DeleteAccount(ctx, accountID, email); err != nil {
			if errors.Is(err, accounts.ErrInvalidCredentials) {
				return c.JSON(http.StatusForbidden, errorResponse{Error: "account mismatch"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to delete account"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type tokenRequest struct {
	Token string `json:"token"`
}

func postVerify(svc AccountService) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req tokenRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if err := svc.VerifyEmail(ctx, req.Token); err != nil {
			if errors.Is(err, accounts.ErrInvalidToken) {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid verification token", Code: "invalid_token"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to verify email"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// postVerifyResend always answers 202, like the reset request, so the
// endpoint does not reveal which emails hold an unverified account.
func postVerifyResend(svc AccountService) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req resetRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email is required"})
		}
		if err := svc.ResendVerification(ctx, email); err != nil {
			c.Logger().Error(err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

type resetRequest struct {
	Email string `json:"email"`
}

// postResetRequest always answers 202. Whether the email exists is not
// revealed to the caller.
func postResetRequest(svc AccountService) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req resetRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email is required"})
		}
		if err := svc.RequestPasswordReset(ctx, email); err != nil {
			c.Logger().Error(err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func postResetConfirm(svc AccountService) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req resetConfirmRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		err := svc.ResetPassword(ctx, req.Token, req.Password)
		switch {
		case errors.Is(err, accounts.ErrInvalidToken):
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid reset token", Code: "invalid_token"})
		case errors.Is(err, accounts.ErrTokenExpired):
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "reset token expired", Code: "token_expired"})
		case errors.Is(err, accounts.ErrWeakPassword):
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "weak_password"})
		case err != nil:
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to reset password"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
