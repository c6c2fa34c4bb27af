package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"mailconnect/config"
	"mailconnect/middleware"
	"mailconnect/services"
	"mailconnect/utils"
)

const (
	refreshTokenCookie = "refresh_token"
	oauthStateCookie   = "oauth_state"
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
)

type RegisterRequest struct {
	Username  string `json:"username" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,mailbox,max=254"`
	Password  string `json:"password" validate:"required"`
	Password2 string `json:"password2" validate:"required"`
	FirstName string `json:"first_name" validate:"omitempty,max=150"`
	LastName  string `json:"last_name" validate:"omitempty,max=150"`
}

// LoginRequest accepts the login identifier as email or, for clients built
// against the username field, as username.
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	Refresh string `json:"refresh"`
}

type AuthController struct {
	accounts *services.AccountService
	oauth    *oauth2.Config
	logger   *log.Logger
}

func NewAuthController(accounts *services.AccountService, logger *log.Logger) *AuthController {
	ac := &AuthController{
		accounts: accounts,
		logger:   logger,
	}
	if config.AppConfig.GoogleEnabled() {
		ac.oauth = &oauth2.Config{
			ClientID:     config.AppConfig.Google.ClientID,
			ClientSecret: config.AppConfig.Google.ClientSecret,
			RedirectURL:  config.AppConfig.Google.RedirectURI,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		}
	}
	return ac
}

func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if errs := parseBody(c, &req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	result, err := ac.accounts.Register(c.UserContext(), services.RegisterInput{
		Username:             req.Username,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.Password2,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
	})
	if err != nil {
		return handleServiceError(c, err, "register_failed", "")
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// Login handles POST /token/.
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if errs := parseBody(c, &req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	identifier := req.Email
	if identifier == "" {
		identifier = req.Username
	}
	errs := utils.ValidateStruct(req)
	if identifier == "" {
		if errs == nil {
			errs = utils.FieldErrors{}
		}
		errs.Add("email", "This field is required.")
	}
	if errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	result, err := ac.accounts.Login(c.UserContext(), identifier, req.Password)
	if err != nil {
		return handleServiceError(c, err, "login_failed", "")
	}

	ac.setAuthCookies(c, result)
	return c.JSON(result)
}

// Refresh handles POST /token/refresh/. The token may come from the body
// or the refresh_token cookie.
func (ac *AuthController) Refresh(c *fiber.Ctx) error {
	var req RefreshTokenRequest
	if len(c.Body()) > 0 {
		if errs := parseBody(c, &req); errs != nil {
			return utils.ValidationErrorResponse(c, errs)
		}
	}
	if req.Refresh == "" {
		req.Refresh = c.Cookies(refreshTokenCookie)
	}
	if req.Refresh == "" {
		errs := utils.FieldErrors{}
		errs.Add("refresh", "This field is required.")
		return utils.ValidationErrorResponse(c, errs)
	}

	access, err := ac.accounts.Refresh(c.UserContext(), req.Refresh)
	if err != nil {
		return handleServiceError(c, err, "token_refresh_failed", "")
	}

	return c.JSON(fiber.Map{
		"access": access,
	})
}

// CSRFToken handles GET /csrf/. The token is generated by the CSRF
// middleware and also set in the csrftoken cookie.
func (ac *AuthController) CSRFToken(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"csrfToken": middleware.CSRFToken(c),
	})
}

func (ac *AuthController) DeleteAccount(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if err := ac.accounts.DeleteAccount(c.UserContext(), user); err != nil {
		return handleServiceError(c, err, "delete_account_failed", "")
	}

	c.ClearCookie(middleware.AccessTokenCookie, refreshTokenCookie)
	ac.logger.Printf("Deleted account %d", user.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

func (ac *AuthController) GoogleOAuth(c *fiber.Ctx) error {
	if ac.oauth == nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Google sign-in is not configured")
	}

	state, err := utils.GenerateSecureToken()
	if err != nil {
		return handleServiceError(c, err, "oauth_state_failed", "")
	}

	c.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		Secure:   config.AppConfig.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	url := ac.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
	return c.Redirect(url, fiber.StatusTemporaryRedirect)
}

func (ac *AuthController) GoogleOAuthCallback(c *fiber.Ctx) error {
	if ac.oauth == nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Google sign-in is not configured")
	}

	state := c.Query("state")
	cookieState := c.Cookies(oauthStateCookie)
	if state == "" || cookieState == "" || state != cookieState {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid state parameter")
	}
	c.ClearCookie(oauthStateCookie)

	code := c.Query("code")
	if code == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Authorization code not provided")
	}

	googleUser, err := ac.fetchGoogleUser(c.UserContext(), code)
	if err != nil {
		utils.LogError("google_oauth_failed", err, nil)
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to sign in with Google")
	}

	result, err := ac.accounts.LoginWithGoogle(c.UserContext(), *googleUser)
	if err != nil {
		return handleServiceError(c, err, "google_login_failed", "")
	}

	ac.setAuthCookies(c, result)
	return c.JSON(result)
}

func (ac *AuthController) fetchGoogleUser(ctx context.Context, code string) (*services.GoogleUser, error) {
	token, err := ac.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	resp, err := ac.oauth.Client(ctx, token).Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google API error: %s", body)
	}

	var info struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		Verified bool   `json:"verified_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}

	return &services.GoogleUser{
		ID:       info.ID,
		Email:    info.Email,
		Name:     info.Name,
		Verified: info.Verified,
	}, nil
}

func (ac *AuthController) setAuthCookies(c *fiber.Ctx, result *services.AuthResult) {
	secure := config.AppConfig.IsProduction()

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    result.Access,
		Expires:  time.Now().Add(config.AppConfig.AccessTokenTTL),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     refreshTokenCookie,
		Value:    result.Refresh,
		Expires:  time.Now().Add(config.AppConfig.RefreshTokenTTL),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
