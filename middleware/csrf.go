package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"mailconnect/utils"
)

const (
	CSRFCookie     = "csrftoken"
	CSRFHeader     = "X-CSRFToken"
	CSRFContextKey = "csrf"
	CSRFPath       = "/csrf/"
)

// CSRF issues tokens on /csrf/ and checks them on requests authenticated by
// the access_token cookie. Bearer-authenticated requests are exempt.
func CSRF(secureCookie bool) fiber.Handler {
	return csrf.New(csrf.Config{
		KeyLookup:      "header:" + CSRFHeader,
		CookieName:     CSRFCookie,
		CookieSameSite: "Lax",
		CookieSecure:   secureCookie,
		Expiration:     12 * time.Hour,
		ContextKey:     CSRFContextKey,
		Storage:        Storage(),
		Next: func(c *fiber.Ctx) bool {
			if c.Path() == CSRFPath {
				return false
			}
			cookieAuth := c.Cookies(AccessTokenCookie) != "" && c.Get(fiber.HeaderAuthorization) == ""
			return !cookieAuth
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			utils.LogEvent("csrf_rejected", map[string]interface{}{
				"endpoint": c.Path(),
				"ip":       c.IP(),
				"reason":   err.Error(),
			})
			return utils.ErrorResponse(c, fiber.StatusForbidden, "CSRF Failed: "+err.Error())
		},
	})
}

// CSRFToken returns the token generated for the current request.
func CSRFToken(c *fiber.Ctx) string {
	token, _ := c.Locals(CSRFContextKey).(string)
	return token
}
