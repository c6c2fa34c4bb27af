package controller

import (
	"log"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"mailconnect/middleware"
	"mailconnect/models"
	"mailconnect/services"
	"mailconnect/utils"
)

const emailAccountNotFound = "Email account not found"

type AddEmailAccountRequest struct {
	Email      string `json:"email" validate:"required,mailbox,max=254"`
	Provider   string `json:"provider" validate:"required,max=50"`
	SMTPServer string `json:"smtp_server" validate:"required,max=255"`
	SMTPPort   int    `json:"smtp_port" validate:"required,min=1,max=65535"`
	IMAPServer string `json:"imap_server" validate:"required,max=255"`
	IMAPPort   int    `json:"imap_port" validate:"required,min=1,max=65535"`
	Password   string `json:"password" validate:"required"`
	UseTLS     *bool  `json:"use_tls"`
}

type EmailAccountController struct {
	accounts *services.EmailAccountService
	logger   *log.Logger
}

func NewEmailAccountController(accounts *services.EmailAccountService, logger *log.Logger) *EmailAccountController {
	return &EmailAccountController{
		accounts: accounts,
		logger:   logger,
	}
}

// ListEmailAccounts returns the caller's accounts keyed by address.
func (ec *EmailAccountController) ListEmailAccounts(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	accounts, err := ec.accounts.List(c.UserContext(), user.ID)
	if err != nil {
		return handleServiceError(c, err, "list_email_accounts_failed", emailAccountNotFound)
	}
	return c.JSON(models.AccountMap(accounts))
}

func (ec *EmailAccountController) AddEmailAccount(c *fiber.Ctx) error {
	var req AddEmailAccountRequest
	if errs := parseBody(c, &req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	useTLS := true
	if req.UseTLS != nil {
		useTLS = *req.UseTLS
	}

	user := middleware.CurrentUser(c)
	account, err := ec.accounts.Add(c.UserContext(), user.ID, services.AddEmailAccountInput{
		Email:      req.Email,
		Provider:   req.Provider,
		SMTPServer: req.SMTPServer,
		SMTPPort:   req.SMTPPort,
		IMAPServer: req.IMAPServer,
		IMAPPort:   req.IMAPPort,
		Password:   req.Password,
		UseTLS:     useTLS,
	})
	if err != nil {
		return handleServiceError(c, err, "add_email_account_failed", emailAccountNotFound)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Email account added successfully",
		"email":   account.Email,
	})
}

func (ec *EmailAccountController) RemoveEmailAccount(c *fiber.Ctx) error {
	email, ok := emailParam(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Email ID is required")
	}

	user := middleware.CurrentUser(c)
	if err := ec.accounts.Remove(c.UserContext(), user.ID, email); err != nil {
		return handleServiceError(c, err, "remove_email_account_failed", emailAccountNotFound)
	}

	return c.JSON(fiber.Map{
		"message": "Email account removed successfully",
	})
}

// TestEmailAccount dials the stored SMTP and IMAP servers and records the
// result on the account.
func (ec *EmailAccountController) TestEmailAccount(c *fiber.Ctx) error {
	email, ok := emailParam(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Email ID is required")
	}

	user := middleware.CurrentUser(c)
	report, err := ec.accounts.Test(c.UserContext(), user.ID, email)
	if err != nil {
		return handleServiceError(c, err, "test_email_account_failed", emailAccountNotFound)
	}

	ec.logger.Printf("Tested email account of user %d: smtp=%t imap=%t", user.ID, report.SMTP.Success, report.IMAP.Success)
	return c.JSON(fiber.Map{
		"message": "Connection test completed",
		"results": report,
	})
}

func emailParam(c *fiber.Ctx) (string, bool) {
	raw := c.Params("email_id")
	email, err := url.PathUnescape(raw)
	if err != nil {
		email = raw
	}
	email = strings.TrimSpace(email)
	return email, email != ""
}
