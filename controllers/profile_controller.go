package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"

	"mailconnect/middleware"
	"mailconnect/services"
	"mailconnect/utils"
)

// UpdateProfileRequest is a partial update; absent fields stay unchanged
// and null clears company_name, phone_number and email_signature.
// Read-only fields such as id, email and timestamps are ignored.
type UpdateProfileRequest struct {
	FirstName      *string         `json:"first_name" validate:"omitempty,max=150"`
	LastName       *string         `json:"last_name" validate:"omitempty,max=150"`
	CompanyName    *string         `json:"company_name" validate:"omitempty,max=255"`
	PhoneNumber    *string         `json:"phone_number" validate:"omitempty,max=20"`
	EmailSignature *string         `json:"email_signature"`
	EmailAccounts  json.RawMessage `json:"email_accounts"`
}

// EmailAccountEntry is one value of the email_accounts mapping.
type EmailAccountEntry struct {
	Provider   string  `json:"provider" validate:"required,max=50"`
	SMTPServer string  `json:"smtp_server" validate:"required,max=255"`
	SMTPPort   int     `json:"smtp_port" validate:"required,min=1,max=65535"`
	IMAPServer string  `json:"imap_server" validate:"required,max=255"`
	IMAPPort   int     `json:"imap_port" validate:"required,min=1,max=65535"`
	UseTLS     *bool   `json:"use_tls"`
	Password   *string `json:"password"`
}

type ProfileController struct {
	profiles *services.ProfileService
	logger   *log.Logger
}

func NewProfileController(profiles *services.ProfileService, logger *log.Logger) *ProfileController {
	return &ProfileController{
		profiles: profiles,
		logger:   logger,
	}
}

func (pc *ProfileController) GetProfile(c *fiber.Ctx) error {
	profile, err := pc.profiles.Get(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return handleServiceError(c, err, "get_profile_failed", "Profile not found")
	}
	return c.JSON(profile)
}

// UpdateProfile handles PUT and PATCH /profile/.
func (pc *ProfileController) UpdateProfile(c *fiber.Ctx) error {
	var req UpdateProfileRequest
	if errs := parseBody(c, &req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}
	errs := utils.ValidateStruct(req)
	if errs == nil {
		errs = utils.FieldErrors{}
	}

	var sent map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &sent); err != nil {
		errs.Add("non_field_errors", "Invalid request body")
		return utils.ValidationErrorResponse(c, errs)
	}
	for _, field := range []string{"first_name", "last_name"} {
		if isNull(sent, field) {
			errs.Add(field, "This field may not be null.")
		}
	}

	in := services.UpdateProfileInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		CompanyName:    nullable(sent, "company_name", req.CompanyName),
		PhoneNumber:    nullable(sent, "phone_number", req.PhoneNumber),
		EmailSignature: nullable(sent, "email_signature", req.EmailSignature),
	}
	if len(req.EmailAccounts) > 0 {
		in.ReplaceAccounts = true
		in.EmailAccounts = decodeEmailAccounts(req.EmailAccounts, errs)
	}
	if len(errs) > 0 {
		return utils.ValidationErrorResponse(c, errs)
	}

	user := middleware.CurrentUser(c)
	profile, err := pc.profiles.Update(c.UserContext(), user, in)
	if err != nil {
		return handleServiceError(c, err, "update_profile_failed", "Profile not found")
	}

	pc.logger.Printf("Updated profile of user %d", user.ID)
	return c.JSON(profile)
}

// GetUserData handles GET /user/.
func (pc *ProfileController) GetUserData(c *fiber.Ctx) error {
	data, err := pc.profiles.GetUserData(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return handleServiceError(c, err, "get_user_data_failed", "Profile not found")
	}
	return c.JSON(data)
}

func nullable(sent map[string]json.RawMessage, field string, value *string) services.NullableString {
	_, ok := sent[field]
	return services.NullableString{Set: ok, Value: value}
}

func isNull(sent map[string]json.RawMessage, field string) bool {
	raw, ok := sent[field]
	return ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeEmailAccounts validates a replacement mapping. null decodes to an
// empty mapping. Problems are added to errs under email_accounts.
func decodeEmailAccounts(raw json.RawMessage, errs utils.FieldErrors) map[string]services.EmailAccountConfig {
	var entries map[string]EmailAccountEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		errs.Add("email_accounts", "Expected a mapping of email address to account settings.")
		return nil
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]services.EmailAccountConfig, len(entries))
	for _, key := range keys {
		entry := entries[key]
		if err := checkmail.ValidateFormat(key); err != nil {
			errs.Add("email_accounts", fmt.Sprintf("%s: Enter a valid email address.", key))
			continue
		}
		if entryErrs := utils.ValidateStruct(entry); entryErrs != nil {
			fields := make([]string, 0, len(entryErrs))
			for field := range entryErrs {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			for _, field := range fields {
				for _, msg := range entryErrs[field] {
					errs.Add("email_accounts", fmt.Sprintf("%s: %s: %s", key, field, msg))
				}
			}
			continue
		}
		out[key] = services.EmailAccountConfig{
			Provider:   entry.Provider,
			SMTPServer: entry.SMTPServer,
			SMTPPort:   entry.SMTPPort,
			IMAPServer: entry.IMAPServer,
			IMAPPort:   entry.IMAPPort,
			UseTLS:     entry.UseTLS,
			Password:   entry.Password,
		}
	}
	return out
}
