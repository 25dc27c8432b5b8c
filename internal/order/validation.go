package order

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"ms-tickets/internal/models"

	"github.com/go-playground/validator/v10"
)

var ErrValidation = errors.New("validation failed")

// ValidationError carries one message per offending JSON field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "invalid order: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

var kenyanMobile = regexp.MustCompile(`^254[17]\d{8}$`)

// NormalizePhone accepts 07XXXXXXXX, 01XXXXXXXX, 2547XXXXXXXX, 2541XXXXXXXX
// and +254 forms, ignoring spaces and dashes, and returns the 254XXXXXXXXX
// MSISDN the gateway expects.
func NormalizePhone(raw string) (string, bool) {
	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	phone = strings.TrimPrefix(phone, "+")

	if strings.HasPrefix(phone, "0") && len(phone) == 10 {
		phone = "254" + phone[1:]
	}
	if !kenyanMobile.MatchString(phone) {
		return "", false
	}
	return phone, true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("kephone", func(fl validator.FieldLevel) bool {
		_, ok := NormalizePhone(fl.Field().String())
		return ok
	})
	return v
}

// normalizeRequest trims and validates req, then resolves the ticket type and
// phone against settings. The returned request is safe to persist.
func (s *OrderService) normalizeRequest(req models.OrderRequest) (models.OrderRequest, error) {
	req.FullName = strings.Join(strings.Fields(req.FullName), " ")
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.TicketType = strings.ToLower(strings.TrimSpace(req.TicketType))

	fields := map[string]string{}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return req, err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}

	if req.TicketType == "" {
		req.TicketType = s.Settings.DefaultType
	}
	if _, ok := s.Settings.Prices[req.TicketType]; !ok {
		fields["ticketType"] = fmt.Sprintf("must be one of %s", strings.Join(s.ticketTypes(), ", "))
	}
	if s.Settings.MaxPerOrder > 0 && req.Quantity > s.Settings.MaxPerOrder {
		fields["quantity"] = fmt.Sprintf("must be at most %d", s.Settings.MaxPerOrder)
	}

	if len(fields) > 0 {
		return req, &ValidationError{Fields: fields}
	}

	req.Phone, _ = NormalizePhone(req.Phone)
	return req, nil
}

func (s *OrderService) ticketTypes() []string {
	types := make([]string, 0, len(s.Settings.Prices))
	for t := range s.Settings.Prices {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "kephone":
		return "must be a valid Kenyan mobile number, e.g. 0712345678"
	case "min":
		if fe.Kind() == reflect.Int {
			return "must be at least " + fe.Param()
		}
		return "must be at least " + fe.Param() + " characters"
	case "max":
		if fe.Kind() == reflect.Int {
			return "must be at most " + fe.Param()
		}
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
