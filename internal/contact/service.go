package contact

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vaani-voice/backend/internal/models"
)

// ValidationError reports the first invalid field of a submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// messages maps field + failed rule to the text shown to the visitor.
var messages = map[string]map[string]string{
	"name":        {"required": "Name is required"},
	"email":       {"required": "Email is required", "email": "Invalid email address"},
	"companyName": {"required": "Company name is required"},
}

// Dispatcher forwards a stored lead to downstream automation. It must not block.
type Dispatcher interface {
	Dispatch(lead models.ContactLead)
}

// Service validates, stores and forwards contact submissions.
type Service struct {
	store      Store
	dispatcher Dispatcher
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewService creates a contact service. dispatcher may be nil.
func NewService(store Store, dispatcher Dispatcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{store: store, dispatcher: dispatcher, validate: v, logger: logger}
}

// Submit validates the input, stores it and dispatches it for forwarding.
// On validation failure nothing is stored and a *ValidationError is returned.
func (s *Service) Submit(ctx context.Context, in models.ContactInput) (*models.ContactLead, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	lead, err := s.store.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("store contact lead: %w", err)
	}
	s.logger.Info("contact lead stored", zap.Int64("lead_id", lead.ID))
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(*lead)
	}
	return lead, nil
}

func (s *Service) check(in models.ContactInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: "Invalid request"}
	}
	// ValidationErrors follow struct field order: name, email, companyName.
	first := verrs[0]
	msg, ok := messages[first.Field()][first.Tag()]
	if !ok {
		msg = "Invalid value"
	}
	return &ValidationError{Field: first.Field(), Message: msg}
}
