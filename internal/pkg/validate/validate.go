package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-otp-auth/internal/domain"
	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New(validator.WithRequiredStructEnabled())

// bcryptMaxBytes is the longest input bcrypt accepts. validator's max counts
// runes, so byte length needs its own rule.
const bcryptMaxBytes = 72

var (
	otpCodeRe = regexp.MustCompile(`^[0-9]{6}$`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	upperRe   = regexp.MustCompile(`[A-Z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[!@#$%^&*]`)
)

func init() {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("otpcode", func(fl validator.FieldLevel) bool {
		return otpCodeRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return lowerRe.MatchString(s) && upperRe.MatchString(s) && digitRe.MatchString(s) && specialRe.MatchString(s)
	})
	_ = v.RegisterValidation("bcryptmax", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= bcryptMaxBytes
	})
	_ = v.RegisterValidation("purpose", func(fl validator.FieldLevel) bool {
		return domain.Purpose(fl.Field().String()).Valid()
	})
}

// Violation is one failed constraint on one field.
type Violation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (vi Violation) String() string {
	return fmt.Sprintf("field '%s' failed '%s'", vi.Field, vi.Rule)
}

// Error lists every violated constraint of a request.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, vi := range e.Violations {
		msgs[i] = vi.String()
	}
	return strings.Join(msgs, "; ")
}

func (e *Error) Unwrap() error { return domain.ErrValidation }

// Struct validates the given struct using its validate tags.
// Returns a *Error listing violations, or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		out := &Error{Violations: make([]Violation, 0, len(ve))}
		for _, fe := range ve {
			out.Violations = append(out.Violations, Violation{Field: fe.Field(), Rule: fe.Tag()})
		}
		return out
	}
	return nil
}
