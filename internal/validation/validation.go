// Package validation checks normalized contests and solution links before
// they reach the store.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
)

var youtubeURLRegex = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("youtube_url", func(fl validator.FieldLevel) bool {
		return IsYouTubeURL(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Contest validates a normalized contest record.
func (v *Validator) Contest(c *models.Contest) error {
	if c == nil {
		return errors.New("contest is nil")
	}
	return describe(v.validate.Struct(c))
}

// VideoLink validates a solution link.
func (v *Validator) VideoLink(link models.VideoLink) error {
	return describe(v.validate.Struct(link))
}

// Struct validates any tagged struct, such as a raw upstream record.
func (v *Validator) Struct(s any) error {
	return describe(v.validate.Struct(s))
}

func IsYouTubeURL(s string) bool {
	return youtubeURLRegex.MatchString(s)
}

// describe flattens validator errors into one readable error.
func describe(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}

	structName, _, _ := strings.Cut(verrs[0].StructNamespace(), ".")
	return fmt.Errorf("invalid %s: %s", strings.ToLower(structName), strings.Join(parts, "; "))
}
