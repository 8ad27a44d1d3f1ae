package companionsdk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const requiredReason = "required"

var (
	reEmail    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	reNickname = regexp.MustCompile(`^[가-힣A-Za-z0-9_]+$`)
	rePhone    = regexp.MustCompile(`^01[016789]-?\d{3,4}-?\d{4}$`)

	rePwLetter  = regexp.MustCompile(`[A-Za-z]`)
	rePwDigit   = regexp.MustCompile(`\d`)
	rePwSpecial = regexp.MustCompile(`[^A-Za-z\d]`)
)

// Validate runs the same checks the sign-up form does. It returns field
// names mapped to messages, or nil when the request is valid.
func (r SignUpRequest) Validate() map[string]string {
	errs := make(map[string]string)

	validateEmail(errs, r.Email)
	validatePassword(errs, r.Password)
	validateNickname(errs, r.Nickname)
	validatePhone(errs, r.Phone)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks the fields that are being changed.
func (r UpdateUserRequest) Validate() map[string]string {
	errs := make(map[string]string)

	if r.Nickname != nil {
		validateNickname(errs, *r.Nickname)
	}
	if r.Phone != nil {
		validatePhone(errs, *r.Phone)
	}
	if r.Password != nil {
		validatePassword(errs, *r.Password)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateEmail(errs map[string]string, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		errs["email"] = requiredReason
	case len(email) > 254:
		errs["email"] = "too long (max 254)"
	case !reEmail.MatchString(email):
		errs["email"] = "not a valid email address"
	}
}

func validatePassword(errs map[string]string, pw string) {
	switch {
	case pw == "":
		errs["password"] = requiredReason
	case len(pw) < 8:
		errs["password"] = "too short (min 8)"
	case len(pw) > 20:
		errs["password"] = "too long (max 20)"
	case !rePwLetter.MatchString(pw) || !rePwDigit.MatchString(pw) || !rePwSpecial.MatchString(pw):
		errs["password"] = "must mix letters, digits and symbols"
	}
}

func validateNickname(errs map[string]string, nick string) {
	nick = strings.TrimSpace(nick)
	n := utf8.RuneCountInString(nick)
	switch {
	case nick == "":
		errs["nickname"] = requiredReason
	case n < 2 || n > 10:
		errs["nickname"] = "must be 2-10 characters"
	case !reNickname.MatchString(nick):
		errs["nickname"] = "must only contain letters, digits or _"
	}
}

func validatePhone(errs map[string]string, phone string) {
	phone = strings.TrimSpace(phone)
	switch {
	case phone == "":
		errs["phone"] = requiredReason
	case !rePhone.MatchString(phone):
		errs["phone"] = "not a valid mobile number"
	}
}
