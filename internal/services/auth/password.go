// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	"embed"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords map[string]struct{}

func init() {
	commonPasswords = make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		password := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if password != "" && !strings.HasPrefix(password, "#") {
			commonPasswords[password] = struct{}{}
		}
	}
}

// Violation codes. Each maps to the translation key "password_<code>".
const (
	CodeMinLength       = "min_length"
	CodeEntirelyNumeric = "entirely_numeric"
	CodeCommonPassword  = "common_password"
	CodeTooSimilar      = "too_similar"
	CodeNoUppercase     = "no_uppercase"
	CodeNoLowercase     = "no_lowercase"
	CodeNoDigit         = "no_digit"
	CodeNoSpecial       = "no_special"
)

// DefaultMinLength is the shortest accepted password.
const DefaultMinLength = 8

// maxSimilarity is the ratio above which a password counts as derived from a user attribute.
const maxSimilarity = 0.7

var attributeSeparator = regexp.MustCompile(`\W+`)

// PasswordPolicy validates passwords against various criteria.
type PasswordPolicy struct {
	MinLength            int
	RequireUppercase     bool
	RequireLowercase     bool
	RequireDigit         bool
	RequireSpecial       bool
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
}

// DefaultPasswordPolicy returns the account password rules.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:            DefaultMinLength,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
	}
}

// Violation is a single broken rule.
type Violation struct {
	Code   string
	Params map[string]any
}

// PasswordValidationError lists every rule a password broke.
type PasswordValidationError struct {
	Violations []Violation
}

func (e *PasswordValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "password validation failed"
	}
	return "password validation failed: " + strings.Join(e.Codes(), ", ")
}

// Codes returns the violation codes in check order.
func (e *PasswordValidationError) Codes() []string {
	codes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		codes[i] = v.Code
	}
	return codes
}

// Check returns a *PasswordValidationError when password breaks a rule, nil otherwise.
// userAttributes are compared against the password for similarity.
func (p *PasswordPolicy) Check(password string, userAttributes ...string) error {
	var violations []Violation
	add := func(code string, params map[string]any) {
		violations = append(violations, Violation{Code: code, Params: params})
	}

	if utf8.RuneCountInString(password) < p.MinLength {
		add(CodeMinLength, map[string]any{"MinLength": p.MinLength})
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if p.RequireUppercase && !hasUpper {
		add(CodeNoUppercase, nil)
	}
	if p.RequireLowercase && !hasLower {
		add(CodeNoLowercase, nil)
	}
	if p.RequireDigit && !hasDigit {
		add(CodeNoDigit, nil)
	}
	if p.RequireSpecial && !hasSpecial {
		add(CodeNoSpecial, nil)
	}

	if isEntirelyNumeric(password) {
		add(CodeEntirelyNumeric, nil)
	}
	if p.CheckCommonPasswords && isCommonPassword(password) {
		add(CodeCommonPassword, nil)
	}
	if p.CheckUserSimilarity && isSimilarToUserAttributes(password, userAttributes) {
		add(CodeTooSimilar, nil)
	}

	if len(violations) == 0 {
		return nil
	}
	return &PasswordValidationError{Violations: violations}
}

func isEntirelyNumeric(password string) bool {
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return password != ""
}

func isCommonPassword(password string) bool {
	_, exists := commonPasswords[strings.ToLower(strings.TrimSpace(password))]
	return exists
}

// isSimilarToUserAttributes compares the password with each attribute and
// with every word of it, so "ana.perez@example.com" also checks "perez".
func isSimilarToUserAttributes(password string, attributes []string) bool {
	pw := strings.ToLower(password)
	if pw == "" {
		return false
	}

	for _, attr := range attributes {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		parts := append([]string{attr}, attributeSeparator.Split(attr, -1)...)
		for _, part := range parts {
			if len(part) < 3 {
				continue
			}
			if len(part) >= 4 && strings.Contains(pw, part) {
				return true
			}
			if similarity(pw, part) >= maxSimilarity {
				return true
			}
		}
	}
	return false
}

// similarity is 2*LCS / (len(a)+len(b)), in [0, 1].
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if a == b {
		return 1
	}
	return 2 * float64(longestCommonSubsequence(ra, rb)) / float64(len(ra)+len(rb))
}

func longestCommonSubsequence(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
