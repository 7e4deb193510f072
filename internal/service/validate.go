package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"medvault-records/internal/domain"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	licensePattern  = regexp.MustCompile(`^[A-Z]{2,3}\d{4,6}$`)
)

const (
	passwordMinLen = 8
	passwordMaxLen = 64
)

// validateUsername 用户名：3-20 位字母/数字/下划线
func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username must be 3-20 characters (letters, digits, underscore): %w", domain.ErrValidation)
	}
	return nil
}

// validateLicenseNumber 执照号：2-3 位大写字母 + 4-6 位数字
func validateLicenseNumber(license string) error {
	if !licensePattern.MatchString(license) {
		return fmt.Errorf("license number must match 2-3 uppercase letters followed by 4-6 digits: %w", domain.ErrValidation)
	}
	return nil
}

// validateFullName 姓名非空
func validateFullName(fullName string) error {
	if strings.TrimSpace(fullName) == "" {
		return fmt.Errorf("full name is required: %w", domain.ErrValidation)
	}
	return nil
}

// validatePassword 密码策略：8-64 位，且同时包含小写、大写、数字、特殊字符
// Go 的 regexp 不支持前瞻断言，这里对各字符类逐一扫描
func validatePassword(password string) error {
	if len(password) < passwordMinLen || len(password) > passwordMaxLen {
		return fmt.Errorf("password must be %d-%d characters: %w", passwordMinLen, passwordMaxLen, domain.ErrValidation)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasLower || !hasUpper || !hasDigit || !hasSpecial {
		return fmt.Errorf("password must contain lowercase, uppercase, digit and special characters: %w", domain.ErrValidation)
	}
	return nil
}
