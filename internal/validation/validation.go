// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"strings"
	"unicode"
)

// MinPasswordLength задаёт минимальную длину пароля при регистрации.
const MinPasswordLength = 6

// ClampQuantity приводит запрошенное количество к допустимому: не меньше 1.
func ClampQuantity(quantity int) int {
	if quantity < 1 {
		return 1
	}
	return quantity
}

// IsValidEmail проверяет, что строка похожа на одиночный адрес электронной почты.
func IsValidEmail(email string) bool {
	if email == "" || strings.TrimSpace(email) != email {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}

	at := strings.LastIndex(email, "@")
	return strings.Contains(email[at+1:], ".")
}

// IsValidPassword проверяет длину пароля и отсутствие пробельных символов.
func IsValidPassword(password string) bool {
	if len([]rune(password)) < MinPasswordLength {
		return false
	}

	for _, ch := range password {
		if unicode.IsSpace(ch) || unicode.IsControl(ch) {
			return false
		}
	}

	return true
}
