package usecase

import (
	"regexp"
	"strings"
	"unicode"
)

var dataURLPattern = regexp.MustCompile(`^data:[A-Za-z0-9.+-]+/[A-Za-z0-9.+-]+(;[A-Za-z0-9=.+-]+)*;base64,`)

// isDataURL распознаёт вложение, закодированное прямо в тексте сообщения
func isDataURL(s string) bool {
	return dataURLPattern.MatchString(s)
}

// sanitizeText удаляет управляющие символы, сохраняя переводы строк
func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
}
