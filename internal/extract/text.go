package extract

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

type plainText struct{}

// Extract decodes UTF-8, dropping a leading byte order mark.
func (plainText) Extract(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", ErrInvalidText
	}
	decoded, err := unicode.UTF8BOM.NewDecoder().Bytes(content)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
