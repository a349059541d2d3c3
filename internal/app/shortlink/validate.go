package shortlink

import (
	"errors"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

var (
	ErrInvalidURL  = errors.New("invalid url")
	ErrInvalidCode = errors.New("invalid code")
)

// ValidateURL 只接受带 host 的 http/https 链接
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Hostname() == "" {
		return ErrInvalidURL
	}
	return nil
}

var codeRe = regexp.MustCompile(`^[A-Za-z0-9]{3,32}$`)

// 与根路由下的固定路径冲突的短码
var reservedCodes = map[string]struct{}{
	"api":     {},
	"healthz": {},
	"metrics": {},
}

func reservedWords() []string {
	words := make([]string, 0, len(reservedCodes))
	for w := range reservedCodes {
		words = append(words, w)
	}
	slices.Sort(words)
	return words
}

// ValidateCode 校验自定义短码：字母数字 3~32 位，且不占用保留路径（大小写不敏感）
func ValidateCode(code string) error {
	code = strings.TrimSpace(code)
	if !codeRe.MatchString(code) {
		return ErrInvalidCode
	}
	if _, ok := reservedCodes[strings.ToLower(code)]; ok {
		return ErrInvalidCode
	}
	return nil
}
