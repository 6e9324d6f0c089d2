package graph

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/John-Robertt/albumdl/internal/catalog"
)

// ErrInvalidShareURL 表示 ref 不是受支持的分享链接。
var ErrInvalidShareURL = errors.New("不是受支持的分享链接")

// ValidateShareURL 要求 http(s) 且域名属于 catalog.ShareHosts。
func ValidateShareURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w：%v", ErrInvalidShareURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w：scheme 必须是 http/https：%q", ErrInvalidShareURL, raw)
	}
	if !catalog.IsShareHost(u.Hostname()) {
		return fmt.Errorf("%w：域名 %q 不在 %v 中", ErrInvalidShareURL, u.Hostname(), catalog.ShareHosts)
	}
	return nil
}

// EncodeSharingURL 按 shares API 的约定编码分享链接："u!" + base64url（无 padding）。
func EncodeSharingURL(raw string) string {
	return "u!" + base64.RawURLEncoding.EncodeToString([]byte(strings.TrimSpace(raw)))
}
