package utils

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// TableScanURL is the link encoded in a table's QR code.
func TableScanURL(baseURL string, table int) string {
	return fmt.Sprintf("%s/scan?table=%s", strings.TrimRight(baseURL, "/"), url.QueryEscape(fmt.Sprint(table)))
}

// GenerateQRCode returns a PNG of content at size x size pixels.
func GenerateQRCode(content string, size int) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, size)
}
