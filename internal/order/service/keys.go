package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

func randomHex() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")), nil
}

// NewOrderNumber: ORD-20260115093012-4F1A9C2E. Уникальность гарантирует индекс,
// при коллизии оформление берёт следующий номер.
func NewOrderNumber(now time.Time) (string, error) {
	raw, err := randomHex()
	if err != nil {
		return "", err
	}
	return "ORD-" + now.UTC().Format("20060102150405") + "-" + raw[:8], nil
}

// NewLicenseKey: четыре группы по восемь hex-символов.
func NewLicenseKey() (string, error) {
	raw, err := randomHex()
	if err != nil {
		return "", err
	}
	groups := make([]string, 0, 4)
	for i := 0; i < len(raw); i += 8 {
		groups = append(groups, raw[i:i+8])
	}
	return strings.Join(groups, "-"), nil
}
