package service

import (
	"strings"

	"github.com/qr-backend/internal/constants"
)

// 码生命周期顺序；retired 与 void 同级
var codeStatusOrder = map[string]int{
	constants.CodeStatusIssued:   0,
	constants.CodeStatusBound:    1,
	constants.CodeStatusActive:   2,
	constants.CodeStatusInStock:  3,
	constants.CodeStatusShipped:  4,
	constants.CodeStatusSold:     5,
	constants.CodeStatusReturned: 6,
	constants.CodeStatusRetired:  7,
	constants.CodeStatusVoid:     7,
}

// 设备生命周期顺序
var deviceStatusOrder = map[string]int{
	constants.DeviceStatusUnbound:  0,
	constants.DeviceStatusBound:    1,
	constants.DeviceStatusActive:   2,
	constants.DeviceStatusInStock:  3,
	constants.DeviceStatusShipped:  4,
	constants.DeviceStatusSold:     5,
	constants.DeviceStatusReturned: 6,
	constants.DeviceStatusRetired:  7,
}

var verificationModes = map[string]struct{}{
	constants.VerificationModeQR:       {},
	constants.VerificationModeQRPUF:    {},
	constants.VerificationModeQRNFC:    {},
	constants.VerificationModeQRPUFNFC: {},
	constants.VerificationModePUFNFC:   {},
}

// IsCodeStatus 判断是否为合法码状态
func IsCodeStatus(status string) bool {
	_, ok := codeStatusOrder[status]
	return ok
}

// IsDeviceStatus 判断是否为合法设备状态
func IsDeviceStatus(status string) bool {
	_, ok := deviceStatusOrder[status]
	return ok
}

// CodeTransitionAllowed 码状态只能前进或保持
func CodeTransitionAllowed(current, next string) bool {
	cur, ok := codeStatusOrder[current]
	if !ok {
		return false
	}
	nxt, ok := codeStatusOrder[next]
	if !ok {
		return false
	}
	return nxt >= cur
}

// DeviceTransitionAllowed 设备状态只能前进或保持
func DeviceTransitionAllowed(current, next string) bool {
	cur, ok := deviceStatusOrder[current]
	if !ok {
		return false
	}
	nxt, ok := deviceStatusOrder[next]
	if !ok {
		return false
	}
	return nxt >= cur
}

// DeviceStatusForCode 码状态映射到设备状态
func DeviceStatusForCode(codeStatus string) string {
	switch codeStatus {
	case constants.CodeStatusIssued:
		return constants.DeviceStatusUnbound
	case constants.CodeStatusRetired, constants.CodeStatusVoid:
		return constants.DeviceStatusRetired
	case "":
		return ""
	}
	if IsDeviceStatus(codeStatus) {
		return codeStatus
	}
	return ""
}

// normalizeVerificationMode 校验模式归一化，空值默认为 qr
func normalizeVerificationMode(mode string) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return constants.VerificationModeQR, nil
	}
	if _, ok := verificationModes[mode]; !ok {
		return "", ErrInvalidVerification
	}
	return mode, nil
}

// modeRequiresNFC 校验模式是否包含 NFC
func modeRequiresNFC(mode string) bool {
	return strings.Contains(mode, "nfc")
}

// modeRequiresPUF 校验模式是否包含 PUF
func modeRequiresPUF(mode string) bool {
	return strings.Contains(mode, "puf")
}
