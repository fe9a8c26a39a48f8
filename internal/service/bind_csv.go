package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// 已知列，其余列作为设备属性
var bindCSVColumns = map[string]struct{}{
	"device_uid":           {},
	"sku":                  {},
	"parent_device_uid":    {},
	"token":                {},
	"nfc_uid":              {},
	"nfc_key_ref":          {},
	"puf_id":               {},
	"puf_fingerprint_hash": {},
	"puf_alg":              {},
	"puf_score_threshold":  {},
}

// ParseBindCSV 解析批量绑定 CSV：首行为表头，空行跳过，Row 为文件行号
func ParseBindCSV(reader io.Reader) ([]BulkBindRow, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	var (
		header []string
		rows   []BulkBindRow
	)
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		line, _ := csvReader.FieldPos(0)
		if isBlankRecord(record) {
			continue
		}
		if header == nil {
			header = normalizeCSVHeader(record)
			if !containsString(header, "device_uid") {
				return nil, fmt.Errorf("%w: missing device_uid column", ErrInvalidCSV)
			}
			continue
		}
		rows = append(rows, bindRowFromRecord(header, record, line))
	}
	if header == nil {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidCSV)
	}
	return rows, nil
}

func normalizeCSVHeader(record []string) []string {
	header := make([]string, len(record))
	for i, col := range record {
		col = strings.TrimPrefix(col, "\ufeff")
		header[i] = strings.ToLower(strings.TrimSpace(col))
	}
	return header
}

func bindRowFromRecord(header, record []string, line int) BulkBindRow {
	row := BulkBindRow{Row: line}
	for i, key := range header {
		if i >= len(record) || key == "" {
			continue
		}
		value := strings.TrimSpace(record[i])
		switch key {
		case "device_uid":
			row.DeviceUID = value
		case "sku":
			row.SKU = value
		case "parent_device_uid":
			row.ParentDeviceUID = value
		case "token":
			row.Token = value
		case "nfc_uid":
			row.NFCUID = value
		case "nfc_key_ref":
			row.NFCKeyRef = value
		case "puf_id":
			row.PUFID = value
		case "puf_fingerprint_hash":
			row.PUFFingerprintHash = value
		case "puf_alg":
			row.PUFAlg = value
		case "puf_score_threshold":
			row.PUFScoreThreshold = value
		}
		if _, known := bindCSVColumns[key]; known || value == "" {
			continue
		}
		if row.Attrs == nil {
			row.Attrs = make(map[string]interface{})
		}
		row.Attrs[key] = value
	}
	return row
}

func isBlankRecord(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
