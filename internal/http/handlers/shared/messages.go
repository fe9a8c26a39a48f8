package shared

// messages 错误键到提示文案的映射
var messages = map[string]string{
	"error.bad_request":             "invalid request",
	"error.unauthorized":            "unauthorized",
	"error.token_invalid":           "token is invalid or expired",
	"error.tenant_id_invalid":       "tenant id is invalid",
	"error.tenant_id_type_invalid":  "tenant id has an unexpected type",
	"error.actor_missing":           "actor is missing from token",
	"error.too_many_requests":       "too many requests, please retry later",
	"error.rate_limited":            "too many requests, retry after %d seconds",
	"error.rate_limit_unavailable":  "rate limiter unavailable",
	"error.auth_header_missing":     "authorization header is missing",
	"error.auth_header_invalid":     "authorization header must be a bearer token",
	"error.jwt_secret_missing":      "token verification is not configured",
	"error.internal":                "internal error",
	"error.not_found":               "resource not found",
	"error.product_not_found":       "product not found",
	"error.batch_not_found":         "batch not found",
	"error.channel_not_found":       "channel not found",
	"error.print_run_not_found":     "print run not found",
	"error.code_not_found":          "code not found",
	"error.job_not_found":           "bulk job not found",
	"error.device_not_found":        "device not found",
	"error.sku_exists":              "sku already exists",
	"error.sku_required":            "sku is required",
	"error.product_invalid":         "product is invalid",
	"error.bom_cycle":               "bom edge would create a cycle",
	"error.bom_self_edge":           "bom edge cannot reference itself",
	"error.bom_overflow":            "bom requirement exceeds supported quantity",
	"error.bom_quantity_invalid":    "bom quantity must be positive",
	"error.quantity_invalid":        "quantity must be positive",
	"error.verification_invalid":    "verification mode is invalid",
	"error.quota_exceeded":          "code quota exceeded",
	"error.token_exhausted":         "unable to mint a unique token",
	"error.code_pool_insufficient":  "insufficient code pool",
	"error.code_pool_mismatch":      "code pool does not match product",
	"error.code_already_assembled":  "code already assembled under a parent",
	"error.code_already_bound":      "code already bound",
	"error.code_already_linked":     "code already linked to a device",
	"error.device_already_has_code": "device already has a code",
	"error.product_unresolved":      "product could not be resolved for this code",
	"error.missing_attributes":      "missing required attributes",
	"error.unknown_sku":             "unknown sku",
	"error.device_uid_required":     "device uid is required",
	"error.code_product_mismatch":   "code belongs to another product",
	"error.code_expired":            "code expired",
	"error.no_code_available":       "no issued code available",
	"error.nfc_uid_invalid":         "nfc uid is invalid",
	"error.puf_invalid":             "puf fingerprint is invalid",
	"error.nfc_uid_duplicate":       "nfc uid is already in use",
	"error.csv_invalid":             "csv file is invalid",
	"error.csv_file_required":       "csv file is required",
	"error.status_not_allowed":      "status transition not allowed",
	"error.status_invalid":          "status is invalid",
	"error.status_target_invalid":   "status target is invalid",
	"error.status_selector_empty":   "status selector is empty",
	"error.job_finished":            "bulk job already finished",
	"error.argument_invalid":        "invalid argument",
}

// Message 返回错误键对应的提示文案，未登记时原样返回键
func Message(key string) string {
	if msg, ok := messages[key]; ok {
		return msg
	}
	return key
}
