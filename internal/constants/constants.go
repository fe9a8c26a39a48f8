package constants

// 码状态常量（严格有序的生命周期）
const (
	CodeStatusIssued   = "issued"
	CodeStatusBound    = "bound"
	CodeStatusActive   = "active"
	CodeStatusInStock  = "in_stock"
	CodeStatusShipped  = "shipped"
	CodeStatusSold     = "sold"
	CodeStatusReturned = "returned"
	CodeStatusRetired  = "retired"
	CodeStatusVoid     = "void"
)

// 设备状态常量
const (
	DeviceStatusUnbound  = "unbound"
	DeviceStatusBound    = "bound"
	DeviceStatusActive   = "active"
	DeviceStatusInStock  = "in_stock"
	DeviceStatusShipped  = "shipped"
	DeviceStatusSold     = "sold"
	DeviceStatusReturned = "returned"
	DeviceStatusRetired  = "retired"
)

// 校验模式常量
const (
	VerificationModeQR       = "qr"
	VerificationModeQRPUF    = "qr_puf"
	VerificationModeQRNFC    = "qr_nfc"
	VerificationModeQRPUFNFC = "qr_puf_nfc"
	VerificationModePUFNFC   = "puf_nfc"
)

// 商品类型与状态常量
const (
	ProductTypeStandard  = "standard"
	ProductTypeComposite = "composite"

	ProductStatusActive   = "active"
	ProductStatusArchived = "archived"
)

// 批量状态变更目标常量
const (
	StatusTargetCode   = "code"
	StatusTargetDevice = "device"
	StatusTargetBoth   = "both"
)

// 状态历史主体类型常量
const (
	HistorySubjectCode   = "code"
	HistorySubjectDevice = "device"
)

// 后台任务状态常量
const (
	BulkJobStatusQueued    = "queued"
	BulkJobStatusRunning   = "running"
	BulkJobStatusCanceling = "canceling"
	BulkJobStatusCanceled  = "canceled"
	BulkJobStatusCompleted = "completed"
	BulkJobStatusFailed    = "failed"
)

// 后台任务类型常量
const (
	BulkJobKindStatus = "bulk_status"
)

// 行级错误码常量
const (
	RowErrorNotAllowed           = "not_allowed"
	RowErrorInvalidDeviceUID     = "invalid_device_uid"
	RowErrorInvalidNFCUID        = "invalid_nfc_uid"
	RowErrorInvalidPUF           = "invalid_puf_fingerprint"
	RowErrorDuplicateNFCUID      = "duplicate_nfc_uid"
	RowErrorCodeNotFound         = "code_not_found"
	RowErrorCodeAlreadyBound     = "code_already_bound"
	RowErrorCodeExpired          = "code_expired"
	RowErrorCodeAlreadyLinked    = "code_already_linked"
	RowErrorDeviceAlreadyHasCode = "device_already_has_code"
	RowErrorCodeProductMismatch  = "code_product_mismatch"
	RowErrorNoCodeAvailable      = "no_code_available"
	RowErrorMissingAttributes    = "missing_required_attributes"
	RowErrorParentNotFound       = "parent_device_not_found"
	RowErrorAssemblyConflict     = "assembly_conflict"
	RowErrorDeviceNotLinked      = "device_not_linked"
	RowErrorInternal             = "internal_error"
)

// 队列与任务常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"

	TaskBulkStatusApply = "bulk_status:apply"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "qr"
)

// 批次号前缀
const (
	BatchNoPrefix = "BATCH"
)

// 密钥派生用途标签
const (
	KeyPurposeMicro     = "micro"
	KeyPurposeWatermark = "watermark"
	KeyPurposeNFC       = "nfc"
)

// 默认处理参数
const (
	DefaultBulkChunkSize   = 500
	DefaultMintRetryLimit  = 5
	DefaultTokenBytes      = 16
	DefaultDerivationBytes = 16
)
