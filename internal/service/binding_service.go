package service

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/metrics"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var hexPattern = regexp.MustCompile(`^[0-9A-Fa-f]+$`)

var nonHexPattern = regexp.MustCompile(`[^0-9A-F]`)

func newRowValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("hexstr", func(fl validator.FieldLevel) bool {
		return hexPattern.MatchString(fl.Field().String())
	})
	return v
}

// BindingService 码与设备绑定服务
type BindingService struct {
	productRepo repository.ProductRepository
	bomRepo     repository.BOMRepository
	codeRepo    repository.CodeRepository
	deviceRepo  repository.DeviceRepository
	historyRepo repository.StatusHistoryRepository
	metrics     *metrics.CoreMetrics
	validate    *validator.Validate
	now         func() time.Time
}

// NewBindingService 创建绑定服务
func NewBindingService(
	productRepo repository.ProductRepository,
	bomRepo repository.BOMRepository,
	codeRepo repository.CodeRepository,
	deviceRepo repository.DeviceRepository,
	historyRepo repository.StatusHistoryRepository,
	coreMetrics *metrics.CoreMetrics,
) *BindingService {
	return &BindingService{
		productRepo: productRepo,
		bomRepo:     bomRepo,
		codeRepo:    codeRepo,
		deviceRepo:  deviceRepo,
		historyRepo: historyRepo,
		metrics:     coreMetrics,
		validate:    newRowValidator(),
		now:         time.Now,
	}
}

// BindDeviceInput 单个绑定输入；ProductID 仅在通用码时作为商品提示
type BindDeviceInput struct {
	TenantID  uint
	Token     string
	DeviceUID string
	ProductID uint
	Attrs     map[string]interface{}
	Actor     string
	Station   string
}

// codeEnrichment 绑定时写入码的 NFC/PUF 字段
type codeEnrichment struct {
	nfcUID            string
	nfcKeyRef         string
	pufID             string
	pufFingerprint    string
	pufAlg            string
	pufScoreThreshold *float64
}

// BindDevice 将码绑定到设备：码必须为 issued，码与设备一一对应
func (s *BindingService) BindDevice(input BindDeviceInput) (*models.Device, error) {
	deviceUID := strings.TrimSpace(input.DeviceUID)
	if deviceUID == "" {
		return nil, ErrDeviceUIDRequired
	}
	token := strings.TrimSpace(input.Token)
	if token == "" {
		return nil, ErrCodeNotFound
	}

	var device *models.Device
	err := s.productRepo.Transaction(func(tx *gorm.DB) error {
		code, err := s.codeRepo.WithTx(tx).GetByTokenHashForUpdate(input.TenantID, HashToken(token))
		if err != nil {
			return err
		}
		if code == nil {
			return ErrCodeNotFound
		}
		productID, err := resolveBindProduct(code, input.ProductID)
		if err != nil {
			return err
		}
		bound, err := s.bindInTx(tx, bindRequest{
			tenantID:  input.TenantID,
			code:      code,
			productID: productID,
			deviceUID: deviceUID,
			attrs:     input.Attrs,
			actor:     input.Actor,
			station:   input.Station,
		})
		if err != nil {
			return err
		}
		device = bound
		return nil
	})
	if err != nil {
		s.metrics.IncBinding(bindResultLabel(err))
		logger.TW(input.TenantID).Warnw("device_bind_failed", "device_uid", deviceUID, "error", err)
		return nil, err
	}
	s.metrics.IncBinding("bound")
	logger.TW(input.TenantID).Infow("device_bound", "device_id", device.ID, "device_uid", deviceUID)
	return device, nil
}

// bindRequest 事务内绑定所需参数
type bindRequest struct {
	tenantID   uint
	code       *models.Code
	productID  uint
	deviceUID  string
	attrs      map[string]interface{}
	actor      string
	station    string
	enrichment *codeEnrichment
}

// resolveBindProduct 商品优先取码自身，通用码取调用方提示
func resolveBindProduct(code *models.Code, hint uint) (uint, error) {
	if code.ProductID != nil {
		if hint != 0 && hint != *code.ProductID {
			return 0, ErrCodeProductMismatch
		}
		return *code.ProductID, nil
	}
	if hint == 0 {
		return 0, ErrProductUnresolved
	}
	return hint, nil
}

// bindInTx 校验属性、upsert 设备、建立一对一链接并推进码与设备状态
func (s *BindingService) bindInTx(tx *gorm.DB, req bindRequest) (*models.Device, error) {
	code := req.code
	now := s.now()
	if code.Status != constants.CodeStatusIssued {
		return nil, ErrCodeAlreadyBound
	}
	if code.IsExpired(now) {
		return nil, ErrCodeExpired
	}

	product, err := s.productRepo.WithTx(tx).GetByID(req.tenantID, req.productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductUnknown
	}
	if missing := missingAttributes(product.AttributeTemplate, req.attrs); len(missing) > 0 {
		return nil, &MissingAttributesError{Keys: missing}
	}

	deviceRepo := s.deviceRepo.WithTx(tx)
	existingLink, err := deviceRepo.GetLinkByCode(req.tenantID, code.ID)
	if err != nil {
		return nil, err
	}
	if existingLink != nil {
		return nil, ErrCodeAlreadyLinked
	}

	device, err := deviceRepo.GetByUIDForUpdate(req.tenantID, product.ID, req.deviceUID)
	if err != nil {
		return nil, err
	}
	created := device == nil
	if created {
		device = &models.Device{
			TenantID:  req.tenantID,
			ProductID: product.ID,
			DeviceUID: req.deviceUID,
			Attrs:     mergeAttrs(nil, req.attrs),
			Status:    constants.DeviceStatusUnbound,
		}
		if err := deviceRepo.Create(device); err != nil {
			return nil, err
		}
	} else {
		link, err := deviceRepo.GetLinkByDevice(req.tenantID, device.ID)
		if err != nil {
			return nil, err
		}
		if link != nil {
			return nil, ErrDeviceAlreadyHasCode
		}
		device.Attrs = mergeAttrs(device.Attrs, req.attrs)
	}

	if req.enrichment != nil {
		if err := s.applyEnrichment(tx, code, req.enrichment); err != nil {
			return nil, err
		}
	}

	link := &models.CodeDeviceLink{
		TenantID: req.tenantID,
		CodeID:   code.ID,
		DeviceID: device.ID,
		Actor:    strings.TrimSpace(req.actor),
		Station:  strings.TrimSpace(req.station),
		BoundAt:  now,
	}
	if err := deviceRepo.CreateLink(link); err != nil {
		switch {
		case repository.UniqueViolationOn(err, "uk_code_device_links_code", "code_device_links.code_id"):
			return nil, ErrCodeAlreadyLinked
		case repository.UniqueViolationOn(err, "uk_code_device_links_device", "code_device_links.device_id"):
			return nil, ErrDeviceAlreadyHasCode
		}
		return nil, err
	}

	histories := []models.StatusHistory{codeHistory(code, constants.CodeStatusBound, "bind", req.actor, "", now)}
	if code.ProductID == nil {
		productID := product.ID
		code.ProductID = &productID
	}
	applyCodeStatus(code, constants.CodeStatusBound, now)
	if err := s.codeRepo.WithTx(tx).Update(code); err != nil {
		if repository.UniqueViolationOn(err, "uk_codes_tenant_nfc_uid", "codes.nfc_uid") {
			return nil, ErrDuplicateNFCUID
		}
		return nil, err
	}

	if device.Status != constants.DeviceStatusBound && DeviceTransitionAllowed(device.Status, constants.DeviceStatusBound) {
		histories = append(histories, deviceHistory(device, constants.DeviceStatusBound, "bind", req.actor, "", now))
		device.Status = constants.DeviceStatusBound
	}
	if err := deviceRepo.Update(device); err != nil {
		return nil, err
	}
	if err := s.historyRepo.WithTx(tx).CreateBatch(histories); err != nil {
		return nil, err
	}
	return device, nil
}

// applyEnrichment 写入 NFC/PUF 字段，NFC UID 租户内唯一
func (s *BindingService) applyEnrichment(tx *gorm.DB, code *models.Code, enrichment *codeEnrichment) error {
	if enrichment.nfcUID != "" {
		exists, err := s.codeRepo.WithTx(tx).ExistsNFCUID(code.TenantID, enrichment.nfcUID, code.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateNFCUID
		}
		uid := enrichment.nfcUID
		code.NFCUID = &uid
	}
	if enrichment.nfcKeyRef != "" {
		code.NFCKeyRef = enrichment.nfcKeyRef
	}
	if enrichment.pufID != "" {
		code.PUFID = enrichment.pufID
	}
	if enrichment.pufFingerprint != "" {
		code.PUFFingerprintHash = enrichment.pufFingerprint
	}
	if enrichment.pufAlg != "" {
		code.PUFAlg = enrichment.pufAlg
	}
	if enrichment.pufScoreThreshold != nil {
		code.PUFScoreThreshold = *enrichment.pufScoreThreshold
	}
	return nil
}

// missingAttributes 返回模板中缺失或为空的全部必填键
func missingAttributes(template models.AttributeTemplate, attrs map[string]interface{}) []string {
	var missing []string
	for _, key := range template.RequiredKeys() {
		value, ok := attrs[key]
		if !ok || value == nil {
			missing = append(missing, key)
			continue
		}
		if text, isText := value.(string); isText && strings.TrimSpace(text) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func mergeAttrs(current models.JSON, incoming map[string]interface{}) models.JSON {
	merged := make(models.JSON, len(current)+len(incoming))
	for key, value := range current {
		merged[key] = value
	}
	for key, value := range incoming {
		merged[key] = value
	}
	return merged
}

func bindResultLabel(err error) string {
	if err == nil {
		return "bound"
	}
	return rowErrorCode(err)
}

// BulkBindRow 批量绑定的一行（CSV 或 JSON）
type BulkBindRow struct {
	Row                int                    `json:"row,omitempty" validate:"-"`
	DeviceUID          string                 `json:"device_uid" validate:"required,max=128"`
	SKU                string                 `json:"sku,omitempty" validate:"omitempty,max=64"`
	ParentDeviceUID    string                 `json:"parent_device_uid,omitempty" validate:"omitempty,max=128"`
	Token              string                 `json:"token,omitempty" validate:"omitempty,max=64"`
	NFCUID             string                 `json:"nfc_uid,omitempty" validate:"omitempty,min=4,max=32,hexstr"`
	NFCKeyRef          string                 `json:"nfc_key_ref,omitempty" validate:"omitempty,max=64"`
	PUFID              string                 `json:"puf_id,omitempty" validate:"omitempty,max=64"`
	PUFFingerprintHash string                 `json:"puf_fingerprint_hash,omitempty" validate:"omitempty,len=64,hexstr"`
	PUFAlg             string                 `json:"puf_alg,omitempty" validate:"omitempty,max=32"`
	PUFScoreThreshold  string                 `json:"puf_score_threshold,omitempty" validate:"omitempty,numeric"`
	Attrs              map[string]interface{} `json:"attrs,omitempty" validate:"-"`
}

// normalize 规整字段：NFC UID 大写并去除非十六进制字符，PUF 指纹小写
func (r BulkBindRow) normalize() BulkBindRow {
	r.DeviceUID = strings.TrimSpace(r.DeviceUID)
	r.SKU = strings.TrimSpace(r.SKU)
	r.ParentDeviceUID = strings.TrimSpace(r.ParentDeviceUID)
	r.Token = strings.TrimSpace(r.Token)
	r.NFCUID = NormalizeNFCUID(r.NFCUID)
	r.NFCKeyRef = strings.TrimSpace(r.NFCKeyRef)
	r.PUFID = strings.TrimSpace(r.PUFID)
	r.PUFFingerprintHash = strings.ToLower(strings.TrimSpace(r.PUFFingerprintHash))
	r.PUFAlg = strings.TrimSpace(r.PUFAlg)
	r.PUFScoreThreshold = strings.TrimSpace(r.PUFScoreThreshold)
	return r
}

func (r BulkBindRow) enrichment() *codeEnrichment {
	enrichment := &codeEnrichment{
		nfcUID:         r.NFCUID,
		nfcKeyRef:      r.NFCKeyRef,
		pufID:          r.PUFID,
		pufFingerprint: r.PUFFingerprintHash,
		pufAlg:         r.PUFAlg,
	}
	if r.PUFScoreThreshold != "" {
		if value, err := strconv.ParseFloat(r.PUFScoreThreshold, 64); err == nil {
			enrichment.pufScoreThreshold = &value
		}
	}
	return enrichment
}

// NormalizeNFCUID 大写并去除分隔符等非十六进制字符
func NormalizeNFCUID(value string) string {
	return nonHexPattern.ReplaceAllString(strings.ToUpper(strings.TrimSpace(value)), "")
}

// BulkBindInput 批量绑定输入
type BulkBindInput struct {
	TenantID      uint
	RootProductID uint
	RootSKU       string
	Rows          []BulkBindRow
	Allocate      bool
	BatchID       uint
	ChannelID     uint
	Actor         string
	Station       string
}

// BulkBindResult 批量绑定结果，Errors 按输入行号排序
type BulkBindResult struct {
	BoundTotal     int            `json:"bound_total"`
	PerSKU         map[string]int `json:"per_sku"`
	AssemblyLinked int            `json:"assembly_linked"`
	Errors         []RowError     `json:"errors"`
}

// boundRow 第一遍成功绑定的行
type boundRow struct {
	row       BulkBindRow
	productID uint
	deviceID  uint
}

// BulkBind 批量绑定：SKU 预检失败整批拒绝，其余行级错误记录后继续
func (s *BindingService) BulkBind(input BulkBindInput) (*BulkBindResult, error) {
	root, err := s.resolveRoot(input)
	if err != nil {
		return nil, err
	}
	rows := make([]BulkBindRow, 0, len(input.Rows))
	for i, row := range input.Rows {
		row = row.normalize()
		if row.Row <= 0 {
			row.Row = i + 1
		}
		rows = append(rows, row)
	}
	productBySKU, err := s.preflightSKUs(input.TenantID, root, rows)
	if err != nil {
		return nil, err
	}

	result := &BulkBindResult{PerSKU: make(map[string]int), Errors: []RowError{}}
	bound := make([]boundRow, 0, len(rows))
	for _, row := range rows {
		sku := root.SKU
		if row.SKU != "" {
			sku = row.SKU
		}
		product := productBySKU[sku]
		if rowErrs := s.validateRow(row); len(rowErrs) > 0 {
			result.Errors = append(result.Errors, rowErrs...)
			s.metrics.IncBinding("invalid")
			continue
		}
		if !input.Allocate && row.Token == "" {
			result.Errors = append(result.Errors, RowError{Row: row.Row, Ref: row.DeviceUID, Field: "token", Code: constants.RowErrorCodeNotFound, Message: "token is required when allocate is false"})
			s.metrics.IncBinding(constants.RowErrorCodeNotFound)
			continue
		}

		device, err := s.bindRow(input, row, product)
		if err != nil {
			result.Errors = append(result.Errors, newRowError(row, err))
			s.metrics.IncBinding(rowErrorCode(err))
			continue
		}
		s.metrics.IncBinding("bound")
		result.BoundTotal++
		result.PerSKU[sku]++
		bound = append(bound, boundRow{row: row, productID: product.ID, deviceID: device.ID})
	}

	s.linkAssemblies(input, bound, result)

	sort.SliceStable(result.Errors, func(i, j int) bool { return result.Errors[i].Row < result.Errors[j].Row })
	logger.TW(input.TenantID).Infow("bulk_bind_finished",
		"root_product_id", root.ID,
		"rows", len(rows),
		"bound_total", result.BoundTotal,
		"assembly_linked", result.AssemblyLinked,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *BindingService) resolveRoot(input BulkBindInput) (*models.Product, error) {
	var (
		root *models.Product
		err  error
	)
	switch {
	case input.RootProductID != 0:
		root, err = s.productRepo.GetByID(input.TenantID, input.RootProductID)
	case strings.TrimSpace(input.RootSKU) != "":
		root, err = s.productRepo.GetBySKU(input.TenantID, strings.TrimSpace(input.RootSKU))
	default:
		return nil, ErrProductUnknown
	}
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, ErrProductUnknown
	}
	return root, nil
}

// preflightSKUs 多 SKU 文件中每个 SKU 必须落在根商品的 BOM 闭包内
func (s *BindingService) preflightSKUs(tenantID uint, root *models.Product, rows []BulkBindRow) (map[string]*models.Product, error) {
	productBySKU := map[string]*models.Product{root.SKU: root}
	skuSet := make(map[string]struct{})
	for _, row := range rows {
		if row.SKU != "" && row.SKU != root.SKU {
			skuSet[row.SKU] = struct{}{}
		}
	}
	if len(skuSet) == 0 {
		return productBySKU, nil
	}

	skus := make([]string, 0, len(skuSet))
	for sku := range skuSet {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	products, err := s.productRepo.ListBySKUs(tenantID, skus)
	if err != nil {
		return nil, err
	}
	edges, err := s.bomRepo.ListByTenant(tenantID)
	if err != nil {
		return nil, err
	}
	closure := NewBOMGraph(edges).Reachable(root.ID)
	for i := range products {
		product := products[i]
		if _, ok := closure[product.ID]; ok {
			productBySKU[product.SKU] = &product
		}
	}
	var unknown []string
	for _, sku := range skus {
		if _, ok := productBySKU[sku]; !ok {
			unknown = append(unknown, sku)
		}
	}
	if len(unknown) > 0 {
		logger.TW(tenantID).Warnw("bulk_bind_unknown_sku", "root_product_id", root.ID, "skus", unknown)
		return nil, &UnknownSKUError{SKUs: unknown}
	}
	return productBySKU, nil
}

// validateRow 校验行字段格式，每个非法字段一条行级错误
func (s *BindingService) validateRow(row BulkBindRow) []RowError {
	err := s.validate.Struct(row)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []RowError{{Row: row.Row, Ref: row.DeviceUID, Code: constants.RowErrorInternal, Message: err.Error()}}
	}
	rowErrs := make([]RowError, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		rowErrs = append(rowErrs, RowError{
			Row:     row.Row,
			Ref:     row.DeviceUID,
			Field:   fieldErr.Field(),
			Code:    validationRowCode(fieldErr.Field()),
			Message: validationMessage(fieldErr),
		})
	}
	return rowErrs
}

func validationRowCode(field string) string {
	switch field {
	case "nfc_uid":
		return constants.RowErrorInvalidNFCUID
	case "puf_fingerprint_hash", "puf_score_threshold":
		return constants.RowErrorInvalidPUF
	default:
		return constants.RowErrorInvalidDeviceUID
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "len":
		return fe.Field() + " must be exactly " + fe.Param() + " characters"
	case "hexstr":
		return fe.Field() + " must be hexadecimal"
	case "numeric":
		return fe.Field() + " must be numeric"
	}
	return fe.Field() + " is invalid"
}

// bindRow 单行绑定，独立事务
func (s *BindingService) bindRow(input BulkBindInput, row BulkBindRow, product *models.Product) (*models.Device, error) {
	var device *models.Device
	err := s.productRepo.Transaction(func(tx *gorm.DB) error {
		codeRepo := s.codeRepo.WithTx(tx)
		var (
			code *models.Code
			err  error
		)
		if input.Allocate {
			code, err = codeRepo.ClaimNextIssued(input.TenantID, repository.CodeClaimFilter{
				ProductID: product.ID,
				BatchID:   input.BatchID,
				ChannelID: input.ChannelID,
				ValidAt:   s.now(),
			})
			if err != nil {
				return err
			}
			if code == nil {
				return ErrNoCodeAvailable
			}
		} else {
			code, err = codeRepo.GetByTokenHashForUpdate(input.TenantID, HashToken(row.Token))
			if err != nil {
				return err
			}
			if code == nil {
				return ErrCodeNotFound
			}
			if code.ProductID != nil && *code.ProductID != product.ID {
				return ErrCodeProductMismatch
			}
		}
		bound, err := s.bindInTx(tx, bindRequest{
			tenantID:   input.TenantID,
			code:       code,
			productID:  product.ID,
			deviceUID:  row.DeviceUID,
			attrs:      row.Attrs,
			actor:      input.Actor,
			station:    input.Station,
			enrichment: row.enrichment(),
		})
		if err != nil {
			return err
		}
		device = bound
		return nil
	})
	return device, err
}

// linkAssemblies 第二遍：按 parent_device_uid 建立设备装配关系
func (s *BindingService) linkAssemblies(input BulkBindInput, bound []boundRow, result *BulkBindResult) {
	byUID := make(map[string]uint, len(bound))
	for _, item := range bound {
		byUID[item.row.DeviceUID] = item.deviceID
	}
	for _, item := range bound {
		parentUID := item.row.ParentDeviceUID
		if parentUID == "" {
			continue
		}
		parentID, ok := byUID[parentUID]
		if !ok {
			resolved, err := s.findParentDevice(input.TenantID, parentUID, item.productID)
			if err != nil {
				result.Errors = append(result.Errors, newRowError(item.row, err))
				continue
			}
			if resolved == 0 {
				result.Errors = append(result.Errors, RowError{Row: item.row.Row, Ref: item.row.DeviceUID, Field: "parent_device_uid", Code: constants.RowErrorParentNotFound, Message: "parent device not found: " + parentUID})
				continue
			}
			parentID = resolved
		}
		if parentID == item.deviceID {
			result.Errors = append(result.Errors, RowError{Row: item.row.Row, Ref: item.row.DeviceUID, Field: "parent_device_uid", Code: constants.RowErrorAssemblyConflict, Message: "device cannot be its own parent"})
			continue
		}
		if err := s.linkAssembly(input.TenantID, parentID, item.deviceID, input.Actor); err != nil {
			result.Errors = append(result.Errors, newRowError(item.row, err))
			continue
		}
		result.AssemblyLinked++
	}
}

// findParentDevice 按 UID 查找已有设备，优先选择 BOM 中直接包含子件商品的设备
func (s *BindingService) findParentDevice(tenantID uint, parentUID string, childProductID uint) (uint, error) {
	candidates, err := s.deviceRepo.FindByUID(tenantID, parentUID)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	for _, candidate := range candidates {
		edge, err := s.bomRepo.Get(tenantID, candidate.ProductID, childProductID)
		if err != nil {
			return 0, err
		}
		if edge != nil {
			return candidate.ID, nil
		}
	}
	return candidates[0].ID, nil
}

var errAssemblyConflict = errors.New("device already assembled under another parent")

func (s *BindingService) linkAssembly(tenantID, parentID, childID uint, actor string) error {
	existing, err := s.deviceRepo.GetAssemblyByChild(tenantID, childID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.ParentDeviceID == parentID {
			return nil
		}
		return errAssemblyConflict
	}
	err = s.deviceRepo.CreateAssemblyLink(&models.DeviceAssemblyLink{
		TenantID:       tenantID,
		ParentDeviceID: parentID,
		ChildDeviceID:  childID,
		Actor:          strings.TrimSpace(actor),
	})
	if repository.UniqueViolationOn(err, "uk_device_assembly_links_child", "device_assembly_links.child_device_id") {
		return errAssemblyConflict
	}
	return err
}

// CoverageLine 组合设备对某一子件商品的装配情况
type CoverageLine struct {
	ChildProductID uint   `json:"child_product_id"`
	SKU            string `json:"sku"`
	Required       int64  `json:"required"`
	Assembled      int64  `json:"assembled"`
}

// AssemblyCoverage 组合设备的装配完整度
type AssemblyCoverage struct {
	ParentDeviceID uint           `json:"parent_device_id"`
	ProductID      uint           `json:"product_id"`
	Lines          []CoverageLine `json:"lines"`
	Complete       bool           `json:"complete"`
}

// AssemblyCoverage 对比直接 BOM 需求与已装配子设备数量
func (s *BindingService) AssemblyCoverage(tenantID, parentDeviceID uint) (*AssemblyCoverage, error) {
	parent, err := s.deviceRepo.GetByID(tenantID, parentDeviceID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ErrDeviceNotFound
	}
	lines, err := s.bomRepo.ListByParent(tenantID, parent.ProductID)
	if err != nil {
		return nil, err
	}
	children, err := s.deviceRepo.ListAssemblyChildren(tenantID, parent.ID)
	if err != nil {
		return nil, err
	}
	assembled := make(map[uint]int64, len(lines))
	for _, child := range children {
		assembled[child.ProductID]++
	}
	productIDs := make([]uint, 0, len(lines))
	for _, line := range lines {
		productIDs = append(productIDs, line.ChildProductID)
	}
	products, err := s.productRepo.ListByIDs(tenantID, productIDs)
	if err != nil {
		return nil, err
	}
	skuByID := make(map[uint]string, len(products))
	for _, product := range products {
		skuByID[product.ID] = product.SKU
	}

	coverage := &AssemblyCoverage{ParentDeviceID: parent.ID, ProductID: parent.ProductID, Complete: true}
	for _, line := range lines {
		required := line.UnitQuantity()
		item := CoverageLine{
			ChildProductID: line.ChildProductID,
			SKU:            skuByID[line.ChildProductID],
			Required:       required,
			Assembled:      assembled[line.ChildProductID],
		}
		if item.Assembled < item.Required {
			coverage.Complete = false
		}
		coverage.Lines = append(coverage.Lines, item)
	}
	return coverage, nil
}

// newRowError 将绑定错误映射为行级错误
func newRowError(row BulkBindRow, err error) RowError {
	rowErr := RowError{Row: row.Row, Ref: row.DeviceUID, Code: rowErrorCode(err), Message: err.Error()}
	switch rowErr.Code {
	case constants.RowErrorDuplicateNFCUID:
		rowErr.Field = "nfc_uid"
	case constants.RowErrorCodeNotFound, constants.RowErrorCodeProductMismatch:
		rowErr.Field = "token"
	case constants.RowErrorParentNotFound, constants.RowErrorAssemblyConflict:
		rowErr.Field = "parent_device_uid"
	}
	return rowErr
}

// rowErrorCode 错误到机器可读行级错误码
func rowErrorCode(err error) string {
	var rowErr RowError
	switch {
	case errors.As(err, &rowErr):
		return rowErr.Code
	case errors.Is(err, ErrCodeNotFound):
		return constants.RowErrorCodeNotFound
	case errors.Is(err, ErrCodeAlreadyBound):
		return constants.RowErrorCodeAlreadyBound
	case errors.Is(err, ErrCodeExpired):
		return constants.RowErrorCodeExpired
	case errors.Is(err, ErrCodeAlreadyLinked):
		return constants.RowErrorCodeAlreadyLinked
	case errors.Is(err, ErrDeviceAlreadyHasCode):
		return constants.RowErrorDeviceAlreadyHasCode
	case errors.Is(err, ErrCodeProductMismatch):
		return constants.RowErrorCodeProductMismatch
	case errors.Is(err, ErrNoCodeAvailable):
		return constants.RowErrorNoCodeAvailable
	case errors.Is(err, ErrMissingRequiredAttributes):
		return constants.RowErrorMissingAttributes
	case errors.Is(err, ErrDuplicateNFCUID):
		return constants.RowErrorDuplicateNFCUID
	case errors.Is(err, ErrInvalidNFCUID):
		return constants.RowErrorInvalidNFCUID
	case errors.Is(err, ErrInvalidPUFFingerprint):
		return constants.RowErrorInvalidPUF
	case errors.Is(err, ErrDeviceUIDRequired):
		return constants.RowErrorInvalidDeviceUID
	case errors.Is(err, ErrNotAllowedTransition):
		return constants.RowErrorNotAllowed
	case errors.Is(err, errAssemblyConflict):
		return constants.RowErrorAssemblyConflict
	}
	return constants.RowErrorInternal
}

// GetDevice 获取设备
func (s *BindingService) GetDevice(tenantID, deviceID uint) (*models.Device, error) {
	device, err := s.deviceRepo.GetByID(tenantID, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}

// ListDevices 设备列表
func (s *BindingService) ListDevices(tenantID uint, filter repository.DeviceListFilter) ([]models.Device, int64, error) {
	return s.deviceRepo.List(tenantID, filter)
}
