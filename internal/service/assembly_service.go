package service

import (
	"time"

	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/models"

	"gorm.io/gorm"
)

// AssemblyService 组合件整单发码：展开 BOM、发码、组装码树
type AssemblyService struct {
	ledger *CodeLedgerService
	bom    *BOMService
	graph  *CodeGraphService
}

// NewAssemblyService 创建组合件发码服务
func NewAssemblyService(ledger *CodeLedgerService, bom *BOMService, graph *CodeGraphService) *AssemblyService {
	return &AssemblyService{ledger: ledger, bom: bom, graph: graph}
}

// MintAssemblyInput 组合件发码输入
type MintAssemblyInput struct {
	TenantID         uint
	RootProductID    uint
	RootQuantity     int64
	VerificationMode string
	BatchID          *uint
	ChannelID        *uint
	PrintRunID       *uint
	ExpiresAt        *time.Time
}

// MintAssemblyResult 组合件发码结果
type MintAssemblyResult struct {
	Plan  *RequirementPlan       `json:"plan"`
	Codes map[uint][]models.Code `json:"codes"`
	Edges []models.CodeEdge      `json:"edges"`
}

// RootCodes 返回根商品的码
func (r *MintAssemblyResult) RootCodes() []models.Code {
	if r == nil || r.Plan == nil {
		return nil
	}
	return r.Codes[r.Plan.RootProductID]
}

// MintAssembly 在一个事务内完成展开、配额校验、各商品发码与码树组装
func (s *AssemblyService) MintAssembly(input MintAssemblyInput) (*MintAssemblyResult, error) {
	plan, err := s.bom.Plan(input.TenantID, input.RootProductID, input.RootQuantity)
	if err != nil {
		return nil, err
	}
	graph, err := s.bom.LoadGraph(input.TenantID)
	if err != nil {
		return nil, err
	}

	ledger := s.ledger
	specs := make(map[uint]issueSpec, len(plan.Quantities))
	for _, productID := range plan.ProductIDs() {
		spec, err := ledger.prepareIssue(ledger.productRepo, ledger.provenanceRepo, IssueCodesInput{
			TenantID:         input.TenantID,
			ProductID:        productID,
			Quantity:         plan.Quantities[productID],
			VerificationMode: input.VerificationMode,
			BatchID:          input.BatchID,
			ChannelID:        input.ChannelID,
			PrintRunID:       input.PrintRunID,
			ExpiresAt:        input.ExpiresAt,
		})
		if err != nil {
			return nil, err
		}
		specs[productID] = spec
	}
	if err := checkQuota(ledger.quota, input.TenantID, plan.Total(), ledger.now()); err != nil {
		logger.TW(input.TenantID).Warnw("mint_assembly_quota_exceeded", "root_product_id", input.RootProductID, "total", plan.Total(), "error", err)
		return nil, err
	}

	result := &MintAssemblyResult{Plan: plan}
	err = ledger.withMintRetry(input.TenantID, func() error {
		return ledger.productRepo.Transaction(func(tx *gorm.DB) error {
			if err := checkQuotaInTx(tx, ledger.quota, input.TenantID, plan.Total(), ledger.now()); err != nil {
				return err
			}
			codes := make(map[uint][]models.Code, len(specs))
			pools := make(map[uint][]uint, len(specs))
			for _, productID := range plan.ProductIDs() {
				issued, err := ledger.issueInTx(tx, specs[productID])
				if err != nil {
					return err
				}
				codes[productID] = issued
				ids := make([]uint, 0, len(issued))
				for _, code := range issued {
					ids = append(ids, code.ID)
				}
				pools[productID] = ids
			}
			planned, err := PlanCodeGraph(graph, input.RootProductID, pools)
			if err != nil {
				return err
			}
			edges, err := s.graph.linkInTx(tx, input.TenantID, planned)
			if err != nil {
				return err
			}
			result.Codes = codes
			result.Edges = edges
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	for productID, codes := range result.Codes {
		ledger.metrics.AddCodesIssued(specs[productID].mode, len(codes))
	}
	s.graph.metrics.AddGraphEdges(len(result.Edges))
	logger.TW(input.TenantID).Infow("assembly_minted",
		"root_product_id", input.RootProductID,
		"root_quantity", input.RootQuantity,
		"codes", plan.Total(),
		"edges", len(result.Edges),
	)
	return result, nil
}
