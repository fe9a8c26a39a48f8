package service

import (
	"errors"
	"sort"

	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/metrics"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"

	"gorm.io/gorm"
)

// PlannedEdge 规划出的父子码边
type PlannedEdge struct {
	ParentProductID uint `json:"parent_product_id"`
	ParentCodeID    uint `json:"parent_code_id"`
	ChildProductID  uint `json:"child_product_id"`
	ChildCodeID     uint `json:"child_code_id"`
}

// codePoolArena 按商品索引的码 FIFO 队列集合
type codePoolArena struct {
	queues map[uint][]uint
	heads  map[uint]int
}

func newCodePoolArena(pools map[uint][]uint) *codePoolArena {
	queues := make(map[uint][]uint, len(pools))
	for productID, ids := range pools {
		queues[productID] = append([]uint(nil), ids...)
	}
	return &codePoolArena{queues: queues, heads: make(map[uint]int, len(pools))}
}

func (a *codePoolArena) available(productID uint) int64 {
	return int64(len(a.queues[productID]) - a.heads[productID])
}

func (a *codePoolArena) take(productID uint, n int64) ([]uint, bool) {
	if n <= 0 {
		return nil, true
	}
	if a.available(productID) < n {
		return nil, false
	}
	head := a.heads[productID]
	taken := a.queues[productID][head : head+int(n)]
	a.heads[productID] = head + int(n)
	return taken, true
}

func (a *codePoolArena) drain(productID uint) []uint {
	head := a.heads[productID]
	rest := a.queues[productID][head:]
	a.heads[productID] = len(a.queues[productID])
	return rest
}

// graphFrame 待挂载子码的父码
type graphFrame struct {
	productID uint
	codeID    uint
}

// PlanCodeGraph 按 BOM 将各商品码池配对成树：根码池中每个码为一棵树，
// 子码按 FIFO 出队，先序深度优先展开，相同输入得到相同结构
func PlanCodeGraph(graph *BOMGraph, rootProductID uint, pools map[uint][]uint) ([]PlannedEdge, error) {
	arena := newCodePoolArena(pools)
	roots := arena.drain(rootProductID)
	if len(roots) == 0 {
		return nil, &InsufficientPoolError{ProductID: rootProductID, Needed: 1, Available: 0}
	}

	required, suppressed, err := graph.Expand(rootProductID, int64(len(roots)))
	if err != nil {
		return nil, err
	}
	skip := suppressedSet(suppressed)
	productIDs := make([]uint, 0, len(required))
	for productID := range required {
		productIDs = append(productIDs, productID)
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })
	for _, productID := range productIDs {
		if productID == rootProductID {
			continue
		}
		if have := arena.available(productID); have < required[productID] {
			return nil, &InsufficientPoolError{ProductID: productID, Needed: required[productID], Available: have}
		}
	}

	stack := make([]graphFrame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, graphFrame{productID: rootProductID, codeID: roots[i]})
	}

	var edges []PlannedEdge
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var next []graphFrame
		for _, line := range graph.Children(frame.productID) {
			if skip[bomEdgeKey{frame.productID, line.ChildProductID}] {
				continue
			}
			codes, ok := arena.take(line.ChildProductID, line.UnitQuantity)
			if !ok {
				return nil, &InsufficientPoolError{
					ProductID: line.ChildProductID,
					Needed:    line.UnitQuantity,
					Available: arena.available(line.ChildProductID),
				}
			}
			for _, codeID := range codes {
				edges = append(edges, PlannedEdge{
					ParentProductID: frame.productID,
					ParentCodeID:    frame.codeID,
					ChildProductID:  line.ChildProductID,
					ChildCodeID:     codeID,
				})
				next = append(next, graphFrame{productID: line.ChildProductID, codeID: codeID})
			}
		}
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return edges, nil
}

// CodeGraphService 码装配图服务
type CodeGraphService struct {
	productRepo repository.ProductRepository
	bomRepo     repository.BOMRepository
	codeRepo    repository.CodeRepository
	graphRepo   repository.CodeGraphRepository
	metrics     *metrics.CoreMetrics
}

// NewCodeGraphService 创建码装配图服务
func NewCodeGraphService(
	productRepo repository.ProductRepository,
	bomRepo repository.BOMRepository,
	codeRepo repository.CodeRepository,
	graphRepo repository.CodeGraphRepository,
	coreMetrics *metrics.CoreMetrics,
) *CodeGraphService {
	return &CodeGraphService{
		productRepo: productRepo,
		bomRepo:     bomRepo,
		codeRepo:    codeRepo,
		graphRepo:   graphRepo,
		metrics:     coreMetrics,
	}
}

// LinkGraph 将各商品码池按 BOM 组装成码树，整体成功或整体回滚
func (s *CodeGraphService) LinkGraph(tenantID, rootProductID uint, pools map[uint][]uint) ([]models.CodeEdge, error) {
	edges, err := s.bomRepo.ListByTenant(tenantID)
	if err != nil {
		return nil, err
	}
	planned, err := PlanCodeGraph(NewBOMGraph(edges), rootProductID, pools)
	if err != nil {
		logger.TW(tenantID).Warnw("code_graph_plan_failed", "root_product_id", rootProductID, "error", err)
		return nil, err
	}
	var created []models.CodeEdge
	err = s.productRepo.Transaction(func(tx *gorm.DB) error {
		result, err := s.linkInTx(tx, tenantID, planned)
		if err != nil {
			return err
		}
		created = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddGraphEdges(len(created))
	logger.TW(tenantID).Infow("code_graph_linked", "root_product_id", rootProductID, "edges", len(created))
	return created, nil
}

// linkInTx 校验码归属后写入边、父指针与闭包行
func (s *CodeGraphService) linkInTx(tx *gorm.DB, tenantID uint, planned []PlannedEdge) ([]models.CodeEdge, error) {
	if len(planned) == 0 {
		return nil, nil
	}
	codeRepo := s.codeRepo.WithTx(tx)
	graphRepo := s.graphRepo.WithTx(tx)

	expected := make(map[uint]uint, len(planned)*2)
	childIDs := make([]uint, 0, len(planned))
	for _, edge := range planned {
		expected[edge.ParentCodeID] = edge.ParentProductID
		expected[edge.ChildCodeID] = edge.ChildProductID
		childIDs = append(childIDs, edge.ChildCodeID)
	}
	codeIDs := make([]uint, 0, len(expected))
	for id := range expected {
		codeIDs = append(codeIDs, id)
	}
	sort.Slice(codeIDs, func(i, j int) bool { return codeIDs[i] < codeIDs[j] })

	codes, err := codeRepo.ListByIDsForUpdate(tenantID, codeIDs)
	if err != nil {
		return nil, err
	}
	codeByID := make(map[uint]models.Code, len(codes))
	for _, code := range codes {
		codeByID[code.ID] = code
	}
	for _, id := range codeIDs {
		code, ok := codeByID[id]
		if !ok {
			return nil, ErrCodeNotFound
		}
		if code.ProductID == nil || *code.ProductID != expected[id] {
			return nil, ErrCodePoolMismatch
		}
	}
	for _, id := range childIDs {
		if codeByID[id].ParentCodeID != nil {
			return nil, ErrCodeAlreadyAssembled
		}
	}

	rows := make([]models.CodeEdge, 0, len(planned))
	for _, edge := range planned {
		rows = append(rows, models.CodeEdge{
			TenantID:     tenantID,
			ParentCodeID: edge.ParentCodeID,
			ChildCodeID:  edge.ChildCodeID,
		})
	}
	if err := graphRepo.CreateEdges(rows); err != nil {
		if repository.UniqueViolationOn(err, "uk_code_edges_child", "code_edges.child_code_id") {
			return nil, ErrCodeAlreadyAssembled
		}
		return nil, err
	}
	for _, edge := range planned {
		if err := codeRepo.SetParent(tenantID, edge.ChildCodeID, edge.ParentCodeID); err != nil {
			if errors.Is(err, repository.ErrParentAlreadySet) {
				return nil, ErrCodeAlreadyAssembled
			}
			return nil, err
		}
	}

	closures, err := s.closureRows(graphRepo, tenantID, planned, codeIDs, childIDs)
	if err != nil {
		return nil, err
	}
	if err := graphRepo.CreateClosures(closures); err != nil {
		return nil, err
	}
	return rows, nil
}

// closureRows 为新边生成闭包行：anc(parent) × desc(child)，depth 相加再加一
func (s *CodeGraphService) closureRows(graphRepo repository.CodeGraphRepository, tenantID uint, planned []PlannedEdge, codeIDs, childIDs []uint) ([]models.CodeClosure, error) {
	descRows, err := graphRepo.ListDescendantRows(tenantID, childIDs)
	if err != nil {
		return nil, err
	}
	desc := make(map[uint][]repository.ClosureRow, len(childIDs))
	ancestorLookup := append([]uint(nil), codeIDs...)
	for _, row := range descRows {
		desc[row.AncestorID] = append(desc[row.AncestorID], row)
		ancestorLookup = append(ancestorLookup, row.DescendantID)
	}
	ancRows, err := graphRepo.ListAncestorRows(tenantID, uniqueUints(ancestorLookup))
	if err != nil {
		return nil, err
	}
	anc := make(map[uint][]repository.ClosureRow, len(ancestorLookup))
	for _, row := range ancRows {
		anc[row.DescendantID] = append(anc[row.DescendantID], row)
	}
	self := func(id uint) []repository.ClosureRow {
		return []repository.ClosureRow{{AncestorID: id, DescendantID: id, Depth: 0}}
	}

	type pair struct{ ancestor, descendant uint }
	seen := make(map[pair]struct{})
	var out []models.CodeClosure
	for _, edge := range planned {
		parentAnc := anc[edge.ParentCodeID]
		if len(parentAnc) == 0 {
			parentAnc = self(edge.ParentCodeID)
		}
		childDesc := desc[edge.ChildCodeID]
		if len(childDesc) == 0 {
			childDesc = self(edge.ChildCodeID)
		}
		for _, d := range childDesc {
			for _, a := range parentAnc {
				key := pair{a.AncestorID, d.DescendantID}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, models.CodeClosure{
					TenantID:     tenantID,
					AncestorID:   a.AncestorID,
					DescendantID: d.DescendantID,
					Depth:        a.Depth + d.Depth + 1,
				})
				anc[d.DescendantID] = append(anc[d.DescendantID], repository.ClosureRow{
					AncestorID:   a.AncestorID,
					DescendantID: d.DescendantID,
					Depth:        a.Depth + d.Depth + 1,
				})
			}
		}
		if !hasSelfRow(anc[edge.ChildCodeID], edge.ChildCodeID) {
			anc[edge.ChildCodeID] = append(anc[edge.ChildCodeID], self(edge.ChildCodeID)...)
		}
	}
	return out, nil
}

func hasSelfRow(rows []repository.ClosureRow, id uint) bool {
	for _, row := range rows {
		if row.AncestorID == id && row.Depth == 0 {
			return true
		}
	}
	return false
}

func uniqueUints(values []uint) []uint {
	seen := make(map[uint]struct{}, len(values))
	out := make([]uint, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// ListDescendants 返回码的全部后代（depth>=1）
func (s *CodeGraphService) ListDescendants(tenantID, codeID uint) ([]models.CodeClosure, error) {
	return s.graphRepo.ListDescendants(tenantID, codeID, 1)
}

// ListAncestors 返回码的全部祖先（depth>=1），按层级由近及远
func (s *CodeGraphService) ListAncestors(tenantID, codeID uint) ([]models.CodeClosure, error) {
	return s.graphRepo.ListAncestors(tenantID, codeID, 1)
}
