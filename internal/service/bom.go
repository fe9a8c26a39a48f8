package service

import (
	"math"
	"sort"

	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"

	"github.com/shopspring/decimal"
)

// BOMLine 父件下的一条子件需求
type BOMLine struct {
	EdgeID         uint
	ChildProductID uint
	Quantity       decimal.Decimal
	UnitQuantity   int64 // 每个父件需要的整数子件数（向上取整）
}

// SuppressedEdge 展开时因成环被跳过的边
type SuppressedEdge struct {
	ParentProductID uint `json:"parent_product_id"`
	ChildProductID  uint `json:"child_product_id"`
}

// BOMGraph 租户 BOM 邻接表（一次加载，多次遍历）
type BOMGraph struct {
	children map[uint][]BOMLine
}

// NewBOMGraph 由 BOM 边构建邻接表，子件按边创建顺序排列
func NewBOMGraph(edges []models.BOMEdge) *BOMGraph {
	sorted := make([]models.BOMEdge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	children := make(map[uint][]BOMLine)
	for _, edge := range sorted {
		unit := edge.UnitQuantity()
		if unit <= 0 {
			continue
		}
		children[edge.ParentProductID] = append(children[edge.ParentProductID], BOMLine{
			EdgeID:         edge.ID,
			ChildProductID: edge.ChildProductID,
			Quantity:       edge.Quantity,
			UnitQuantity:   unit,
		})
	}
	return &BOMGraph{children: children}
}

// Children 返回直接子件
func (g *BOMGraph) Children(productID uint) []BOMLine {
	if g == nil {
		return nil
	}
	return g.children[productID]
}

// Expand 计算 rootQuantity 个根件所需的每种商品数量（含根件）
// 先以深度优先找出回边（成环边）并跳过，再按拓扑序逐边累加，每条边只处理一次
func (g *BOMGraph) Expand(rootProductID uint, rootQuantity int64) (map[uint]int64, []SuppressedEdge, error) {
	suppressed := g.backEdges(rootProductID)
	skip := suppressedSet(suppressed)

	indegree := make(map[uint]int)
	for productID := range g.Reachable(rootProductID) {
		for _, line := range g.Children(productID) {
			if skip[bomEdgeKey{productID, line.ChildProductID}] {
				continue
			}
			indegree[line.ChildProductID]++
		}
	}

	totals := map[uint]int64{rootProductID: rootQuantity}
	queue := []uint{rootProductID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, line := range g.Children(current) {
			if skip[bomEdgeKey{current, line.ChildProductID}] {
				continue
			}
			needed, ok := mulInt64(totals[current], line.UnitQuantity)
			if !ok {
				return nil, suppressed, &QuantityOverflowError{ProductID: line.ChildProductID}
			}
			sum, ok := addInt64(totals[line.ChildProductID], needed)
			if !ok {
				return nil, suppressed, &QuantityOverflowError{ProductID: line.ChildProductID}
			}
			totals[line.ChildProductID] = sum
			indegree[line.ChildProductID]--
			if indegree[line.ChildProductID] == 0 {
				queue = append(queue, line.ChildProductID)
			}
		}
	}
	return totals, suppressed, nil
}

type bomEdgeKey struct {
	parent uint
	child  uint
}

func suppressedSet(edges []SuppressedEdge) map[bomEdgeKey]bool {
	set := make(map[bomEdgeKey]bool, len(edges))
	for _, edge := range edges {
		set[bomEdgeKey{edge.ParentProductID, edge.ChildProductID}] = true
	}
	return set
}

// backEdges 迭代深度优先遍历，指向当前栈上商品的边即为成环边
func (g *BOMGraph) backEdges(rootProductID uint) []SuppressedEdge {
	const (
		visiting = 1
		done     = 2
	)
	type frame struct {
		productID uint
		next      int
	}
	state := map[uint]int{rootProductID: visiting}
	stack := []frame{{productID: rootProductID}}
	var suppressed []SuppressedEdge
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		children := g.Children(top.productID)
		if top.next >= len(children) {
			state[top.productID] = done
			stack = stack[:len(stack)-1]
			continue
		}
		line := children[top.next]
		top.next++
		switch state[line.ChildProductID] {
		case visiting:
			suppressed = append(suppressed, SuppressedEdge{ParentProductID: top.productID, ChildProductID: line.ChildProductID})
		case done:
		default:
			state[line.ChildProductID] = visiting
			stack = append(stack, frame{productID: line.ChildProductID})
		}
	}
	return suppressed
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a < 0 || b < 0 || a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

func addInt64(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// Reachable 返回从根出发可达的商品集合（含根）
func (g *BOMGraph) Reachable(rootProductID uint) map[uint]struct{} {
	seen := map[uint]struct{}{rootProductID: {}}
	stack := []uint{rootProductID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, line := range g.Children(current) {
			if _, ok := seen[line.ChildProductID]; ok {
				continue
			}
			seen[line.ChildProductID] = struct{}{}
			stack = append(stack, line.ChildProductID)
		}
	}
	return seen
}

// WouldCycle 判断新增 parent→child 边是否成环
func (g *BOMGraph) WouldCycle(parentProductID, childProductID uint) bool {
	if parentProductID == childProductID {
		return true
	}
	_, reachable := g.Reachable(childProductID)[parentProductID]
	return reachable
}

// RequirementPlan BOM 展开结果
type RequirementPlan struct {
	RootProductID uint             `json:"root_product_id"`
	RootQuantity  int64            `json:"root_quantity"`
	Quantities    map[uint]int64   `json:"quantities"`
	Suppressed    []SuppressedEdge `json:"suppressed,omitempty"`
}

// Total 计划内全部码数量（构建计划时已保证不溢出）
func (p *RequirementPlan) Total() int64 {
	var total int64
	for _, qty := range p.Quantities {
		total += qty
	}
	return total
}

// ProductIDs 按 ID 升序返回计划内商品
func (p *RequirementPlan) ProductIDs() []uint {
	ids := make([]uint, 0, len(p.Quantities))
	for id := range p.Quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BOMService BOM 展开服务
type BOMService struct {
	productRepo repository.ProductRepository
	bomRepo     repository.BOMRepository
}

// NewBOMService 创建 BOM 展开服务
func NewBOMService(productRepo repository.ProductRepository, bomRepo repository.BOMRepository) *BOMService {
	return &BOMService{productRepo: productRepo, bomRepo: bomRepo}
}

// LoadGraph 加载租户 BOM 邻接表
func (s *BOMService) LoadGraph(tenantID uint) (*BOMGraph, error) {
	edges, err := s.bomRepo.ListByTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return NewBOMGraph(edges), nil
}

// ExpandRequirements 返回每种商品的所需数量（含根件本身）
func (s *BOMService) ExpandRequirements(tenantID, rootProductID uint, rootQuantity int64) (map[uint]int64, error) {
	plan, err := s.Plan(tenantID, rootProductID, rootQuantity)
	if err != nil {
		return nil, err
	}
	return plan.Quantities, nil
}

// Plan 展开 BOM 并记录被跳过的成环边
func (s *BOMService) Plan(tenantID, rootProductID uint, rootQuantity int64) (*RequirementPlan, error) {
	if rootQuantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	root, err := s.productRepo.GetByID(tenantID, rootProductID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, ErrProductUnknown
	}
	graph, err := s.LoadGraph(tenantID)
	if err != nil {
		return nil, err
	}
	return planFromGraph(tenantID, graph, rootProductID, rootQuantity)
}

func planFromGraph(tenantID uint, graph *BOMGraph, rootProductID uint, rootQuantity int64) (*RequirementPlan, error) {
	quantities, suppressed, err := graph.Expand(rootProductID, rootQuantity)
	if err != nil {
		logger.TW(tenantID).Warnw("bom_expand_overflow", "root_product_id", rootProductID, "root_quantity", rootQuantity, "error", err)
		return nil, err
	}
	var total int64
	for productID, qty := range quantities {
		sum, ok := addInt64(total, qty)
		if !ok {
			return nil, &QuantityOverflowError{ProductID: productID}
		}
		total = sum
	}
	for _, edge := range suppressed {
		logger.TW(tenantID).Warnw("bom_cycle_edge_suppressed",
			"root_product_id", rootProductID,
			"parent_product_id", edge.ParentProductID,
			"child_product_id", edge.ChildProductID,
		)
	}
	return &RequirementPlan{
		RootProductID: rootProductID,
		RootQuantity:  rootQuantity,
		Quantities:    quantities,
		Suppressed:    suppressed,
	}, nil
}
