package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics 发码、绑定与批量状态变更指标
type CoreMetrics struct {
	codesIssued *prometheus.CounterVec
	bindings    *prometheus.CounterVec
	bulkRows    *prometheus.CounterVec
	bulkChunk   prometheus.Histogram
	bulkJobs    *prometheus.CounterVec
	graphEdges  prometheus.Counter
}

// NewCoreMetrics 在指定 registerer 上注册指标；reg 为 nil 时返回空实现
func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	if reg == nil {
		return &CoreMetrics{}
	}
	codesIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codes_issued_total",
		Help: "Codes issued, by verification mode.",
	}, []string{"mode"})
	bindings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_bind_total",
		Help: "Device bind attempts, by result.",
	}, []string{"result"})
	bulkRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_status_rows_total",
		Help: "Rows handled by bulk status transitions, by result.",
	}, []string{"result"})
	bulkChunk := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulk_status_chunk_seconds",
		Help:    "Duration of a bulk status chunk transaction in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	bulkJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_jobs_total",
		Help: "Bulk jobs finished, by final status.",
	}, []string{"status"})
	graphEdges := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "code_graph_edges_total",
		Help: "Parent to child code edges created.",
	})
	reg.MustRegister(codesIssued, bindings, bulkRows, bulkChunk, bulkJobs, graphEdges)
	return &CoreMetrics{
		codesIssued: codesIssued,
		bindings:    bindings,
		bulkRows:    bulkRows,
		bulkChunk:   bulkChunk,
		bulkJobs:    bulkJobs,
		graphEdges:  graphEdges,
	}
}

// AddCodesIssued 记录发码数量
func (m *CoreMetrics) AddCodesIssued(mode string, count int) {
	if m == nil || m.codesIssued == nil || count <= 0 {
		return
	}
	m.codesIssued.WithLabelValues(normalizeLabel(mode)).Add(float64(count))
}

// IncBinding 记录一次绑定结果
func (m *CoreMetrics) IncBinding(result string) {
	if m == nil || m.bindings == nil {
		return
	}
	m.bindings.WithLabelValues(normalizeLabel(result)).Inc()
}

// AddBulkRows 记录批量状态变更的行结果
func (m *CoreMetrics) AddBulkRows(result string, count int) {
	if m == nil || m.bulkRows == nil || count <= 0 {
		return
	}
	m.bulkRows.WithLabelValues(normalizeLabel(result)).Add(float64(count))
}

// ObserveBulkChunk 记录单个分块耗时
func (m *CoreMetrics) ObserveBulkChunk(duration time.Duration) {
	if m == nil || m.bulkChunk == nil {
		return
	}
	m.bulkChunk.Observe(duration.Seconds())
}

// IncBulkJob 记录任务结束状态
func (m *CoreMetrics) IncBulkJob(status string) {
	if m == nil || m.bulkJobs == nil {
		return
	}
	m.bulkJobs.WithLabelValues(normalizeLabel(status)).Inc()
}

// AddGraphEdges 记录装配边数量
func (m *CoreMetrics) AddGraphEdges(count int) {
	if m == nil || m.graphEdges == nil || count <= 0 {
		return
	}
	m.graphEdges.Add(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
