// Package metrics 收集一次运行的计数器。
//
// 每次运行一个独立的 Registry（CLI 是一次性进程，不对外暴露 /metrics）；
// 需要时通过 WriteTextfile 导出给 node_exporter 的 textfile collector。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rhtrucks"

// 页面种类（pages_fetched_total 的 kind 标签）。
const (
	KindIndex   = "index"
	KindListing = "listing"
	KindProfile = "profile"
)

type Recorder struct {
	reg *prometheus.Registry

	PagesFetched    *prometheus.CounterVec
	FetchFailures   *prometheus.CounterVec
	URLsCollected   prometheus.Counter
	RecordsWritten  prometheus.Counter
	RecordsSkipped  prometheus.Counter
	RecordsFailed   *prometheus.CounterVec
	FieldFallbacks  *prometheus.CounterVec
	RecordsImported prometheus.Counter
	StageDuration   *prometheus.GaugeVec
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Pages fetched successfully, by page kind.",
		}, []string{"kind"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed page fetches, by page kind.",
		}, []string{"kind"}),
		URLsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urls_collected_total",
			Help:      "Profile URLs collected from city listings.",
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Truck records written to disk.",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Profile URLs skipped because the record file already exists.",
		}),
		RecordsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_failed_total",
			Help:      "Records that could not be produced, by error code.",
		}, []string{"error_code"}),
		FieldFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_fallbacks_total",
			Help:      "Extracted fields that fell back to their default value, by field.",
		}, []string{"field"}),
		RecordsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_imported_total",
			Help:      "Records upserted into the document store.",
		}),
		StageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of the last run, by stage.",
		}, []string{"stage"}),
	}
	r.reg.MustRegister(
		r.PagesFetched,
		r.FetchFailures,
		r.URLsCollected,
		r.RecordsWritten,
		r.RecordsSkipped,
		r.RecordsFailed,
		r.FieldFallbacks,
		r.RecordsImported,
		r.StageDuration,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteTextfile 以 Prometheus 文本格式写出当前所有指标（原子替换）。
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
