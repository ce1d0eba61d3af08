package monitoring

import (
	"github.com/donation-platform/ledger-worker/src/utils/monitoring/report"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Counters exposed through the REST API
type Monitor interface {
	GetReport() *report.Report
	GetPrometheusCollector() prometheus.Collector
	OnGetState(c *gin.Context)
	OnGetHealth(c *gin.Context)
	IsOK() bool
}
