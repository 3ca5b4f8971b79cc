package checklist

import "github.com/checklist-api/project/internal/platform/metrics"

var (
	assignmentsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "checklist_template_assignments_total",
		Help: "Template assignment calls by outcome.",
	}, []string{"outcome"})
	itemsCreatedTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "checklist_items_created_total",
		Help: "Items created, by how they were created.",
	}, []string{"source"})
	eventPublishFailuresTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "checklist_event_publish_failures_total",
		Help: "Domain events that could not be published.",
	}, []string{"event_type"})
)

func init() {
	metrics.Default.MustRegister(assignmentsTotal, itemsCreatedTotal, eventPublishFailuresTotal)
}
