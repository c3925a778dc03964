package workflowrouter

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts router activity. Registration is explicit so tests can
// hold unregistered instances.
type Metrics struct {
	MessagesConsumed  prometheus.Counter
	MessagesDropped   prometheus.Counter
	StepsTriggered    prometheus.Counter
	RetriesScheduled  prometheus.Counter
	WorkflowsFinished prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_router_messages_consumed_total",
			Help: "Messages consumed from the router queue.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_router_messages_dropped_total",
			Help: "Messages logged and dropped by the router.",
		}),
		StepsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_router_steps_triggered_total",
			Help: "Step trigger messages published to agent inboxes.",
		}),
		RetriesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_router_retries_scheduled_total",
			Help: "Step retriggers after a failed run.",
		}),
		WorkflowsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_router_workflows_finished_total",
			Help: "Workflow records that reached completion.",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.MessagesConsumed,
		m.MessagesDropped,
		m.StepsTriggered,
		m.RetriesScheduled,
		m.WorkflowsFinished,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
