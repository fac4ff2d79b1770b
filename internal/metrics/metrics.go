package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Selections 通道选码次数，result 为 ok / insufficient / error
	Selections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrcollect_selection_total",
		Help: "Receiving account selections by channel and result.",
	}, []string{"channel", "result"})

	Failovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrcollect_failover_total",
		Help: "Customer initiated switches to the backup receiving account.",
	}, []string{"channel"})

	// Commits 付款提交时的计数结果，result 为 ok / resubmit / conflict / duplicate / error
	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrcollect_usage_commit_total",
		Help: "Usage commits on payment submission.",
	}, []string{"result"})

	CounterResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrcollect_counter_reset_total",
		Help: "Usage counter resets by trigger.",
	}, []string{"trigger"})

	// OutboxMessages 本地消息表积压，由 OutboxSender 每轮刷新
	OutboxMessages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qrcollect_outbox_messages",
		Help: "Outbox messages waiting for delivery or given up, by status.",
	}, []string{"status"})
)
