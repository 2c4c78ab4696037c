package services

import (
	"time"

	"settlement/domain/entities"
	"settlement/domain/interfaces"

	"github.com/shopspring/decimal"
)

type noopMetrics struct{}

func (noopMetrics) RecordRuleFailure(string)                               {}
func (noopMetrics) RecordPayoutRunStarted(bool)                            {}
func (noopMetrics) RecordPayoutRunFinished(entities.PayoutRunStatus, bool) {}
func (noopMetrics) RecordReceipt(entities.ReceiptStatus, decimal.Decimal)  {}
func (noopMetrics) RecordBatchDuration(int, time.Duration)                 {}

func metricsOrNoop(m interfaces.SettlementMetrics) interfaces.SettlementMetrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
