package evolution

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldAutoRollbackOnSuccessDecline(t *testing.T) {
	metrics := []MetricsRow{
		{Date: "2026-07-27", FirstSuccessRate: 0.90, UserCorrectionRate: 0.05},
		{Date: "2026-07-28", FirstSuccessRate: 0.78, UserCorrectionRate: 0.05},
		{Date: "2026-07-29", FirstSuccessRate: 0.66, UserCorrectionRate: 0.05},
		{Date: "2026-07-30", FirstSuccessRate: 0.54, UserCorrectionRate: 0.05},
	}
	require.True(t, ShouldAutoRollback(metrics))
}

func TestShouldAutoRollbackOnCorrectionRise(t *testing.T) {
	metrics := []MetricsRow{
		{Date: "2026-07-27", FirstSuccessRate: 0.90, UserCorrectionRate: 0.05},
		{Date: "2026-07-28", FirstSuccessRate: 0.90, UserCorrectionRate: 0.12},
		{Date: "2026-07-29", FirstSuccessRate: 0.90, UserCorrectionRate: 0.20},
		{Date: "2026-07-30", FirstSuccessRate: 0.90, UserCorrectionRate: 0.30},
	}
	require.True(t, ShouldAutoRollback(metrics))
}

func TestShouldAutoRollbackNotTriggeredOnStableMetrics(t *testing.T) {
	metrics := []MetricsRow{
		{Date: "2026-07-27", FirstSuccessRate: 0.90, UserCorrectionRate: 0.05},
		{Date: "2026-07-28", FirstSuccessRate: 0.89, UserCorrectionRate: 0.06},
		{Date: "2026-07-29", FirstSuccessRate: 0.91, UserCorrectionRate: 0.05},
		{Date: "2026-07-30", FirstSuccessRate: 0.90, UserCorrectionRate: 0.05},
	}
	require.False(t, ShouldAutoRollback(metrics))
}

func TestShouldAutoRollbackInsufficientHistory(t *testing.T) {
	metrics := []MetricsRow{
		{Date: "2026-07-29", FirstSuccessRate: 0.90},
		{Date: "2026-07-30", FirstSuccessRate: 0.10},
	}
	require.False(t, ShouldAutoRollback(metrics))
}
