package guardrail

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
)

func newTestEngine(cfg Config) (*Engine, *time.Time) {
	e := NewEngine(cfg)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	e.now = func() time.Time { return *clock }
	return e, clock
}

func collectAlerts(e *Engine) *[]domain.Alert {
	var got []domain.Alert
	e.SubscribeAlerts(func(a domain.Alert) { got = append(got, a) })
	return &got
}

func TestRestErrorThreshold_TripsOnce(t *testing.T) {
	e, _ := newTestEngine(Config{RestErrorThreshold: 3})

	alerts := collectAlerts(e)
	killCalls := 0
	e.SubscribeKillSwitch(func(reason string) { killCalls++ })

	for i := 0; i < 3; i++ {
		e.LogTransportEvent(TransportRestCall, 120, false)
	}

	if !e.KillSwitchActive() {
		t.Fatal("Kill switch should be active after 3 failures in one bucket")
	}

	crits := 0
	for _, a := range *alerts {
		if a.Level == domain.AlertCrit {
			crits++
		}
	}
	if crits != 1 {
		t.Errorf("Expected exactly 1 CRIT alert, got %d", crits)
	}
	if killCalls != 1 {
		t.Errorf("Expected exactly 1 kill-switch notification, got %d", killCalls)
	}

	// A 4th failure in the same bucket must not trip again.
	e.LogTransportEvent(TransportRestCall, 120, false)
	if killCalls != 1 {
		t.Errorf("4th failure re-notified kill switch: %d calls", killCalls)
	}
}

func TestRestErrors_SeparateBucketsBelowThreshold(t *testing.T) {
	e, clock := newTestEngine(Config{RestErrorThreshold: 3})

	e.LogTransportEvent(TransportRestCall, 80, false)
	e.LogTransportEvent(TransportRestCall, 80, false)

	*clock = clock.Add(2 * time.Minute)
	e.LogTransportEvent(TransportRestCall, 80, false)

	if e.KillSwitchActive() {
		t.Error("Failures spread across minute buckets must not trip the kill switch")
	}
}

func TestDrawdownHardLimit(t *testing.T) {
	t.Run("breach trips kill switch", func(t *testing.T) {
		e, _ := newTestEngine(Config{MaxDailyDDHard: 0.20})
		alerts := collectAlerts(e)

		e.UpdateMetrics(MetricsUpdate{
			Balance:          decimal.NewFromInt(10000),
			MaxDailyDrawdown: 0.21,
		})

		if !e.KillSwitchActive() {
			t.Fatal("Kill switch should trip on hard drawdown breach")
		}

		found := false
		for _, a := range *alerts {
			if a.Level == domain.AlertCrit && a.Message == "daily drawdown exceeds hard limit" {
				found = true
			}
		}
		if !found {
			t.Error("Expected CRIT alert referencing the hard limit")
		}
	})

	t.Run("below limit stays quiet", func(t *testing.T) {
		e, _ := newTestEngine(Config{MaxDailyDDHard: 0.20, MaxDailyDDSoft: 0.19})
		alerts := collectAlerts(e)

		e.UpdateMetrics(MetricsUpdate{
			Balance:          decimal.NewFromInt(10000),
			MaxDailyDrawdown: 0.19,
		})

		if e.KillSwitchActive() {
			t.Error("Kill switch must stay off below the hard limit")
		}
		for _, a := range *alerts {
			if a.Level == domain.AlertCrit {
				t.Errorf("Unexpected CRIT alert: %s", a.Message)
			}
		}
	})

	t.Run("soft limit warns without kill", func(t *testing.T) {
		e, _ := newTestEngine(Config{MaxDailyDDHard: 0.20, MaxDailyDDSoft: 0.10})
		alerts := collectAlerts(e)

		e.UpdateMetrics(MetricsUpdate{
			Balance:          decimal.NewFromInt(10000),
			MaxDailyDrawdown: 0.12,
		})

		if e.KillSwitchActive() {
			t.Error("Soft breach must not trip the kill switch")
		}
		warns := 0
		for _, a := range *alerts {
			if a.Level == domain.AlertWarn {
				warns++
			}
		}
		if warns != 1 {
			t.Errorf("Expected 1 WARN alert, got %d", warns)
		}
	})
}

func TestWsStaleness(t *testing.T) {
	e, clock := newTestEngine(Config{WsStaleThresholdMs: 60000})
	alerts := collectAlerts(e)

	e.LogTransportEvent(TransportWsUpdate, 5, true)

	*clock = clock.Add(2 * time.Minute)
	snap := e.UpdateMetrics(MetricsUpdate{Balance: decimal.NewFromInt(1000)})

	if snap.WsSilenceMs != 120000 {
		t.Errorf("WsSilenceMs = %d, want 120000", snap.WsSilenceMs)
	}
	if e.KillSwitchActive() {
		t.Error("Staleness alone must not trip the kill switch")
	}

	crits := 0
	for _, a := range *alerts {
		if a.Level == domain.AlertCrit && a.Message == "websocket feed stale" {
			crits++
		}
	}
	if crits != 1 {
		t.Errorf("Expected 1 staleness CRIT, got %d", crits)
	}

	// A fresh ws update clears the latch; going stale again re-alerts.
	e.LogTransportEvent(TransportWsUpdate, 5, true)
	*clock = clock.Add(2 * time.Minute)
	e.UpdateMetrics(MetricsUpdate{Balance: decimal.NewFromInt(1000)})

	crits = 0
	for _, a := range *alerts {
		if a.Level == domain.AlertCrit && a.Message == "websocket feed stale" {
			crits++
		}
	}
	if crits != 2 {
		t.Errorf("Expected staleness CRIT to re-fire after recovery, got %d", crits)
	}
}

func TestWsStaleness_UnknownBeforeFirstUpdate(t *testing.T) {
	e, _ := newTestEngine(Config{})
	snap := e.UpdateMetrics(MetricsUpdate{Balance: decimal.NewFromInt(1000)})
	if snap.WsSilenceMs != -1 {
		t.Errorf("WsSilenceMs = %d, want -1 before the first ws update", snap.WsSilenceMs)
	}
	if e.KillSwitchActive() {
		t.Error("No staleness trigger before the first ws update")
	}
}

func TestReconnectRateWarn(t *testing.T) {
	e, _ := newTestEngine(Config{ReconnectRateThreshold: 3})
	alerts := collectAlerts(e)

	for i := 0; i < 5; i++ {
		e.LogTransportEvent(TransportWsReconnect, 0, true)
	}

	warns := 0
	for _, a := range *alerts {
		if a.Level == domain.AlertWarn {
			warns++
		}
	}
	if warns != 1 {
		t.Errorf("Expected a single WARN while above threshold, got %d", warns)
	}
	if e.KillSwitchActive() {
		t.Error("Reconnect churn must not trip the kill switch")
	}
}

func TestTripKillSwitch_Idempotent(t *testing.T) {
	e, _ := newTestEngine(Config{})
	alerts := collectAlerts(e)
	killCalls := 0
	e.SubscribeKillSwitch(func(reason string) { killCalls++ })

	e.TripKillSwitch("first reason")
	e.TripKillSwitch("second reason")

	if killCalls != 1 {
		t.Errorf("Expected exactly one kill notification, got %d", killCalls)
	}
	if e.KillReason() != "first reason" {
		t.Errorf("KillReason = %q, want the first reason", e.KillReason())
	}

	infos := 0
	for _, a := range *alerts {
		if a.Level == domain.AlertInfo {
			infos++
		}
	}
	if infos != 1 {
		t.Errorf("Expected 1 INFO alert for the duplicate trip, got %d", infos)
	}
}

func TestLogDecision_RejectionWarns(t *testing.T) {
	e, _ := newTestEngine(Config{})
	alerts := collectAlerts(e)

	d := domain.Decision{Intent: domain.IntentBuy, Confidence: 1}
	e.LogDecision("binance:BTCUSDT:5m:ema_cross", d, false, "kill switch active")

	if len(*alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(*alerts))
	}
	a := (*alerts)[0]
	if a.Level != domain.AlertWarn {
		t.Errorf("Level = %s, want WARN", a.Level)
	}
	if a.Details["reason"] != "kill switch active" {
		t.Errorf("Rejection reason missing from details: %v", a.Details)
	}
}

func TestSubscriberPanicIsContained(t *testing.T) {
	e, _ := newTestEngine(Config{})
	e.SubscribeAlerts(func(domain.Alert) { panic("broken sink") })
	e.SubscribeKillSwitch(func(string) { panic("broken sink") })

	// Must not panic.
	e.Alert(domain.AlertWarn, "probe", nil)
	e.TripKillSwitch("probe")

	if !e.KillSwitchActive() {
		t.Error("Kill switch should still trip when a subscriber panics")
	}
}

func TestUpdateMetrics_SnapshotDerivation(t *testing.T) {
	e, clock := newTestEngine(Config{})

	e.LogTransportEvent(TransportWsUpdate, 10, true)
	e.LogTransportEvent(TransportWsUpdate, 20, true)
	e.LogTransportEvent(TransportRestCall, 100, true)

	// 2 accepted entry decisions within the trailing hour.
	d := domain.Decision{Intent: domain.IntentBuy, Confidence: 1}
	e.LogDecision("r1", d, true, "")
	e.LogDecision("r1", d, true, "")
	e.LogDecision("r1", domain.Hold("no signal"), true, "")

	e.LogTrade(Trade{RouteID: "r1", Side: domain.SideBuy, Qty: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100)})

	*clock = clock.Add(time.Second)
	snap := e.UpdateMetrics(MetricsUpdate{
		Balance:         decimal.NewFromInt(10000),
		CommissionTotal: decimal.NewFromInt(5),
	})

	if snap.AvgWsLatencyMs != 15 {
		t.Errorf("AvgWsLatencyMs = %v, want 15", snap.AvgWsLatencyMs)
	}
	if snap.AvgRestLatencyMs != 100 {
		t.Errorf("AvgRestLatencyMs = %v, want 100", snap.AvgRestLatencyMs)
	}
	if want := 2.0 / 60.0; snap.OrdersPerMin != want {
		t.Errorf("OrdersPerMin = %v, want %v", snap.OrdersPerMin, want)
	}
	if want := 1.0 / 60.0; snap.FillsPerMin != want {
		t.Errorf("FillsPerMin = %v, want %v", snap.FillsPerMin, want)
	}
	// 5/10000 * 10000 = 5 bps
	if snap.FeeImpactBps != 5 {
		t.Errorf("FeeImpactBps = %v, want 5", snap.FeeImpactBps)
	}
}

func TestExportSnapshot(t *testing.T) {
	e, _ := newTestEngine(Config{})

	e.Alert(domain.AlertInfo, "started", nil)
	e.LogDecision("r1", domain.Hold("warmup"), true, "")
	e.LogTrade(Trade{RouteID: "r1", Side: domain.SideBuy, Qty: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(10)})
	e.UpdateMetrics(MetricsUpdate{Balance: decimal.NewFromInt(1000)})

	exp := e.ExportSnapshot()

	if exp.Summary.Decisions != 1 {
		t.Errorf("Decisions = %d, want 1", exp.Summary.Decisions)
	}
	if exp.Summary.Trades != 1 {
		t.Errorf("Trades = %d, want 1", exp.Summary.Trades)
	}
	if exp.Summary.AlertsByLevel["INFO"] != 1 {
		t.Errorf("AlertsByLevel[INFO] = %d, want 1", exp.Summary.AlertsByLevel["INFO"])
	}
	if len(exp.Snapshots) != 1 {
		t.Errorf("Snapshots = %d, want 1", len(exp.Snapshots))
	}

	// Export must be a copy: mutating it leaves engine state intact.
	exp.Alerts[0].Message = "mutated"
	if e.ExportSnapshot().Alerts[0].Message == "mutated" {
		t.Error("ExportSnapshot must return copies")
	}
}

func TestRing(t *testing.T) {
	r := newRing(3)
	if r.avg() != 0 {
		t.Error("Empty ring average should be 0")
	}
	r.push(1)
	r.push(2)
	r.push(3)
	if r.avg() != 2 {
		t.Errorf("avg = %v, want 2", r.avg())
	}
	r.push(7) // overwrites 1
	if r.len() != 3 {
		t.Errorf("len = %d, want 3", r.len())
	}
	if r.avg() != 4 {
		t.Errorf("avg = %v, want 4", r.avg())
	}
}
