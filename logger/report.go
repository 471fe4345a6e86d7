package logger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Connection-level counters, incremented from the hot paths and drained
// into the periodic report.
var (
	framesIn       int64
	framesDropped  int64
	ordersSent     int64
	ordersRejected int64

	warnCounts  sync.Map // map[string]*int64, keyed by component
	errorCounts sync.Map
)

func recordWarn(component string) {
	bump(&warnCounts, component)
}

func recordError(component string) {
	bump(&errorCounts, component)
}

func bump(m *sync.Map, key string) {
	v, _ := m.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// IncrementFrame records one inbound frame; dropped marks frames that
// classified to no event or had no registered sink.
func IncrementFrame(dropped bool) {
	atomic.AddInt64(&framesIn, 1)
	if dropped {
		atomic.AddInt64(&framesDropped, 1)
	}
}

// IncrementOrderSent records one outbound order or cancel frame.
func IncrementOrderSent() {
	atomic.AddInt64(&ordersSent, 1)
}

// IncrementOrderRejected records an order refused locally before any frame
// was sent, e.g. for missing authentication.
func IncrementOrderRejected() {
	atomic.AddInt64(&ordersRejected, 1)
}

// StartReport begins periodic logging of gateway statistics and publishes
// them to CloudWatch when the client is initialised.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	in := atomic.LoadInt64(&framesIn)
	dropped := atomic.LoadInt64(&framesDropped)
	sent := atomic.LoadInt64(&ordersSent)
	rejected := atomic.LoadInt64(&ordersRejected)

	warns := map[string]int64{}
	warnCounts.Range(func(k, v any) bool {
		warns[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	errors := map[string]int64{}
	errorCounts.Range(func(k, v any) bool {
		errors[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})

	log.WithComponent("report").WithFields(Fields{
		"frames_in":       in,
		"frames_dropped":  dropped,
		"orders_sent":     sent,
		"orders_rejected": rejected,
		"warns":           warns,
		"errors":          errors,
	}).Info("gateway statistics")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("FramesIn"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(in))},
		{MetricName: aws.String("FramesDropped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(dropped))},
		{MetricName: aws.String("OrdersSent"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(sent))},
		{MetricName: aws.String("OrdersRejected"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(rejected))},
	}
	publishMetrics(ctx, data)
}
