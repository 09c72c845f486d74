package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	// Before Create the system is disabled and every helper is a no-op.
	assert.False(t, MetricSystemEnabled)
	RecordCampaignFinalized()
	RecordPoolAcquireDuration(0.01)

	require.NoError(t, Create("test-host", "test", "pipeline_test"))

	finalized := MetricCollectionCounters[SystemCampaign+MetricCampaignsFinalized]
	require.NotNil(t, finalized)
	assert.Equal(t, 0.0, testutil.ToFloat64(finalized))

	RecordCampaignFinalized()
	RecordCampaignFinalized()
	assert.Equal(t, 2.0, testutil.ToFloat64(finalized))

	RecordBatchDispatched()
	dispatched := MetricCollectionCounters[SystemCampaign+MetricBatchesDispatched]
	assert.Equal(t, 1.0, testutil.ToFloat64(dispatched))

	RecordPoolAcquireDuration(0.05)
	acquire := MetricCollectionHistogram[SystemDelivery+MetricPoolAcquireDuration]
	require.NotNil(t, acquire)
	var sample dto.Metric
	require.NoError(t, acquire.Write(&sample))
	assert.EqualValues(t, 1, sample.GetHistogram().GetSampleCount())

	RecordDeliveryOutcome("success", 0.2)
	outcomes := MetricCollectionCounterVec[SystemDelivery+MetricDeliveryOutcomes]
	require.NotNil(t, outcomes)
	assert.Equal(t, 1.0, testutil.ToFloat64(outcomes.WithLabelValues("success")))
}
