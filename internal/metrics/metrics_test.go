package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/vidlink/internal/media"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPipeline()
	stats := media.AssemblerStats{Units: 7, DroppedBytes: 3}
	require.NoError(t, p.Register(reg, func() media.AssemblerStats { return stats }))

	p.ChunksSubmitted.Add(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(p.ChunksSubmitted))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		m := f.GetMetric()[0]
		if m.GetCounter() != nil {
			values[f.GetName()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 7.0, values["vidlink_assembler_units_total"])
	assert.Equal(t, 3.0, values["vidlink_assembler_dropped_bytes_total"])
	assert.Equal(t, 2.0, values["vidlink_decoder_chunks_submitted_total"])

	// Registering twice collides.
	assert.Error(t, p.Register(reg, func() media.AssemblerStats { return stats }))
}
