package messages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalibrationEvent_Key(t *testing.T) {
	require.Equal(t, "result:3", string(CalibrationEvent{ResultID: 3, JobID: 2, EquipmentID: 1}.Key()))
	require.Equal(t, "job:2", string(CalibrationEvent{JobID: 2, RequestID: 5}.Key()))
	require.Equal(t, "request:5", string(CalibrationEvent{RequestID: 5, EquipmentID: 1}.Key()))
	require.Equal(t, "equipment:1", string(CalibrationEvent{EquipmentID: 1}.Key()))
}
