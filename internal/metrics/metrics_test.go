package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordResolution(t *testing.T) {
	before := testutil.ToFloat64(DrawResolutions.WithLabelValues("winner"))

	RecordResolution("winner", 0.2)
	RecordResolution("winner", 0.3)

	assert.Equal(t, before+2, testutil.ToFloat64(DrawResolutions.WithLabelValues("winner")))
}

func TestRecordMembershipCheck(t *testing.T) {
	before := testutil.ToFloat64(MembershipChecks.WithLabelValues(ResultError))

	RecordMembershipCheck(ResultError)

	assert.Equal(t, before+1, testutil.ToFloat64(MembershipChecks.WithLabelValues(ResultError)))
}
