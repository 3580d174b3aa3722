// File path: internal/common/telemetry/telemetry_test.go
package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNestedSpansRecordParent(t *testing.T) {
	outer, endOuter := StartSpan(context.Background(), "careplan.build")
	inner, endInner := StartSpan(outer, "pipeline.run")
	endInner(map[string]interface{}{"stages": 5})
	endOuter(nil)

	sp, ok := inner.Value(spanKey{}).(*span)
	require.True(t, ok)
	assert.Equal(t, "pipeline.run", sp.name)
	assert.Equal(t, "careplan.build", sp.parent)

	root, ok := outer.Value(spanKey{}).(*span)
	require.True(t, ok)
	assert.Empty(t, root.parent)
}

func TestMetricsAreExposed(t *testing.T) {
	RecordStage("Risk Analysis", 20*time.Millisecond)
	RecordRetrieval("guidelines", true)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "vitaplan_")
}
