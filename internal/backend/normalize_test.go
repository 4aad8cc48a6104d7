package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/taskflow-approval-console/internal/domain"
)

func TestDecodeListBareArray(t *testing.T) {
	items, err := decodeList[domain.Action]([]byte(`[{"id": 1, "name": "submit"}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "submit", items[0].Name)
}

func TestDecodeListWrappedResults(t *testing.T) {
	raw := []byte(`{"count": 2, "next": null, "results": [{"id": 1}, {"id": 2}]}`)
	items, err := decodeList[domain.Action](raw)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestDecodeListNeverNil(t *testing.T) {
	items, err := decodeList[domain.Action]([]byte(`{"results": []}`))
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestDecodePageFallsBackToBareArray(t *testing.T) {
	p, err := decodePage[domain.ApproverGroup]([]byte(`[{"id": 10, "name": "finance"}]`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Count)
	assert.Equal(t, "", p.Next)
	require.Len(t, p.Results, 1)
	assert.Equal(t, int64(10), p.Results[0].ID)
}

func TestDecodePageKeepsPagination(t *testing.T) {
	raw := []byte(`{"count": 42, "next": "http://backend/api/approvals/approver-groups/?page=2", "results": [{"id": 10}]}`)
	p, err := decodePage[domain.ApproverGroup](raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.Count)
	assert.NotEmpty(t, p.Next)
}
