package lfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchResponseDownloadAction(t *testing.T) {
	body := []byte(`{
		"transfer": "basic",
		"objects": [
			{
				"oid": "` + helloOid + `",
				"size": 5,
				"actions": {
					"download": {"href": "https://example.com/objects/` + helloOid + `"}
				}
			}
		]
	}`)

	resp, err := ParseBatchResponse(body)
	require.NoError(t, err)
	require.Len(t, resp.Objects, 1)

	obj := resp.Objects[0]
	assert.Equal(t, helloOid, obj.Oid)
	action := obj.HonoredAction("download")
	require.NotNil(t, action)
	assert.Equal(t, "https://example.com/objects/"+helloOid, action.Href)
	assert.Nil(t, obj.HonoredAction("upload"))
}

func TestParseBatchResponseObjectError(t *testing.T) {
	body := []byte(`{
		"objects": [
			{"oid": "` + helloOid + `", "size": 5, "error": {"code": 404, "message": "not found"}}
		]
	}`)

	resp, err := ParseBatchResponse(body)
	require.NoError(t, err)
	require.Len(t, resp.Objects, 1)
	require.NotNil(t, resp.Objects[0].Error)
	assert.Equal(t, 404, resp.Objects[0].Error.Code)
}

func TestParseBatchResponseRejectsSchemaViolation(t *testing.T) {
	// Missing required "size" field on the object.
	body := []byte(`{"objects": [{"oid": "` + helloOid + `"}]}`)

	_, err := ParseBatchResponse(body)
	require.Error(t, err)
	var protoErr *ErrBatchProtocol
	require.ErrorAs(t, err, &protoErr)
}

func TestParseBatchResponseRejectsMalformedJSON(t *testing.T) {
	_, err := ParseBatchResponse([]byte(`{not json`))
	require.Error(t, err)
}

func TestUnknownActionsIgnoredWithoutError(t *testing.T) {
	obj := &BatchResponseObject{
		Oid: helloOid, Size: 5,
		Actions: map[string]*Action{
			"verify": {Href: "https://example.com/verify"},
		},
	}
	assert.Nil(t, obj.HonoredAction("download"))
	assert.Nil(t, obj.HonoredAction("upload"))
	assert.NotNil(t, obj.HonoredAction("verify"))
}

func TestNewBatchRequestIncludesRefOnlyWhenSet(t *testing.T) {
	withoutRef := NewBatchRequest(OperationDownload, "", nil)
	assert.Nil(t, withoutRef.Ref)

	withRef := NewBatchRequest(OperationDownload, "refs/heads/main", nil)
	require.NotNil(t, withRef.Ref)
	assert.Equal(t, "refs/heads/main", withRef.Ref.Name)
	assert.Equal(t, []string{"basic"}, withRef.Transfers)
}
