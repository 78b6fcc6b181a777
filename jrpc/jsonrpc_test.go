package jrpc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/torusresearch/bijson"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Kind
	}{
		{"response with result", `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`, KindResponse},
		{"response with error", `{"jsonrpc":"2.0","id":2,"error":{"code":-32602,"message":"Invalid params"}}`, KindResponse},
		{"response with null result", `{"jsonrpc":"2.0","id":3,"result":null}`, KindResponse},
		{"notification", `{"jsonrpc":"2.0","method":"session_ready","params":{}}`, KindNotification},
		{"notification without params", `{"jsonrpc":"2.0","method":"session_ready"}`, KindNotification},
		{"server call is not ours", `{"jsonrpc":"2.0","id":4,"method":"ping"}`, KindInvalid},
		{"string id", `{"jsonrpc":"2.0","id":"abc","result":{}}`, KindInvalid},
		{"bare id", `{"jsonrpc":"2.0","id":5}`, KindInvalid},
		{"garbage", `{"hello":"world"}`, KindInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify([]byte(tc.raw)))
		})
	}
}

func TestRequestRoundtrip(t *testing.T) {
	req, err := NewCall(7, "group_create", map[string]interface{}{"parties": 3})
	require.NoError(t, err)

	data, err := bijson.Marshal(req)
	require.NoError(t, err)

	var decoded Request
	require.NoError(t, bijson.Unmarshal(data, &decoded))
	assert.Equal(t, Version, decoded.JSONRPC)
	require.NotNil(t, decoded.ID)
	assert.Equal(t, uint64(7), *decoded.ID)
	assert.Equal(t, "group_create", decoded.Method)

	var params struct {
		Parties int `json:"parties"`
	}
	require.NoError(t, decoded.UnmarshalParams(&params))
	assert.Equal(t, 3, params.Parties)
}

func TestNotificationHasNoID(t *testing.T) {
	req, err := NewNotification("session_message", nil)
	require.NoError(t, err)
	assert.Nil(t, req.ID)
	assert.Nil(t, req.Params)

	data, err := bijson.Marshal(req)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), `"id"`))
	assert.False(t, strings.Contains(string(data), `"params"`))
	assert.Equal(t, KindNotification, Classify(data))
}

func TestUnmarshalParamsAbsent(t *testing.T) {
	req, err := NewNotification("session_ready", nil)
	require.NoError(t, err)

	var dst map[string]interface{}
	assert.Equal(t, ErrNoParams, req.UnmarshalParams(&dst))
}

func TestResponseErrorSurface(t *testing.T) {
	raw := `{"jsonrpc":"2.0","id":9,"error":{"code":-32603,"message":"Internal error","data":"parse failure"}}`
	var resp Response
	require.NoError(t, bijson.Unmarshal([]byte(raw), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)
	assert.Contains(t, resp.Error.Error(), "Internal error")
}
