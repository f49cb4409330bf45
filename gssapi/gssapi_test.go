package gssapi

import (
	"testing"

	"github.com/golang-auth/go-gsasl/common"
	"github.com/golang-auth/go-gsasl/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgSize(t *testing.T) {
	var tests = []struct {
		data []byte
		size uint32
	}{
		{[]byte{0, 0, 0, 0}, 0},
		{[]byte{1, 0, 0, 0}, 0},
		{[]byte{0, 0, 0, 1}, 1},
		{[]byte{0, 0, 1, 0}, 256},
		{[]byte{0, 1, 0, 0}, 65536},
		{[]byte{1, 1, 0, 0}, 65536},
		{[]byte{1, 1, 1, 1}, 65793},
		{[]byte{1, 255, 0, 0}, 65536 * 255},
		{[]byte{1, 255, 255, 255}, 65536*255 + 256*255 + 255},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.size, msgSize(tt.data))
	}
}

func TestQOPString(t *testing.T) {
	assert.Equal(t, "none", layerNone.String())
	assert.Equal(t, "none, integrity, confidentiality", (layerNone | layerIntegrity | layerConfidentiality).String())
}

func TestSelectLayer(t *testing.T) {
	all := layerNone | layerIntegrity | layerConfidentiality
	unbounded := common.MechConfig{MaxSSF: 256}

	var tests = []struct {
		name   string
		cfg    common.MechConfig
		ours   qop
		offer  qop
		chSSF  uint
		choice qop
		ssf    uint
	}{
		{"confidentiality", unbounded, all, all, 256, layerConfidentiality, 256},
		{"server offers integrity", unbounded, all, layerNone | layerIntegrity, 256, layerIntegrity, 1},
		{"we only do none", unbounded, layerNone, all, 256, layerNone, 0},
		{"max ssf 1", common.MechConfig{MaxSSF: 1}, all, all, 256, layerIntegrity, 1},
		{"max ssf 0", common.MechConfig{MaxSSF: 0}, all, all, 256, layerNone, 0},
		{"external covers max", common.MechConfig{MaxSSF: 256, ExternalSSF: 256}, all, all, 256, layerNone, 0},
		{"min ssf 1", common.MechConfig{MinSSF: 1, MaxSSF: 1}, all, all, 256, layerIntegrity, 1},
		{"ad compat", common.MechConfig{MaxSSF: 256, ExtraProps: map[string]string{"ad_compat": "1"}}, all, all, 256, layerConfidentiality | layerIntegrity, 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			choice, ssf, err := selectLayer(tt.cfg, tt.ours, tt.offer, tt.chSSF)
			require.NoError(t, err)
			assert.Equal(t, tt.choice, choice)
			assert.Equal(t, tt.ssf, ssf)
		})
	}

	_, _, err := selectLayer(common.MechConfig{MinSSF: 512, MaxSSF: 1024}, all, all, 256)
	var tooWeak common.ErrTooWeak
	assert.ErrorAs(t, err, &tooWeak)

	_, _, err = selectLayer(common.MechConfig{MinSSF: 1, MaxSSF: 256}, all, layerNone, 256)
	assert.ErrorIs(t, err, common.ErrUnsupportedQOP)
}

func TestRegistered(t *testing.T) {
	assert.True(t, registry.Supports(mechName, common.RoleClient))
	assert.False(t, registry.Supports(mechName, common.RoleServer))

	props := registry.Properties(mechName)
	assert.NotZero(t, props.Features&common.FeatNeedServerFQDN)
	assert.Equal(t, uint(256), props.MaxSSF)
}

func TestFrame(t *testing.T) {
	token := []byte("wrapped token")
	framed := frame(token)
	assert.Equal(t, []byte{0, 0, 0, 13}, framed[:4])

	got, err := unframe(framed, 64)
	require.NoError(t, err)
	assert.Equal(t, token, got)

	got, err = unframe(frame(nil), 64)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = unframe(framed[:3], 64)
	assert.ErrorIs(t, err, common.ErrNeedsMore)

	_, err = unframe(framed[:10], 64)
	assert.ErrorIs(t, err, common.ErrNeedsMore)

	_, err = unframe(framed, 12)
	assert.ErrorIs(t, err, common.ErrIntegrity)

	_, err = unframe(append(framed, 0), 64)
	assert.ErrorIs(t, err, common.ErrIntegrity)
}

func TestContextParamsFrameSize(t *testing.T) {
	m := &GSSAPIMech{maxOutputBufferSz: 1000, maxInputBufferSz: 2000}
	assert.Equal(t, common.ContextParams{MaxPeerMessageSize: 1000}, m.ContextParams())

	m.ssf = 1
	assert.Equal(t, common.ContextParams{SSF: 1, MaxPeerMessageSize: 1000, MaxFrameSize: 2000}, m.ContextParams())
}
