// SPDX-License-Identifier: MIT

package protocol

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ManuGH/xg2g/internal/milestone/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawH264Payload(nal []byte) []byte {
	header := make([]byte, headerLength)
	binary.BigEndian.PutUint16(header[0:2], codecIDRawH264)
	return append(header, nal...)
}

func TestClassifyCodec(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		payload     []byte
		want        model.Codec
	}{
		{
			name:        "explicit jpeg content type",
			contentType: ContentTypeJPEG,
			payload:     []byte{0x00, 0x01},
			want:        model.CodecJPEG,
		},
		{
			name:        "jpeg magic bytes under octet-stream content type",
			contentType: ContentTypeOctetStream,
			payload:     append([]byte{0xFF, 0xD8, 0xFF}, 0x01),
			want:        model.CodecJPEG,
		},
		{
			name:        "raw h264 codec id",
			contentType: ContentTypeOctetStream,
			payload:     []byte{0x00, 0x0A, 0x00, 0x00},
			want:        model.CodecRawH264,
		},
		{
			name:        "unrecognized codec id in octet-stream",
			contentType: ContentTypeOctetStream,
			payload:     []byte{0xFF, 0xFF, 0x00, 0x00},
			want:        model.CodecUnsupported,
		},
		{
			name:        "octet-stream payload too short to carry a codec id",
			contentType: ContentTypeOctetStream,
			payload:     []byte{0x00},
			want:        model.CodecUnknown,
		},
		{
			name:        "unrecognized content type",
			contentType: "text/plain",
			payload:     []byte{0x01, 0x02},
			want:        model.CodecUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyCodec(tt.contentType, tt.payload)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripHeader_Success(t *testing.T) {
	nal := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0xAB, 0xCD}
	payload := rawH264Payload(nal)

	stripped, codecID, err := StripHeader(payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(codecIDRawH264), codecID)
	assert.Equal(t, nal, stripped)
}

func TestStripHeader_TooShort(t *testing.T) {
	_, _, err := StripHeader(make([]byte, headerLength-1))
	require.Error(t, err)
	var pe *ProtoError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindBadHeader, pe.Kind)
}

func TestStripHeader_UnsupportedCodecID(t *testing.T) {
	header := make([]byte, headerLength)
	binary.BigEndian.PutUint16(header[0:2], 0xBEEF)

	_, codecID, err := StripHeader(header)
	require.Error(t, err)
	assert.Equal(t, uint16(0xBEEF), codecID)
	assert.True(t, errors.Is(err, model.ErrUnsupportedCodec))
}

func TestStripHeader_EmptyRemainder(t *testing.T) {
	header := make([]byte, headerLength)
	binary.BigEndian.PutUint16(header[0:2], codecIDRawH264)

	stripped, _, err := StripHeader(header)
	require.NoError(t, err)
	assert.Empty(t, stripped)
}
