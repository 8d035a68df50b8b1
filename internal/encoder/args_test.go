// SPDX-License-Identifier: MIT

package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOfArg(args []string, target string) int {
	for i, a := range args {
		if a == target {
			return i
		}
	}
	return -1
}

func TestBuildArgs_H264Passthrough(t *testing.T) {
	args, err := BuildArgs(ModeH264Passthrough, "/out/export.mp4", 0)
	require.NoError(t, err)

	fIdx := indexOfArg(args, "-f")
	require.NotEqual(t, -1, fIdx)
	assert.Equal(t, "h264", args[fIdx+1])

	cvIdx := indexOfArg(args, "-c:v")
	require.NotEqual(t, -1, cvIdx)
	assert.Equal(t, "copy", args[cvIdx+1], "passthrough must not re-encode")

	assert.Equal(t, "/out/export.mp4", args[len(args)-1])
	assert.NotContains(t, args, "-framerate")
}

func TestBuildArgs_JPEGSequence_DefaultFrameRate(t *testing.T) {
	args, err := BuildArgs(ModeJPEGSequence, "/out/export.mp4", 0)
	require.NoError(t, err)

	rateIdx := indexOfArg(args, "-framerate")
	require.NotEqual(t, -1, rateIdx)
	assert.Equal(t, "15", args[rateIdx+1])

	fIdx := indexOfArg(args, "-f")
	require.NotEqual(t, -1, fIdx)
	assert.Equal(t, "mjpeg", args[fIdx+1])
}

func TestBuildArgs_JPEGSequence_CustomFrameRate(t *testing.T) {
	args, err := BuildArgs(ModeJPEGSequence, "/out/export.mp4", 30)
	require.NoError(t, err)

	rateIdx := indexOfArg(args, "-framerate")
	require.NotEqual(t, -1, rateIdx)
	assert.Equal(t, "30", args[rateIdx+1])
}

func TestBuildArgs_UnknownMode(t *testing.T) {
	_, err := BuildArgs(Mode("bogus"), "/out/export.mp4", 0)
	require.Error(t, err)
}

func TestModeForCodec(t *testing.T) {
	tests := []struct {
		name    string
		isJPEG  bool
		isH264  bool
		want    Mode
		wantOK  bool
	}{
		{name: "h264 takes priority", isJPEG: true, isH264: true, want: ModeH264Passthrough, wantOK: true},
		{name: "h264 only", isJPEG: false, isH264: true, want: ModeH264Passthrough, wantOK: true},
		{name: "jpeg only", isJPEG: true, isH264: false, want: ModeJPEGSequence, wantOK: true},
		{name: "neither", isJPEG: false, isH264: false, want: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, ok := ModeForCodec(tt.isJPEG, tt.isH264)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, mode)
		})
	}
}
