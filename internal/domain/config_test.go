// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortKey(t *testing.T) {
	tests := []struct {
		input   string
		want    SortKey
		wantErr bool
	}{
		{input: "", want: SortKeyUploadSpeed},
		{input: "upload_speed", want: SortKeyUploadSpeed},
		{input: "download_speed", want: SortKeyDownloadSpeed},
		{input: "active_downloads", want: SortKeyActiveDownloads},
		{input: "cpu_load", want: SortKeyUploadSpeed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSortKey(tt.input)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortKeyString_RoundTrips(t *testing.T) {
	for _, k := range []SortKey{SortKeyUploadSpeed, SortKeyDownloadSpeed, SortKeyActiveDownloads} {
		parsed, err := ParseSortKey(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}

func TestInstanceConfig_TrafficLimitBytes(t *testing.T) {
	assert.Equal(t, int64(0), InstanceConfig{}.TrafficLimitBytes(), "zero means unlimited")
	assert.Equal(t, int64(0), InstanceConfig{TrafficLimit: -5}.TrafficLimitBytes())
	assert.Equal(t, int64(100*1024*1024), InstanceConfig{TrafficLimit: 100}.TrafficLimitBytes())
}

func TestInstanceConfig_ReservedSpaceBytes(t *testing.T) {
	assert.Equal(t, int64(21*1024)*1024*1024, InstanceConfig{}.ReservedSpaceBytes(), "defaults to 21 GiB")
	assert.Equal(t, int64(512*1024*1024), InstanceConfig{ReservedSpace: 512}.ReservedSpaceBytes())
}
