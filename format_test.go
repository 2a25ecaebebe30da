package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.0 TB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.bytes))
	}
}

func TestFormatTime_DifferentYear(t *testing.T) {
	old := time.Date(2019, time.March, 5, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "Mar  5  2019", formatTime(old))
}

func TestPrintTable_Alignment(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"A", "BB"}, [][]string{
		{"xxx", "y"},
		{"z", "wwww"},
	})

	assert.Equal(t, "A    BB  \nxxx  y   \nz    wwww\n", buf.String())
}

func TestSplitParentAndName(t *testing.T) {
	tests := []struct {
		path       string
		wantParent string
		wantName   string
	}{
		{"foo/bar/baz", "foo/bar", "baz"},
		{"/foo/bar/", "foo", "bar"},
		{"baz", "", "baz"},
		{"/", "", ""},
	}

	for _, tt := range tests {
		parent, name := splitParentAndName(tt.path)
		assert.Equal(t, tt.wantParent, parent, tt.path)
		assert.Equal(t, tt.wantName, name, tt.path)
	}
}

func TestCleanRemotePath(t *testing.T) {
	assert.Equal(t, "", cleanRemotePath("/"))
	assert.Equal(t, "a/b", cleanRemotePath("/a/b/"))
}
